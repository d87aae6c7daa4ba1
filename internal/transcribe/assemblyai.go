package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/go-resty/resty/v2"
)

const serviceName = "assemblyai"

// Utterance is one diarized span of speech. Times are milliseconds
// from the start of the audio, as the engine reports them.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartMs int    `json:"start"`
	EndMs   int    `json:"end"`
}

// Chapter is an engine-detected topical section.
type Chapter struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Gist     string `json:"gist"`
	StartMs  int    `json:"start"`
	EndMs    int    `json:"end"`
}

// Entity is an engine-detected named entity mention.
type Entity struct {
	Type    string `json:"entity_type"`
	Text    string `json:"text"`
	StartMs int    `json:"start"`
	EndMs   int    `json:"end"`
}

// Result is a finished transcription job.
type Result struct {
	ID              string      `json:"id"`
	Text            string      `json:"text"`
	DurationSeconds int         `json:"audio_duration"`
	Utterances      []Utterance `json:"utterances"`
	Chapters        []Chapter   `json:"chapters"`
	Entities        []Entity    `json:"entities"`
}

type transcriptStatus struct {
	Result
	Status string `json:"status"`
	Error  string `json:"error"`
}

type submitRequest struct {
	AudioURL        string `json:"audio_url"`
	SpeakerLabels   bool   `json:"speaker_labels"`
	AutoChapters    bool   `json:"auto_chapters"`
	EntityDetection bool   `json:"entity_detection"`
}

// Config controls the client's polling behavior.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Client submits audio for transcription with speaker diarization,
// chapter detection and entity detection, then polls for completion.
type Client struct {
	client       *resty.Client
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *logger.Logger
}

// NewClient creates a Client from config. Zero durations get sane
// defaults (10s poll, 30m ceiling).
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 30 * time.Minute
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", cfg.APIKey).
		SetTimeout(30 * time.Second)
	return &Client{
		client:       client,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		logger:       log,
	}
}

// Submit queues a transcription job for audioURL and returns its id.
func (c *Client) Submit(ctx context.Context, audioURL string) (string, error) {
	var body transcriptStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(submitRequest{
			AudioURL:        audioURL,
			SpeakerLabels:   true,
			AutoChapters:    true,
			EntityDetection: true,
		}).
		SetResult(&body).
		Post("/transcript")
	if err != nil {
		return "", &domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	if resp.IsError() {
		return "", &domain.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("submit returned status %d", resp.StatusCode()),
		}
	}
	if body.ID == "" {
		return "", &domain.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("submit response missing job id"),
		}
	}
	return body.ID, nil
}

// Await polls the job until it completes, fails, the wait ceiling is
// hit, or ctx is canceled. An engine-reported error is terminal.
func (c *Client) Await(ctx context.Context, jobID string) (*Result, error) {
	deadline := time.Now().Add(c.maxWait)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.poll(ctx, jobID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			result := status.Result
			return &result, nil
		case "error":
			return nil, &domain.ExternalServiceError{
				Service: serviceName,
				Err:     fmt.Errorf("transcription %s failed: %s", jobID, status.Error),
			}
		}

		if time.Now().After(deadline) {
			return nil, &domain.ExternalServiceError{
				Service: serviceName,
				Err:     fmt.Errorf("transcription %s still %s after %s", jobID, status.Status, c.maxWait),
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Transcribe submits audioURL and blocks until the job resolves.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (*Result, error) {
	jobID, err := c.Submit(ctx, audioURL)
	if err != nil {
		return nil, err
	}
	c.logger.WithField("job_id", jobID).Info("Transcription job submitted")
	return c.Await(ctx, jobID)
}

func (c *Client) poll(ctx context.Context, jobID string) (*transcriptStatus, error) {
	var body transcriptStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/transcript/" + jobID)
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: serviceName, Err: err}
	}
	if resp.IsError() {
		return nil, &domain.ExternalServiceError{
			Service: serviceName,
			Err:     fmt.Errorf("poll returned status %d", resp.StatusCode()),
		}
	}
	return &body, nil
}
