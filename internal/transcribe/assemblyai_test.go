package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "test-key",
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Second,
	}, testLogger())
}

func TestSubmit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/transcript" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "test-key" {
			t.Errorf("Authorization = %q, want %q", got, "test-key")
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.SpeakerLabels || !req.AutoChapters || !req.EntityDetection {
			t.Error("submit should enable diarization, chapters and entities")
		}
		respondJSON(w, map[string]string{"id": "job-1", "status": "queued"})
	})

	c := newTestClient(t, handler)
	id, err := c.Submit(context.Background(), "https://audio.example/ep.m4a")
	if err != nil {
		t.Fatalf("Submit error = %v", err)
	}
	if id != "job-1" {
		t.Errorf("job id = %q, want %q", id, "job-1")
	}
}

func TestAwait(t *testing.T) {
	t.Run("polls until completed", func(t *testing.T) {
		var polls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/transcript/") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			n := polls.Add(1)
			if n < 3 {
				respondJSON(w, map[string]string{"id": "job-1", "status": "processing"})
				return
			}
			respondJSON(w, map[string]any{
				"id":             "job-1",
				"status":         "completed",
				"text":           "hello world",
				"audio_duration": 120,
				"utterances": []map[string]any{
					{"speaker": "A", "text": "hello world", "start": 1500, "end": 3000},
				},
			})
		})

		c := newTestClient(t, handler)
		result, err := c.Await(context.Background(), "job-1")
		if err != nil {
			t.Fatalf("Await error = %v", err)
		}
		if result.Text != "hello world" {
			t.Errorf("text = %q, want %q", result.Text, "hello world")
		}
		if result.DurationSeconds != 120 {
			t.Errorf("duration = %d, want 120", result.DurationSeconds)
		}
		if len(result.Utterances) != 1 || result.Utterances[0].StartMs != 1500 {
			t.Errorf("utterances = %+v", result.Utterances)
		}
		if polls.Load() < 3 {
			t.Errorf("polls = %d, want at least 3", polls.Load())
		}
	})

	t.Run("engine error is terminal", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, map[string]string{
				"id":     "job-1",
				"status": "error",
				"error":  "audio file unreadable",
			})
		})

		c := newTestClient(t, handler)
		_, err := c.Await(context.Background(), "job-1")
		var svcErr *domain.ExternalServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("error = %T, want *ExternalServiceError", err)
		}
		if svcErr.Service != serviceName {
			t.Errorf("service = %q, want %q", svcErr.Service, serviceName)
		}
		if !strings.Contains(err.Error(), "audio file unreadable") {
			t.Errorf("error %q should carry the engine message", err)
		}
	})

	t.Run("wait ceiling", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, map[string]string{"id": "job-1", "status": "processing"})
		})
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		c := NewClient(Config{
			BaseURL:      srv.URL,
			APIKey:       "test-key",
			PollInterval: time.Millisecond,
			MaxWait:      20 * time.Millisecond,
		}, testLogger())

		_, err := c.Await(context.Background(), "job-1")
		var svcErr *domain.ExternalServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("error = %T, want *ExternalServiceError", err)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, map[string]string{"id": "job-1", "status": "processing"})
		})
		c := newTestClient(t, handler)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, err := c.Await(ctx, "job-1")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
	})
}
