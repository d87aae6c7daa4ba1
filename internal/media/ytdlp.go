package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
)

// AcquireResult is a locally materialized audio file. Cleanup removes
// the file and must be called once the audio has been handed off.
type AcquireResult struct {
	LocalPath string
	Cleanup   func()
}

// Acquirer fetches episode audio through yt-dlp. Downloads are
// normalized to m4a so downstream consumers see one container format.
type Acquirer struct {
	ytdlpPath string
	workDir   string
	logger    *logger.Logger
}

// NewAcquirer creates an Acquirer writing into workDir.
func NewAcquirer(ytdlpPath, workDir string, log *logger.Logger) *Acquirer {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Acquirer{ytdlpPath: ytdlpPath, workDir: workDir, logger: log}
}

// Download fetches the best audio track for sourceRef into the work
// directory as <episodeID>.m4a.
func (a *Acquirer) Download(ctx context.Context, sourceRef, episodeID string) (*AcquireResult, error) {
	if err := os.MkdirAll(a.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}

	outPath := filepath.Join(a.workDir, episodeID+".m4a")
	args := []string{
		"-f", "bestaudio",
		"-x", "--audio-format", "m4a",
		"--no-playlist",
		"-o", filepath.Join(a.workDir, episodeID+".%(ext)s"),
		sourceRef,
	}

	a.logger.WithFields(logger.Fields{
		logger.FieldEpisodeID: episodeID,
		logger.FieldSourceRef: sourceRef,
	}).Info("Downloading episode audio")

	if err := a.run(ctx, args); err != nil {
		return nil, err
	}
	if _, err := os.Stat(outPath); err != nil {
		return nil, &domain.ExternalServiceError{
			Service: "yt-dlp",
			Err:     fmt.Errorf("expected output %s missing: %w", outPath, err),
		}
	}

	return &AcquireResult{
		LocalPath: outPath,
		Cleanup:   func() { os.Remove(outPath) },
	}, nil
}

// DirectURL resolves a direct audio stream URL without downloading.
// The URL is short-lived and must be consumed promptly.
func (a *Acquirer) DirectURL(ctx context.Context, sourceRef string) (string, error) {
	cmd := exec.CommandContext(ctx, a.ytdlpPath, "-g", "-f", "bestaudio", "--no-playlist", sourceRef)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &domain.ExternalServiceError{
			Service: "yt-dlp",
			Err:     fmt.Errorf("%w: %s", err, firstLine(stderr.String())),
		}
	}
	url := strings.TrimSpace(stdout.String())
	if url == "" {
		return "", &domain.ExternalServiceError{
			Service: "yt-dlp",
			Err:     fmt.Errorf("no stream URL for %s", sourceRef),
		}
	}
	// Multiple formats can print multiple lines; the first is bestaudio.
	if i := strings.IndexByte(url, '\n'); i >= 0 {
		url = url[:i]
	}
	return url, nil
}

func (a *Acquirer) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, a.ytdlpPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.ExternalServiceError{
			Service: "yt-dlp",
			Err:     fmt.Errorf("%w: %s", err, firstLine(stderr.String())),
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
