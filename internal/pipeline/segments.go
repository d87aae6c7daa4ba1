package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/transcribe"
	"github.com/google/uuid"
)

// normalizeSpeaker maps engine speaker labels to display form. Single
// letters become "Speaker A"; anything longer passes through.
func normalizeSpeaker(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "Speaker ?"
	}
	if len(label) == 1 {
		return "Speaker " + strings.ToUpper(label)
	}
	return label
}

// utterancesToSegments converts engine utterances into segment rows.
// Engine timestamps are milliseconds; segments store seconds.
func utterancesToSegments(episodeID string, utterances []transcribe.Utterance) []domain.Segment {
	segments := make([]domain.Segment, 0, len(utterances))
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.Segment{
			ID:           uuid.New().String(),
			EpisodeID:    episodeID,
			Content:      text,
			Speaker:      normalizeSpeaker(u.Speaker),
			StartSeconds: float64(u.StartMs) / 1000,
			EndSeconds:   float64(u.EndMs) / 1000,
		})
	}
	return segments
}

// speakerList returns the distinct normalized speakers in label order.
func speakerList(utterances []transcribe.Utterance) []string {
	seen := make(map[string]struct{})
	speakers := make([]string, 0, 4)
	for _, u := range utterances {
		name := normalizeSpeaker(u.Speaker)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		speakers = append(speakers, name)
	}
	sort.Strings(speakers)
	return speakers
}

// chaptersToArtifact converts engine chapters into the persisted shape.
func chaptersToArtifact(chapters []transcribe.Chapter) domain.JSONArray {
	if len(chapters) == 0 {
		return nil
	}
	out := make(domain.JSONArray, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, map[string]interface{}{
			"headline":      ch.Headline,
			"summary":       ch.Summary,
			"gist":          ch.Gist,
			"start_seconds": float64(ch.StartMs) / 1000,
			"end_seconds":   float64(ch.EndMs) / 1000,
		})
	}
	return out
}

// entitiesToArtifact converts engine entity mentions into the persisted
// shape, deduplicating identical (type, text) pairs.
func entitiesToArtifact(entities []transcribe.Entity) domain.JSONArray {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(entities))
	out := make(domain.JSONArray, 0, len(entities))
	for _, e := range entities {
		key := fmt.Sprintf("%s\x00%s", e.Type, strings.ToLower(e.Text))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, map[string]interface{}{
			"type":          e.Type,
			"text":          e.Text,
			"start_seconds": float64(e.StartMs) / 1000,
		})
	}
	return out
}
