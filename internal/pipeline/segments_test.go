package pipeline

import (
	"testing"

	"github.com/AnantSomani/elara2/internal/transcribe"
)

func TestNormalizeSpeaker(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A", "Speaker A"},
		{"b", "Speaker B"},
		{" C ", "Speaker C"},
		{"Speaker 1", "Speaker 1"},
		{"Alice", "Alice"},
		{"", "Speaker ?"},
	}
	for _, tt := range tests {
		if got := normalizeSpeaker(tt.in); got != tt.want {
			t.Errorf("normalizeSpeaker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUtterancesToSegments(t *testing.T) {
	utterances := []transcribe.Utterance{
		{Speaker: "A", Text: "welcome to the show", StartMs: 1500, EndMs: 4250},
		{Speaker: "B", Text: "thanks for having me", StartMs: 4250, EndMs: 6000},
		{Speaker: "A", Text: "   ", StartMs: 6000, EndMs: 6100},
	}

	segments := utterancesToSegments("ep1", utterances)
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2 (blank utterance dropped)", len(segments))
	}

	first := segments[0]
	if first.EpisodeID != "ep1" {
		t.Errorf("episode id = %q, want %q", first.EpisodeID, "ep1")
	}
	if first.Speaker != "Speaker A" {
		t.Errorf("speaker = %q, want %q", first.Speaker, "Speaker A")
	}
	if first.StartSeconds != 1.5 {
		t.Errorf("start = %v, want 1.5", first.StartSeconds)
	}
	if first.EndSeconds != 4.25 {
		t.Errorf("end = %v, want 4.25", first.EndSeconds)
	}
	if first.ID == "" || first.ID == segments[1].ID {
		t.Error("segment ids must be unique and non-empty")
	}
}

func TestSpeakerList(t *testing.T) {
	utterances := []transcribe.Utterance{
		{Speaker: "B"},
		{Speaker: "A"},
		{Speaker: "B"},
	}
	got := speakerList(utterances)
	want := []string{"Speaker A", "Speaker B"}
	if len(got) != len(want) {
		t.Fatalf("speakers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("speakers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEntitiesToArtifactDedupes(t *testing.T) {
	entities := []transcribe.Entity{
		{Type: "person", Text: "Ada Lovelace", StartMs: 1000},
		{Type: "person", Text: "ada lovelace", StartMs: 90000},
		{Type: "location", Text: "London", StartMs: 5000},
	}
	got := entitiesToArtifact(entities)
	if len(got) != 2 {
		t.Fatalf("entities = %d, want 2 after dedup", len(got))
	}
}
