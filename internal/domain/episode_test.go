package domain

import "testing"

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name  string
		from  EpisodeStatus
		to    EpisodeStatus
		force bool
		want  bool
	}{
		{"pending to processing", EpisodeStatusPending, EpisodeStatusProcessing, false, true},
		{"pending cannot complete directly", EpisodeStatusPending, EpisodeStatusCompleted, false, false},
		{"processing to completed", EpisodeStatusProcessing, EpisodeStatusCompleted, false, true},
		{"processing to failed", EpisodeStatusProcessing, EpisodeStatusFailed, false, true},
		{"processing cannot return to pending", EpisodeStatusProcessing, EpisodeStatusPending, false, false},
		{"completed needs force", EpisodeStatusCompleted, EpisodeStatusProcessing, false, false},
		{"failed may be retried", EpisodeStatusFailed, EpisodeStatusProcessing, false, true},
		{"force reopens completed", EpisodeStatusCompleted, EpisodeStatusProcessing, true, true},
		{"force reopens failed", EpisodeStatusFailed, EpisodeStatusProcessing, true, true},
		{"force reclaims stuck processing", EpisodeStatusProcessing, EpisodeStatusProcessing, true, true},
		{"processing stays claimed without force", EpisodeStatusProcessing, EpisodeStatusProcessing, false, false},
		{"force cannot jump to completed", EpisodeStatusCompleted, EpisodeStatusCompleted, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to, tt.force); got != tt.want {
				t.Errorf("%s -> %s (force=%v) = %v, want %v", tt.from, tt.to, tt.force, got, tt.want)
			}
		})
	}
}
