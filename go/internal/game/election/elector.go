package election

import (
	"sort"

	"github.com/mcdev12/hoot/go/internal/models"
)

// Elect selects the driver for a room from its current presence set.
//
// The preferred driver (the quiz creator) wins unconditionally whenever it is
// present. Otherwise the earliest-joined participant drives, with ties broken
// by lexicographic session ID so every client computes the same result from
// the same presence set. The second return is false when the set is empty.
//
// Elect is a pure function over eventually-consistent presence state: it must
// be recomputed on every presence change, never cached.
func Elect(participants []models.Participant, preferredDriverID string) (string, bool) {
	if len(participants) == 0 {
		return "", false
	}

	if preferredDriverID != "" {
		for _, p := range participants {
			if p.SessionID == preferredDriverID {
				return preferredDriverID, true
			}
		}
	}

	sorted := make([]models.Participant, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].JoinedAt.Equal(sorted[j].JoinedAt) {
			return sorted[i].JoinedAt.Before(sorted[j].JoinedAt)
		}
		return sorted[i].SessionID < sorted[j].SessionID
	})

	return sorted[0].SessionID, true
}
