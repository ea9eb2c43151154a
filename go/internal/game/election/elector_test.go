package election

import (
	"testing"
	"time"

	"github.com/mcdev12/hoot/go/internal/models"
	"github.com/stretchr/testify/assert"
)

func participants(ids ...string) []models.Participant {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.Participant, len(ids))
	for i, id := range ids {
		out[i] = models.Participant{SessionID: id, JoinedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestElect_EmptySet(t *testing.T) {
	driver, ok := Elect(nil, "")
	assert.False(t, ok)
	assert.Empty(t, driver)

	driver, ok = Elect(nil, "creator")
	assert.False(t, ok)
	assert.Empty(t, driver)
}

func TestElect_PreferredDriverWinsRegardlessOfJoinOrder(t *testing.T) {
	// D joins last but is the creator.
	p := participants("a", "b", "d")
	driver, ok := Elect(p, "d")
	assert.True(t, ok)
	assert.Equal(t, "d", driver)
}

func TestElect_PreferredDriverAbsentFallsBackToEarliest(t *testing.T) {
	p := participants("a", "b", "c")
	driver, ok := Elect(p, "not-here")
	assert.True(t, ok)
	assert.Equal(t, "a", driver)
}

func TestElect_EarliestJoinedWins(t *testing.T) {
	p := participants("a", "b", "c")
	driver, ok := Elect(p, "")
	assert.True(t, ok)
	assert.Equal(t, "a", driver)

	// A disconnects; B is now earliest.
	driver, ok = Elect(p[1:], "")
	assert.True(t, ok)
	assert.Equal(t, "b", driver)
}

func TestElect_TieBrokenBySessionID(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := []models.Participant{
		{SessionID: "zulu", JoinedAt: ts},
		{SessionID: "alpha", JoinedAt: ts},
		{SessionID: "mike", JoinedAt: ts},
	}
	driver, ok := Elect(p, "")
	assert.True(t, ok)
	assert.Equal(t, "alpha", driver)
}

func TestElect_Deterministic(t *testing.T) {
	p := participants("c", "a", "b")
	first, _ := Elect(p, "")
	for i := 0; i < 50; i++ {
		driver, ok := Elect(p, "")
		assert.True(t, ok)
		assert.Equal(t, first, driver)
	}
}

func TestElect_DoesNotMutateInput(t *testing.T) {
	p := participants("c", "b", "a")
	orig := make([]models.Participant, len(p))
	copy(orig, p)

	Elect(p, "")
	assert.Equal(t, orig, p)
}
