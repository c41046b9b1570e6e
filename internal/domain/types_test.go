package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestImpressionCaller(t *testing.T) {
	imp := &Impression{ImpressionSite: "a.example"}
	assert.Equal(t, Site("a.example"), imp.ImpressionCaller())
	assert.False(t, imp.HasIntermediary())

	imp.IntermediarySite = "embed.example"
	assert.Equal(t, Site("embed.example"), imp.ImpressionCaller())
	assert.True(t, imp.HasIntermediary())
}

func TestExpired(t *testing.T) {
	now := time.Now()
	imp := &Impression{Timestamp: now, Lifetime: time.Hour}
	assert.False(t, imp.Expired(now))
	assert.True(t, imp.Expired(now.Add(2*time.Hour)))
	assert.False(t, imp.Expired(now.Add(time.Hour)), "After is strict, exact boundary is not expired")
}

func TestCloneIsIndependent(t *testing.T) {
	orig := &Impression{
		ID:                uuid.New(),
		ConversionSites:   map[Site]struct{}{"a.example": {}},
		ConversionCallers: map[Site]struct{}{"b.example": {}},
	}
	clone := orig.Clone()

	delete(clone.ConversionSites, "a.example")
	assert.Contains(t, orig.ConversionSites, Site("a.example"))

	clone.ConversionCallers["c.example"] = struct{}{}
	assert.NotContains(t, orig.ConversionCallers, Site("c.example"))

	assert.Equal(t, orig.ID, clone.ID)
}

func TestCloneNilMaps(t *testing.T) {
	orig := &Impression{}
	clone := orig.Clone()
	assert.Nil(t, clone.ConversionSites)
	assert.Nil(t, clone.ConversionCallers)
}

func TestCloneMatchesOriginalBeforeMutation(t *testing.T) {
	orig := &Impression{
		ID:                uuid.New(),
		ImpressionSite:    "a.example",
		ConversionSites:   map[Site]struct{}{"c.example": {}},
		ConversionCallers: map[Site]struct{}{"d.example": {}},
		MatchValue:        3,
		Priority:          2,
	}
	clone := orig.Clone()
	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Errorf("clone diverges from original before any mutation (-orig +clone):\n%s", diff)
	}
}
