package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/w3c/attribution/internal/domain"
)

func imp(site domain.Site, ts time.Time, lifetime time.Duration) *domain.Impression {
	return &domain.Impression{
		ImpressionSite:    site,
		ConversionSites:   map[domain.Site]struct{}{},
		ConversionCallers: map[domain.Site]struct{}{},
		Timestamp:         ts,
		Lifetime:          lifetime,
	}
}

func TestAppendAndIter(t *testing.T) {
	s := New()
	s.Append(imp("a.example", time.Now(), time.Hour))
	s.Append(imp("b.example", time.Now(), time.Hour))

	var seen []domain.Site
	s.Iter(func(i *domain.Impression) { seen = append(seen, i.ImpressionSite) })
	assert.Equal(t, []domain.Site{"a.example", "b.example"}, seen)
	assert.Equal(t, 2, s.Len())
}

func TestClearExpired_Idempotent(t *testing.T) {
	now := time.Now()
	s := New()
	s.Append(imp("a.example", now.Add(-2*time.Hour), time.Hour)) // expired
	s.Append(imp("b.example", now, time.Hour))                   // fresh

	s.ClearExpired(now)
	assert.Equal(t, 1, s.Len())

	s.ClearExpired(now)
	assert.Equal(t, 1, s.Len(), "second call must remove nothing further")
}

func TestClearForSite_RemovesByImpressionSite(t *testing.T) {
	s := New()
	s.Append(imp("a.example", time.Now(), time.Hour))
	s.ClearForSite("a.example")
	assert.Equal(t, 0, s.Len())
}

func TestClearForSite_RemovesByIntermediarySite(t *testing.T) {
	s := New()
	i := imp("a.example", time.Now(), time.Hour)
	i.IntermediarySite = "embed.example"
	s.Append(i)
	s.ClearForSite("embed.example")
	assert.Equal(t, 0, s.Len())
}

func TestClearForSite_NarrowsConversionSitesWithoutRemoving(t *testing.T) {
	s := New()
	i := imp("a.example", time.Now(), time.Hour)
	i.ConversionSites = map[domain.Site]struct{}{"c1.example": {}, "c2.example": {}}
	s.Append(i)

	s.ClearForSite("c1.example")
	assert.Equal(t, 1, s.Len(), "impression survives while another conversion site remains")

	var remaining *domain.Impression
	s.Iter(func(imp *domain.Impression) { remaining = imp })
	assert.NotContains(t, remaining.ConversionSites, domain.Site("c1.example"))
	assert.Contains(t, remaining.ConversionSites, domain.Site("c2.example"))
}

func TestClearForSite_RemovesWhenLastConversionSiteDropped(t *testing.T) {
	s := New()
	i := imp("a.example", time.Now(), time.Hour)
	i.ConversionSites = map[domain.Site]struct{}{"c1.example": {}}
	s.Append(i)

	s.ClearForSite("c1.example")
	assert.Equal(t, 0, s.Len())
}

func TestClearForSite_RemovesWhenLastConversionCallerDropped(t *testing.T) {
	s := New()
	i := imp("a.example", time.Now(), time.Hour)
	i.ConversionCallers = map[domain.Site]struct{}{"caller.example": {}}
	s.Append(i)

	s.ClearForSite("caller.example")
	assert.Equal(t, 0, s.Len())
}

func TestForgetSites(t *testing.T) {
	s := New()
	s.Append(imp("a.example", time.Now(), time.Hour))
	s.Append(imp("b.example", time.Now(), time.Hour))

	s.ForgetSites(map[domain.Site]struct{}{"a.example": {}})
	assert.Equal(t, 1, s.Len())

	var remaining domain.Site
	s.Iter(func(imp *domain.Impression) { remaining = imp.ImpressionSite })
	assert.Equal(t, domain.Site("b.example"), remaining)
}

func TestClear(t *testing.T) {
	s := New()
	s.Append(imp("a.example", time.Now(), time.Hour))
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestRestore_RoundTrip(t *testing.T) {
	s := New()
	s.Append(imp("a.example", time.Now(), time.Hour))
	snapshot := s.Snapshot()

	fresh := New()
	fresh.Restore(snapshot)
	assert.Equal(t, 1, fresh.Len())
}
