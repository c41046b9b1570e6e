package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/collab"
	"github.com/w3c/attribution/internal/domain"
)

// fixedRng always returns the same value, used to pin down randomized
// choices (epoch origin draw, credit rounding) in tests.
type fixedRng struct{ v float64 }

func (r fixedRng) Random() float64 { return r.v }

// fixedClock returns a constant instant, advanced explicitly between calls
// when a test needs the clock to move.
type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

// MockNotifier is a mock implementation of collab.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyEngineDisabled() {
	m.Called()
}

func (m *MockNotifier) NotifyAllVisitsForgotten() {
	m.Called()
}

func (m *MockNotifier) NotifyBudgetExhausted(site string, epoch int64) {
	m.Called(site, epoch)
}

// MockAuditor is a mock implementation of collab.Auditor.
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) RecordDeduction(rec collab.DeductionRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockAuditor) RecordImpressionsCleared(rec collab.ImpressionClearedRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

const testHistogramSize = 4

func testConfig() Config {
	return Config{
		MaxConversionSitesPerImpression:   10,
		MaxConversionCallersPerImpression: 10,
		MaxCreditSize:                     10,
		MaxLookbackDays:                   30,
		MaxHistogramSize:                  testHistogramSize,
		PrivacyBudgetMicroEpsilons:        10_000_000,
		PrivacyBudgetEpoch:                24 * time.Hour,
		IncludeUnencryptedHistogram:       true,
	}
}

func newTestEngine(notifier collab.Notifier) (*Engine, *fixedClock) {
	return newTestEngineWithConfig(testConfig(), notifier)
}

func newTestEngineWithConfig(cfg Config, notifier collab.Notifier) (*Engine, *fixedClock) {
	return newTestEngineWithCollaborators(cfg, notifier, nil)
}

func newTestEngineWithCollaborators(cfg Config, notifier collab.Notifier, auditor collab.Auditor) (*Engine, *fixedClock) {
	clock := &fixedClock{now: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}
	aggServices := collab.StaticAggregationServices{"https://aggregator.example/": struct{}{}}
	e := New(
		cfg,
		clock,
		fixedRng{v: 0},
		collab.PassthroughEncryptor{},
		collab.IdentityCanonicalizer{},
		aggServices,
		notifier,
		auditor,
		zap.NewNop(),
	)
	return e, clock
}

func histIndex(i int) *int { return &i }

func TestSetEnabled_TogglesAndNotifiesOnlyWhenDisabling(t *testing.T) {
	notifier := new(MockNotifier)
	notifier.On("NotifyEngineDisabled").Return()
	e, _ := newTestEngine(notifier)

	assert.True(t, e.Enabled())

	e.SetEnabled(false)
	assert.False(t, e.Enabled())
	notifier.AssertExpectations(t)

	e.SetEnabled(true)
	assert.True(t, e.Enabled())
	notifier.AssertNumberOfCalls(t, "NotifyEngineDisabled", 1)
}

func TestSaveImpression_StoresImpressionWhenEnabled(t *testing.T) {
	e, _ := newTestEngine(nil)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite: "pub.example",
		HistogramIndex: histIndex(1),
	})
	assert.NoError(t, err)
	assert.Len(t, e.Impressions(), 1)
	assert.Equal(t, domain.Site("pub.example"), e.Impressions()[0].ImpressionSite)
}

func TestSaveImpression_SkipsStorageWhenDisabledButStillValidates(t *testing.T) {
	e, _ := newTestEngine(nil)
	e.SetEnabled(false)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite: "pub.example",
		HistogramIndex: histIndex(1),
	})
	assert.NoError(t, err)
	assert.Empty(t, e.Impressions())
}

func TestSaveImpression_RejectsMissingImpressionSite(t *testing.T) {
	e, _ := newTestEngine(nil)

	_, err := e.SaveImpression(SaveImpressionInput{HistogramIndex: histIndex(1)})
	assert.True(t, domain.IsKind(err, domain.InvalidSyntax))
	assert.Empty(t, e.Impressions())
}

func TestSaveImpression_RejectsOutOfRangeHistogramIndex(t *testing.T) {
	e, _ := newTestEngine(nil)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite: "pub.example",
		HistogramIndex: histIndex(testHistogramSize),
	})
	assert.True(t, domain.IsKind(err, domain.OutOfRange))
}

func TestMeasureConversion_DegradesToZeroHistogramWhenDisabled(t *testing.T) {
	e, _ := newTestEngine(nil)
	e.SetEnabled(false)

	result, err := e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
	})
	assert.NoError(t, err)
	assert.Equal(t, make([]uint64, testHistogramSize), result.UnencryptedHistogram)
}

func TestMeasureConversion_RejectsUnknownAggregationService(t *testing.T) {
	e, _ := newTestEngine(nil)

	_, err := e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://unknown.example/",
		HistogramSize:      histIndex(testHistogramSize),
	})
	assert.True(t, domain.IsKind(err, domain.UnknownReference))
}

func TestMeasureConversion_MatchesSavedImpressionAndDeductsBudget(t *testing.T) {
	e, clock := newTestEngine(nil)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite:  "pub.example",
		HistogramIndex:  histIndex(2),
		ConversionSites: []string{"advertiser.example"},
	})
	assert.NoError(t, err)

	clock.now = clock.now.Add(time.Hour)

	result, err := e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
	})
	assert.NoError(t, err)
	assert.Equal(t, []uint64{0, 0, 1, 0}, result.UnencryptedHistogram)
	assert.NotEmpty(t, e.PrivacyBudgetEntries())
}

func TestMeasureConversion_NoMatchesReturnsZeroHistogram(t *testing.T) {
	e, _ := newTestEngine(nil)

	result, err := e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
	})
	assert.NoError(t, err)
	assert.Equal(t, make([]uint64, testHistogramSize), result.UnencryptedHistogram)
}

func TestMeasureConversion_ExhaustedBudgetDegradesToZeroHistogram(t *testing.T) {
	cfg := testConfig()
	cfg.PrivacyBudgetMicroEpsilons = 0
	e, clock := newTestEngineWithConfig(cfg, nil)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite:  "pub.example",
		HistogramIndex:  histIndex(0),
		ConversionSites: []string{"advertiser.example"},
	})
	assert.NoError(t, err)
	clock.now = clock.now.Add(time.Hour)

	epsilon := 1.0
	result, err := e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
		Epsilon:            &epsilon,
	})
	assert.NoError(t, err)
	assert.Equal(t, make([]uint64, testHistogramSize), result.UnencryptedHistogram)
}

func TestMeasureConversion_ExhaustedBudgetNotifiesAndAuditsFailedDeduction(t *testing.T) {
	cfg := testConfig()
	cfg.PrivacyBudgetMicroEpsilons = 0
	notifier := new(MockNotifier)
	notifier.On("NotifyBudgetExhausted", "advertiser.example", mock.AnythingOfType("int64")).Return()
	auditor := new(MockAuditor)
	auditor.On("RecordDeduction", mock.MatchedBy(func(rec collab.DeductionRecord) bool {
		return rec.Site == "advertiser.example" && !rec.Successful
	})).Return(nil)
	e, clock := newTestEngineWithCollaborators(cfg, notifier, auditor)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite:  "pub.example",
		HistogramIndex:  histIndex(0),
		ConversionSites: []string{"advertiser.example"},
	})
	assert.NoError(t, err)
	clock.now = clock.now.Add(time.Hour)

	epsilon := 1.0
	_, err = e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
		Epsilon:            &epsilon,
	})
	assert.NoError(t, err)
	notifier.AssertExpectations(t)
	auditor.AssertExpectations(t)
}

func TestMeasureConversion_SuccessfulDeductionIsAudited(t *testing.T) {
	auditor := new(MockAuditor)
	auditor.On("RecordDeduction", mock.MatchedBy(func(rec collab.DeductionRecord) bool {
		return rec.Site == "advertiser.example" && rec.Successful
	})).Return(nil)
	e, clock := newTestEngineWithCollaborators(testConfig(), nil, auditor)

	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite:  "pub.example",
		HistogramIndex:  histIndex(2),
		ConversionSites: []string{"advertiser.example"},
	})
	assert.NoError(t, err)
	clock.now = clock.now.Add(time.Hour)

	_, err = e.MeasureConversion(MeasureConversionInput{
		TopLevelSite:       "advertiser.example",
		AggregationService: "https://aggregator.example/",
		HistogramSize:      histIndex(testHistogramSize),
	})
	assert.NoError(t, err)
	auditor.AssertExpectations(t)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	e, clock := newTestEngine(nil)
	_, err := e.SaveImpression(SaveImpressionInput{
		ImpressionSite: "pub.example",
		HistogramIndex: histIndex(1),
	})
	assert.NoError(t, err)
	e.SetEnabled(false)
	clock.now = clock.now.Add(time.Hour)

	snap := e.Snapshot()

	fresh, _ := newTestEngine(nil)
	fresh.Restore(snap)

	assert.Equal(t, snap.Enabled, fresh.Enabled())
	assert.Len(t, fresh.Impressions(), 1)
	assert.Equal(t, snap.EpochOrigins, fresh.EpochStarts())
}
