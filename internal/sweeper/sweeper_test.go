package sweeper

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/w3c/attribution/internal/engine"
)

// MockEngine is a mock implementation of the Engine interface.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ClearExpiredImpressions() {
	m.Called()
}

func (m *MockEngine) Snapshot() engine.Snapshot {
	args := m.Called()
	return args.Get(0).(engine.Snapshot)
}

// MockSnapshotStore is a mock implementation of the SnapshotStore interface.
type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Save(snap engine.Snapshot) error {
	args := m.Called(snap)
	return args.Error(0)
}

func TestAtomicBool_SetAndGet(t *testing.T) {
	var b atomicBool
	assert.False(t, b.get())
	b.set(true)
	assert.True(t, b.get())
	b.set(false)
	assert.False(t, b.get())
}

func TestSweepOnce_SuccessMarksHealthy(t *testing.T) {
	eng := new(MockEngine)
	eng.On("ClearExpiredImpressions").Return()
	eng.On("Snapshot").Return(engine.Snapshot{})
	store := new(MockSnapshotStore)
	store.On("Save", engine.Snapshot{}).Return(nil)

	s := New(eng, store, time.Minute, zap.NewNop())
	s.sweepOnce()

	assert.True(t, s.healthy.get())
	eng.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestSweepOnce_SaveFailureLeavesUnhealthy(t *testing.T) {
	eng := new(MockEngine)
	eng.On("ClearExpiredImpressions").Return()
	eng.On("Snapshot").Return(engine.Snapshot{})
	store := new(MockSnapshotStore)
	store.On("Save", engine.Snapshot{}).Return(assert.AnError)

	s := New(eng, store, time.Minute, zap.NewNop())
	s.sweepOnce()

	assert.False(t, s.healthy.get())
}

func TestHealthHandler_ReportsUnavailableBeforeFirstSweep(t *testing.T) {
	s := New(new(MockEngine), new(MockSnapshotStore), time.Minute, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.healthHandler().ServeHTTP(rec, req)

	assert.Equal(t, 503, rec.Code)
}

func TestHealthHandler_ReportsOKAfterSweep(t *testing.T) {
	s := New(new(MockEngine), new(MockSnapshotStore), time.Minute, zap.NewNop())
	s.healthy.set(true)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.healthHandler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}

func TestRun_ExitsCleanlyOnContextCancel(t *testing.T) {
	eng := new(MockEngine)
	store := new(MockSnapshotStore)
	s := New(eng, store, time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, "")
	assert.NoError(t, err)
}
