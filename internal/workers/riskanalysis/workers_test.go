package riskanalysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lendingrisk/internal/domain/healthfactor"
	"lendingrisk/pkg/errors"
)

type MockRunner struct{ mock.Mock }

func (m *MockRunner) RunAnalysis(ctx context.Context, chainID string) (*healthfactor.Analysis, error) {
	args := m.Called(ctx, chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*healthfactor.Analysis), args.Error(1)
}

type MockIngester struct{ mock.Mock }

func (m *MockIngester) IngestChain(ctx context.Context, chainID string) (int, error) {
	args := m.Called(ctx, chainID)
	return args.Int(0), args.Error(1)
}

func TestHealthFactorAnalyzer_RunsEveryChain(t *testing.T) {
	runner := &MockRunner{}
	runner.On("RunAnalysis", mock.Anything, "ethereum").Return(&healthfactor.Analysis{}, nil)
	runner.On("RunAnalysis", mock.Anything, "base").Return(&healthfactor.Analysis{}, nil)

	w := NewHealthFactorAnalyzer(runner, []string{"ethereum", "base"}, time.Hour, true)
	require.NoError(t, w.Run(context.Background()))

	runner.AssertExpectations(t)
	assert.Equal(t, "health_factor_analyzer", w.Name())
	assert.Equal(t, time.Hour, w.Interval())
}

func TestHealthFactorAnalyzer_LockedChainIsNotAnError(t *testing.T) {
	runner := &MockRunner{}
	runner.On("RunAnalysis", mock.Anything, "ethereum").Return(nil, errors.Wrap(errors.ErrLocked, "running"))
	runner.On("RunAnalysis", mock.Anything, "base").Return(&healthfactor.Analysis{}, nil)

	w := NewHealthFactorAnalyzer(runner, []string{"ethereum", "base"}, time.Hour, true)
	assert.NoError(t, w.Run(context.Background()))
}

func TestHealthFactorAnalyzer_ContinuesAfterFailure(t *testing.T) {
	runner := &MockRunner{}
	runner.On("RunAnalysis", mock.Anything, "ethereum").Return(nil, errors.Wrap(errors.ErrUnavailable, "gateway"))
	runner.On("RunAnalysis", mock.Anything, "base").Return(&healthfactor.Analysis{}, nil)

	w := NewHealthFactorAnalyzer(runner, []string{"ethereum", "base"}, time.Hour, true)
	err := w.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	runner.AssertCalled(t, "RunAnalysis", mock.Anything, "base")
}

func TestHealthFactorAnalyzer_StopsOnCancelledContext(t *testing.T) {
	runner := &MockRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewHealthFactorAnalyzer(runner, []string{"ethereum"}, time.Hour, true)
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	runner.AssertNotCalled(t, "RunAnalysis", mock.Anything, mock.Anything)
}

func TestHealthFactorAnalyzer_RemainingCountsUnvisitedChains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &MockRunner{}
	runner.On("RunAnalysis", mock.Anything, "ethereum").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.Wrap(errors.ErrUnavailable, "gateway"))

	w := NewHealthFactorAnalyzer(runner, []string{"ethereum", "base", "arbitrum"}, time.Hour, true)
	err := w.Run(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "2 of 3 chains remaining")
	runner.AssertNotCalled(t, "RunAnalysis", mock.Anything, "base")
}

func TestReserveSnapshotCollector(t *testing.T) {
	ingester := &MockIngester{}
	ingester.On("IngestChain", mock.Anything, "ethereum").Return(2, nil)
	ingester.On("IngestChain", mock.Anything, "base").Return(0, errors.Wrap(errors.ErrUnavailable, "gateway"))

	w := NewReserveSnapshotCollector(ingester, []string{"ethereum", "base"}, time.Hour, true)
	err := w.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain base")
	ingester.AssertExpectations(t)
}

func TestProtocolEventCollector(t *testing.T) {
	ingester := &MockIngester{}
	ingester.On("IngestChain", mock.Anything, "ethereum").Return(0, errors.Wrap(errors.ErrUnavailable, "gateway"))
	ingester.On("IngestChain", mock.Anything, "base").Return(5, nil)

	w := NewProtocolEventCollector(ingester, []string{"ethereum", "base"}, time.Hour, true)
	assert.Equal(t, "protocol_event_collector", w.Name())

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnavailable))
	assert.Contains(t, err.Error(), "chain ethereum")
	ingester.AssertExpectations(t)
}

func TestProtocolEventCollector_StopsOnCancelledContext(t *testing.T) {
	ingester := &MockIngester{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewProtocolEventCollector(ingester, []string{"ethereum"}, time.Hour, true).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	ingester.AssertNotCalled(t, "IngestChain", mock.Anything, mock.Anything)
}
