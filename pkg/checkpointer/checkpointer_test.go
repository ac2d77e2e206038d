package checkpointer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/slidingwindow"
)

const chain = "35834a8a"

type mockCheckpointer struct {
	mock.Mock
}

func (m *mockCheckpointer) Initialize(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockCheckpointer) Write(ctx context.Context, chain string, lowestUnprocessed uint64) error {
	args := m.Called(ctx, chain, lowestUnprocessed)
	return args.Error(0)
}

func (m *mockCheckpointer) Read(ctx context.Context, chain string) (uint64, bool, error) {
	args := m.Called(ctx, chain)
	return args.Get(0).(uint64), args.Bool(1), args.Error(2)
}

func TestStart_WritesAndCancels(t *testing.T) {
	t.Parallel()
	state, err := slidingwindow.NewState(5, 10)
	require.NoError(t, err)
	checkpointer := &mockCheckpointer{}

	called := make(chan struct{}, 1)
	checkpointer.
		On("Write", mock.Anything, chain, uint64(5)).
		Run(func(_ mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		}).
		Return(nil)

	cfg := Config{
		Interval:     10 * time.Millisecond,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, zap.NewNop().Sugar(), state, checkpointer, cfg, chain, nil)
	}()

	select {
	case <-called:
		cancel()
	case <-time.After(500 * time.Millisecond):
		require.Fail(t, "timeout waiting for checkpoint write")
	}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(500 * time.Millisecond):
		require.Fail(t, "timeout waiting for checkpointer to exit")
	}
	// at least one periodic write plus the shutdown write
	require.GreaterOrEqual(t, len(checkpointer.Calls), 2)
}

func TestStart_ErrorPropagates(t *testing.T) {
	t.Parallel()
	state, err := slidingwindow.NewState(1, 1)
	require.NoError(t, err)
	checkpointer := &mockCheckpointer{}
	writeErr := errors.New("write failed")
	checkpointer.
		On("Write", mock.Anything, chain, uint64(1)).
		Return(writeErr).
		Times(4) // initial try + 3 retries

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	cfg := Config{
		Interval:     5 * time.Millisecond,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	gotErr := Start(ctx, zap.NewNop().Sugar(), state, checkpointer, cfg, chain, m)
	require.ErrorIs(t, gotErr, writeErr)
	require.ErrorContains(t, gotErr, "after 4 attempts")
	checkpointer.AssertExpectations(t)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP checkpoint_indexer_checkpointer_writes_total Total resume point writes by status
# TYPE checkpoint_indexer_checkpointer_writes_total counter
checkpoint_indexer_checkpointer_writes_total{status="error"} 1
`), "checkpoint_indexer_checkpointer_writes_total"))
}

func TestStart_ImmediateCancelWritesShutdownCheckpoint(t *testing.T) {
	t.Parallel()
	state, err := slidingwindow.NewState(0, 0)
	require.NoError(t, err)
	checkpointer := &mockCheckpointer{}
	checkpointer.
		On("Write", mock.Anything, chain, uint64(0)).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			require.NoError(t, ctx.Err(), "shutdown write must not inherit cancellation")
		}).
		Return(nil).
		Once()

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = Start(ctx, zap.New(core).Sugar(), state, checkpointer, DefaultConfig(), chain, nil)
	require.NoError(t, err)
	checkpointer.AssertExpectations(t)
	require.Equal(t, 1, logs.FilterMessage("wrote shutdown checkpoint").Len())
}

func TestStart_ShutdownWriteFailureIsLogged(t *testing.T) {
	t.Parallel()
	state, err := slidingwindow.NewState(3, 9)
	require.NoError(t, err)
	checkpointer := &mockCheckpointer{}
	checkpointer.On("Write", mock.Anything, chain, uint64(3)).Return(errors.New("unavailable")).Once()

	core, logs := observer.New(zap.WarnLevel)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.NoError(t, Start(ctx, zap.New(core).Sugar(), state, checkpointer, DefaultConfig(), chain, nil))
	require.Equal(t, 1, logs.FilterMessage("failed to write shutdown checkpoint").Len())
}

func TestStart_InvalidConfig(t *testing.T) {
	t.Parallel()
	state, err := slidingwindow.NewState(0, 0)
	require.NoError(t, err)
	err = Start(t.Context(), zap.NewNop().Sugar(), state, &mockCheckpointer{}, Config{}, chain, nil)
	require.ErrorContains(t, err, "invalid checkpoint interval")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero interval", mutate: func(c *Config) { c.Interval = 0 }, wantErr: "interval"},
		{name: "zero write timeout", mutate: func(c *Config) { c.WriteTimeout = 0 }, wantErr: "write timeout"},
		{name: "negative retries", mutate: func(c *Config) { c.MaxRetries = -1 }, wantErr: "max retries"},
		{name: "no retries", mutate: func(c *Config) { c.MaxRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, 1*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 300*time.Millisecond, cfg.RetryBackoff)
}
