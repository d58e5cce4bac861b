package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeKeyStore struct {
	calls []time.Duration
	err   error
}

func (f *fakeKeyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	f.calls = append(f.calls, olderThan)
	return f.err
}

func TestIdempotencySweepPrunesWithConfiguredRetention(t *testing.T) {
	store := &fakeKeyStore{}
	sweep := NewIdempotencySweep(store, nil, nil)

	task, err := NewIdempotencySweepTask(48)
	require.NoError(t, err)
	require.NoError(t, sweep.Handle(context.Background(), task))

	require.Equal(t, []time.Duration{48 * time.Hour}, store.calls)
}

func TestIdempotencySweepDefaultsRetention(t *testing.T) {
	store := &fakeKeyStore{}
	sweep := NewIdempotencySweep(store, nil, nil)

	task, err := NewIdempotencySweepTask(0)
	require.NoError(t, err)
	require.NoError(t, sweep.Handle(context.Background(), task))

	require.Equal(t, []time.Duration{72 * time.Hour}, store.calls)
}

func TestIdempotencySweepPropagatesStoreFailure(t *testing.T) {
	store := &fakeKeyStore{err: errors.New("connection reset")}
	sweep := NewIdempotencySweep(store, nil, nil)

	task, err := NewIdempotencySweepTask(24)
	require.NoError(t, err)
	require.Error(t, sweep.Handle(context.Background(), task))
}

func TestIdempotencySweepRejectsMalformedPayload(t *testing.T) {
	sweep := NewIdempotencySweep(&fakeKeyStore{}, nil, nil)
	err := sweep.Handle(context.Background(), asynq.NewTask(TaskIdempotencySweep, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
