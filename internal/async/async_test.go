package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakerCoalesces(t *testing.T) {
	w := NewWaker()
	w.Wake()
	w.Wake()
	w.Wake()

	select {
	case <-w.C():
	default:
		t.Fatal("expected a pending wake")
	}

	select {
	case <-w.C():
		t.Fatal("wakes should coalesce into one signal")
	default:
	}
}

func TestFuturePollPendingThenReady(t *testing.T) {
	w := NewWaker()
	release := make(chan struct{})

	f := Spawn(context.Background(), w, func(ctx context.Context) (int, error) {
		<-release
		return 42, nil
	})

	val, ready, err := f.Poll()
	assert.False(t, ready)
	assert.Zero(t, val)
	assert.NoError(t, err)

	close(release)

	select {
	case <-w.C():
	case <-time.After(time.Second):
		t.Fatal("completion did not wake")
	}

	val, ready, err = f.Poll()
	require.True(t, ready)
	assert.NoError(t, err)
	assert.Equal(t, 42, val)

	// Polling again returns the same result
	val, ready, _ = f.Poll()
	assert.True(t, ready)
	assert.Equal(t, 42, val)
}

func TestFutureCarriesError(t *testing.T) {
	boom := errors.New("boom")
	f := Spawn(context.Background(), nil, func(ctx context.Context) (string, error) {
		return "", boom
	})

	<-f.Done()
	_, ready, err := f.Poll()
	assert.True(t, ready)
	assert.ErrorIs(t, err, boom)
}

func TestAbandonCancelsContext(t *testing.T) {
	f := Spawn(context.Background(), nil, func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})

	f.Abandon()

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("abandoned future did not observe cancellation")
	}
	_, _, err := f.Poll()
	assert.ErrorIs(t, err, context.Canceled)
}
