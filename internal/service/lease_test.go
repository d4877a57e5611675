package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"handoff/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseAcquireAndRelease(t *testing.T) {
	leases := newLeaseRegistry(50 * time.Millisecond)

	release, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	release()

	release, err = leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	release()
}

func TestLeaseContentionTimesOutBusy(t *testing.T) {
	leases := newLeaseRegistry(30 * time.Millisecond)

	release, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	defer release()

	_, err = leases.acquire(context.Background(), "conv-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBusy))
	assert.True(t, errors.IsRetryable(err))
}

func TestLeasesAreIndependentPerConversation(t *testing.T) {
	leases := newLeaseRegistry(30 * time.Millisecond)

	release1, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	defer release1()

	release2, err := leases.acquire(context.Background(), "conv-2")
	require.NoError(t, err)
	defer release2()
}

func TestLeaseWaitersProceedAfterRelease(t *testing.T) {
	leases := newLeaseRegistry(time.Second)

	release, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r, acquireErr := leases.acquire(context.Background(), "conv-1")
		assert.NoError(t, acquireErr)
		r()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lease after release")
	}
}

func TestLeaseSerializesCriticalSections(t *testing.T) {
	leases := newLeaseRegistry(5 * time.Second)

	var mu sync.Mutex
	inSection := 0
	maxInSection := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := leases.acquire(context.Background(), "conv-1")
			if err != nil {
				return
			}
			mu.Lock()
			inSection++
			if inSection > maxInSection {
				maxInSection = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInSection, "at most one holder at a time")
}

func TestLeaseSlotsReapedWhenIdle(t *testing.T) {
	leases := newLeaseRegistry(30 * time.Millisecond)

	release1, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	release2, err := leases.acquire(context.Background(), "conv-2")
	require.NoError(t, err)
	assert.Equal(t, 2, leases.size())

	release1()
	assert.Equal(t, 1, leases.size(), "released slot is reaped")

	// A timed-out waiter must not keep the slot alive past the holder.
	_, err = leases.acquire(context.Background(), "conv-2")
	require.Error(t, err)
	assert.Equal(t, 1, leases.size())

	release2()
	assert.Equal(t, 0, leases.size(), "registry is empty once all leases are released")
}

func TestLeaseSlotsReapedUnderChurn(t *testing.T) {
	leases := newLeaseRegistry(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				release, err := leases.acquire(context.Background(), "conv-1")
				if assert.NoError(t, err) {
					release()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, leases.size())
}

func TestLeaseAcquireHonorsContextCancellation(t *testing.T) {
	leases := newLeaseRegistry(10 * time.Second)

	release, err := leases.acquire(context.Background(), "conv-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = leases.acquire(ctx, "conv-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBusy))
	assert.Less(t, time.Since(start), 5*time.Second)
}
