package service_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buymart/dealflow-api/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDealLocker_SerializesOneDeal(t *testing.T) {
	locker := service.NewDealLocker()
	dealID := uuid.New()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithDeal(dealID, func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Zero(t, locker.Held())
}

func TestDealLocker_IndependentDeals(t *testing.T) {
	locker := service.NewDealLocker()
	first, second := uuid.New(), uuid.New()

	unlock := locker.Lock(first)
	assert.Equal(t, 1, locker.Held())

	done := make(chan struct{})
	go func() {
		_ = locker.WithDeal(second, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("a held deal lock blocked another deal")
	}

	unlock()
	assert.Zero(t, locker.Held())
}

func TestDealLocker_ReturnsCallbackError(t *testing.T) {
	locker := service.NewDealLocker()
	err := locker.WithDeal(uuid.New(), func() error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, locker.Held())
}
