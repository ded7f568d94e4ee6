package harness

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotPoolHandsOutAllLanes(t *testing.T) {
	pool := NewSlotPool(3)
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		seen[pool.Acquire()] = true
	}
	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}

func TestSlotPoolBlocksWhenEmptyAndReleaseUnblocks(t *testing.T) {
	pool := NewSlotPool(1)
	id := pool.Acquire()

	acquired := make(chan int)
	go func() {
		acquired <- pool.Acquire()
	}()

	select {
	case got := <-acquired:
		t.Fatalf("acquire should have blocked, got lane %d", got)
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(id)
	select {
	case got := <-acquired:
		assert.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for acquire to unblock")
	}
}

func TestSlotPoolNeverLeasesLaneTwice(t *testing.T) {
	const lanes = 4
	const workers = 20
	pool := NewSlotPool(lanes)

	var active, maxActive int32
	inUse := make([]int32, lanes)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				id := pool.Acquire()
				require.True(t, atomic.CompareAndSwapInt32(&inUse[id], 0, 1),
					"lane %d was leased to two workers at once", id)
				cur := atomic.AddInt32(&active, 1)
				for {
					prev := atomic.LoadInt32(&maxActive)
					if cur <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, cur) {
						break
					}
				}
				atomic.AddInt32(&active, -1)
				atomic.StoreInt32(&inUse[id], 0)
				pool.Release(id)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(lanes))
}
