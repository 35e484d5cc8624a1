package buildlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_MutualExclusion(t *testing.T) {
	l := New()
	assert.False(t, l.IsHeld())

	l.Acquire()
	assert.True(t, l.IsHeld())

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
		l.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while lock still held")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release()
	assert.False(t, l.IsHeld())

	<-acquired
}

func TestLock_AtMostOneHolderUnderConcurrency(t *testing.T) {
	l := New()
	var active int32
	var maxActive int32
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Acquire()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			l.Release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxActive)
}
