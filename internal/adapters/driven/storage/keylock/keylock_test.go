package keylock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocker_SameKeyExcludes(t *testing.T) {
	l := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("city:meeting:1")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Len())
}

func TestLocker_DifferentKeysIndependent(t *testing.T) {
	l := New()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind lock on a")
	}
}

func TestLocker_UnlockIdempotent(t *testing.T) {
	var l Locker
	unlock := l.Lock("k")
	unlock()
	unlock()

	assert.Equal(t, 0, l.Len())

	// Key is reusable after release.
	unlock = l.Lock("k")
	assert.Equal(t, 1, l.Len())
	unlock()
}
