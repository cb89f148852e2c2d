package common

import (
	"github.com/stretchr/testify/assert"
	"sync"
	"testing"
	"time"
)

func TestKeyMutex_Serializes_Same_Key(t *testing.T) {
	m := KeyMutex[int]{}
	inside, maxInside := 0, 0
	var mu sync.Mutex

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Lock(1)
			defer release()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Zero(t, m.Len(), "unused keys should be dropped")
}

func TestKeyMutex_Different_Keys_Do_Not_Block(t *testing.T) {
	m := KeyMutex[string]{}
	releaseA := m.Lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := m.Lock("b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another key blocked")
	}
	assert.Equal(t, 1, m.Len())
}

func TestSignal_Broadcast_Wakes_Waiters(t *testing.T) {
	s := NewSignal()
	w1, w2 := s.Wait(), s.Wait()

	select {
	case <-w1:
		t.Fatal("woken before broadcast")
	default:
	}

	s.Broadcast()
	<-w1
	<-w2

	// waiters after a broadcast wait for the next one
	select {
	case <-s.Wait():
		t.Fatal("new waiter woken by an old broadcast")
	default:
	}
}

func TestStats(t *testing.T) {
	s := NewStats()
	s.Incr("hits")
	s.Incr("hits")
	s.Add("bytes", 10)

	assert.Equal(t, int64(2), s.Get("hits"))
	assert.Equal(t, int64(0), s.Get("misses"))

	snap := s.Snapshot()
	s.Incr("hits")
	assert.Equal(t, map[string]int64{"hits": 2, "bytes": 10}, snap)
}

func TestAssert_Panics_With_Message(t *testing.T) {
	assert.PanicsWithValue(t, "page 3 is full", func() { Assert(false, "page %d is full", 3) })
	assert.NotPanics(t, func() { Assert(true, "unused") })
}
