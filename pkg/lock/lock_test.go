package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	s := New(4)
	var counter int
	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			s.WithLock("element-1", func() {
				cur := counter
				time.Sleep(time.Microsecond)
				counter = cur + 1
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, n, counter)
}

func TestDifferentKeysCanProceedConcurrently(t *testing.T) {
	s := New(8)
	started := make(chan struct{}, 2)
	release := make(chan struct{})

	go s.WithLock("a", func() {
		started <- struct{}{}
		<-release
	})
	go s.WithLock("b", func() {
		started <- struct{}{}
		<-release
	})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first goroutine never entered its critical section")
	}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("distinct keys contended on the same stripe and deadlocked")
	}
	close(release)
}

func TestNewRejectsNonPositiveWidth(t *testing.T) {
	s := New(0)
	assert.Len(t, s.stripes, 1)
	assert.NotPanics(t, func() { s.WithLock("x", func() {}) })
}

func TestIndexIsStableForSameKey(t *testing.T) {
	s := New(16)
	first := s.index("project-42:doc-7:default")
	second := s.index("project-42:doc-7:default")
	assert.Equal(t, first, second)
}
