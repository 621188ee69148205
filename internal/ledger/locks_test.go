package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocks(t *testing.T) {
	t.Run("ReleasedEntriesAreDropped", func(t *testing.T) {
		locks := newUserLocks()
		for i := 0; i < 100; i++ {
			unlock := locks.lock(fmt.Sprintf("u%d", i))
			unlock()
		}
		assert.Zero(t, locks.size())
	})

	t.Run("SameUserSerializes", func(t *testing.T) {
		locks := newUserLocks()
		unlock := locks.lock("u1")

		acquired := make(chan struct{})
		go func() {
			release := locks.lock("u1")
			close(acquired)
			release()
		}()

		select {
		case <-acquired:
			t.Fatal("second holder acquired a held lock")
		case <-time.After(50 * time.Millisecond):
		}
		assert.Equal(t, 1, locks.size())

		unlock()
		<-acquired
		assert.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("ConcurrentUsers", func(t *testing.T) {
		locks := newUserLocks()
		var wg sync.WaitGroup
		counts := make(map[string]int)
		var mu sync.Mutex
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				unlock := locks.lock(id)
				defer unlock()
				mu.Lock()
				counts[id]++
				mu.Unlock()
			}(fmt.Sprintf("u%d", i%5))
		}
		wg.Wait()

		assert.Len(t, counts, 5)
		assert.Zero(t, locks.size())
	})
}
