package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSameTopicHandlersRunInOrder(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		b.Register(TopicOrderUpdate, func(payload any) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	b.Start()
	defer b.Stop()

	b.Publish(TopicOrderUpdate, "x")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestFailingHandlerDoesNotBlockSiblings(t *testing.T) {
	b := New()
	var ran bool
	var mu sync.Mutex

	b.Register(TopicSystemError, func(payload any) error {
		panic("boom")
	})
	b.Register(TopicSystemError, func(payload any) error {
		mu.Lock()
		ran = true
		mu.Unlock()
		return nil
	})
	b.Start()
	defer b.Stop()

	b.Publish(TopicSystemError, "x")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ran
	}, time.Second, time.Millisecond)
}

func TestOverflowDropsWithoutBlocking(t *testing.T) {
	b := New()
	block := make(chan struct{})
	b.Register(TopicTickUpdate, func(payload any) error {
		<-block
		return nil
	})
	b.Start()
	defer func() {
		close(block)
		b.Stop()
	}()

	for i := 0; i < tickQueueSize+10; i++ {
		b.Publish(TopicTickUpdate, i)
	}
	// Should not deadlock or block despite the handler stalling on the first item.
}

func TestDifferentTopicsProgressIndependently(t *testing.T) {
	b := New()
	slow := make(chan struct{})
	fastDone := make(chan struct{})

	b.Register(TopicOrderUpdate, func(payload any) error {
		<-slow
		return nil
	})
	b.Register(TopicTradeCreated, func(payload any) error {
		close(fastDone)
		return nil
	})
	b.Start()
	defer func() {
		close(slow)
		b.Stop()
	}()

	b.Publish(TopicOrderUpdate, "blocked")
	b.Publish(TopicTradeCreated, "fast")

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("fast topic should not be blocked by a stalled sibling topic")
	}
}
