package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAllTopicsReceivesEverything(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []Topic
	b.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Topic)
	})

	b.Emit(TopicSessionCreated, "s1", nil)
	b.Emit(TopicSandboxStatus, "s1", map[string]interface{}{"status": "ready"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Topic{TopicSessionCreated, TopicSandboxStatus}, got)
}

func TestSubscribeFiltersByTopic(t *testing.T) {
	b := New()
	var got []Topic
	b.Subscribe(func(ev Event) {
		got = append(got, ev.Topic)
	}, TopicSessionError)

	b.Emit(TopicSessionCreated, "s1", nil)
	b.Emit(TopicSessionError, "s1", map[string]interface{}{"message": "boom"})

	assert.Equal(t, []Topic{TopicSessionError}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	sub := b.Subscribe(func(ev Event) { count++ })
	b.Emit(TopicSessionCreated, "s1", nil)
	sub.Unsubscribe()
	b.Emit(TopicSessionCreated, "s1", nil)
	assert.Equal(t, 1, count)
}

func TestPublishUnknownTopicIsDroppedNotPanicked(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(func(ev Event) { called = true })
	assert.NotPanics(t, func() {
		b.Publish(Event{Topic: Topic("not:a:real:topic"), SessionID: "s1"})
	})
	assert.False(t, called)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Subscribe(func(Event) {})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(TopicSessionStatus, "s1", nil)
		}()
	}
	wg.Wait()
}
