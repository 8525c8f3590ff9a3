package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaspardpetit/findx/internal/events"
)

type fakeAudit struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (f *fakeAudit) Append(_ context.Context, env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.envs = append(f.envs, env)
	return nil
}

func (f *fakeAudit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envs)
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	audit := &fakeAudit{}
	b := New(Config{SourceFS: 4, MirrorText: 4}, audit)

	ch := b.Subscribe(events.TopicSourceFS)

	err := b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1", Path: "a.txt"})
	require.NoError(t, err)

	env := <-ch
	assert.Equal(t, events.TypeFileAdded, env.Type)
	assert.Equal(t, 1, env.V)
	assert.True(t, strings.HasPrefix(env.IdempotencyKey, "sha256:"))
	assert.Equal(t, 1, audit.count())
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	b := New(Config{SourceFS: 8}, &fakeAudit{})
	ch := b.Subscribe(events.TopicSourceFS)

	paths := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
	for _, p := range paths {
		require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1", Path: p}))
	}

	var seen []string
	for range paths {
		env := <-ch
		assert.Equal(t, events.TypeFileAdded, env.Type)
		seen = append(seen, env.Data.(events.FileAdded).Path)
	}
	assert.Equal(t, paths, seen)
}

func TestPublish_MultipleSubscribersAllReceive(t *testing.T) {
	b := New(Config{SourceFS: 4}, &fakeAudit{})
	ch1 := b.Subscribe(events.TopicSourceFS)
	ch2 := b.Subscribe(events.TopicSourceFS)

	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1"}))

	env1 := <-ch1
	env2 := <-ch2
	assert.Equal(t, env1.IdempotencyKey, env2.IdempotencyKey)
}

func TestPublish_FullQueueDropsSubscriberNotPublish(t *testing.T) {
	b := New(Config{SourceFS: 1}, &fakeAudit{})
	slow := b.Subscribe(events.TopicSourceFS)
	fast := b.Subscribe(events.TopicSourceFS)

	// Fill the slow subscriber's queue without draining it, while the
	// fast subscriber keeps draining its own.
	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1"}))
	<-fast
	assert.Equal(t, 2, b.SubscriberCount(events.TopicSourceFS))

	// Second publish finds slow's queue still full; slow is dropped, fast still works.
	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:2"}))
	assert.Equal(t, 1, b.SubscriberCount(events.TopicSourceFS))

	_, slowOpen := <-slow
	assert.True(t, slowOpen) // the first buffered event is still readable

	env2 := <-fast
	assert.Equal(t, "dev:2", env2.Data.(events.FileAdded).FileUID)
}

func TestPublish_NoCrossTopicOrderingGuarantee(t *testing.T) {
	b := New(Config{SourceFS: 4, MirrorText: 4}, &fakeAudit{})
	chFS := b.Subscribe(events.TopicSourceFS)
	chMirror := b.Subscribe(events.TopicMirrorText)

	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1"}))
	require.NoError(t, b.Publish(context.Background(), events.TopicMirrorText, events.MirrorDocUpserted{FileUID: "dev:1"}))

	envFS := <-chFS
	envMirror := <-chMirror
	assert.Equal(t, events.TopicSourceFS, envFS.Topic)
	assert.Equal(t, events.TopicMirrorText, envMirror.Topic)
}

func TestPublish_AuditFailurePropagatesError(t *testing.T) {
	audit := &fakeAudit{err: errors.New("disk full")}
	b := New(Config{SourceFS: 4}, audit)

	err := b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1"})
	assert.Error(t, err)
}

func TestIdempotencyKey_IdenticalPayloadsMatch(t *testing.T) {
	b := New(Config{SourceFS: 4}, &fakeAudit{})
	ch := b.Subscribe(events.TopicSourceFS)

	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1", Path: "a.txt"}))
	require.NoError(t, b.Publish(context.Background(), events.TopicSourceFS, events.FileAdded{FileUID: "dev:1", Path: "a.txt"}))

	env1 := <-ch
	env2 := <-ch
	assert.Equal(t, env1.IdempotencyKey, env2.IdempotencyKey)
}
