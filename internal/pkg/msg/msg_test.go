package msg

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"gotest.tools/v3/assert"
)

func TestSubscribe(t *testing.T) {
	pidPub, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub1, err := uuid.NewUUID()
	assert.NilError(t, err)

	pidSub2, err := uuid.NewUUID()
	assert.NilError(t, err)

	pubsub := NewPublisher(pidPub)
	ch1, err := pubsub.Subscribe(pidSub1, Summary)
	assert.NilError(t, err)
	ch2, err := pubsub.Subscribe(pidSub2, Summary)
	assert.NilError(t, err)

	randValue := rand.Float64()
	pubsub.Publish(Summary, randValue)

	for _, ch := range []<-chan Msg{ch1, ch2} {
		incoming := <-ch
		assert.Equal(t, incoming.Payload(), randValue)
		assert.Equal(t, incoming.PID(), pidPub)
		assert.Equal(t, incoming.Topic(), Summary)
	}
}

func TestPublishFiltersTopic(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()
	ch, err := pubsub.Subscribe(pid, Progress)
	assert.NilError(t, err)

	pubsub.Publish(Summary, 1)
	pubsub.Publish(Progress, 2)
	assert.Equal(t, (<-ch).Payload(), 2)
	assert.Equal(t, len(ch), 0)
}

func TestUnsubscribe(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	pid := uuid.New()
	ch, err := pubsub.Subscribe(pid, Status)
	assert.NilError(t, err)

	pubsub.Unsubscribe(pid)
	_, ok := <-ch
	assert.Assert(t, !ok)

	// publishing to no one is fine
	pubsub.Publish(Status, 1)
}

func TestClose(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	ch, _ := pubsub.Subscribe(uuid.New(), Status)
	pubsub.Close()
	_, ok := <-ch
	assert.Assert(t, !ok)

	_, err := pubsub.Subscribe(uuid.New(), Status)
	assert.ErrorIs(t, err, ErrClosed)
	pubsub.Publish(Status, 1)
}

func TestPublishDoesNotBlockOnFullInbox(t *testing.T) {
	pubsub := NewPublisher(uuid.New())
	ch, _ := pubsub.Subscribe(uuid.New(), Progress)
	for i := 0; i < 200; i++ {
		pubsub.Publish(Progress, i)
	}
	assert.Equal(t, len(ch), cap(ch))
}
