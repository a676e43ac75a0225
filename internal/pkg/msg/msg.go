package msg

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Topic identifies a message stream on a PubSub
type Topic int

const (
	// Progress carries the progress of a running simulation
	Progress Topic = iota
	// Summary carries the result of one replication
	Summary
	// Status carries the final indices of a run
	Status
)

func (t Topic) String() string {
	switch t {
	case Progress:
		return "progress"
	case Summary:
		return "summary"
	case Status:
		return "status"
	default:
		return "unknown"
	}
}

// ErrClosed is returned when subscribing to a closed PubSub
var ErrClosed = errors.New("msg: publisher closed")

// Publisher is an interface for objects that allow subscribtion to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a single published event
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the topic the message was published on
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

type subscription struct {
	topic Topic
	ch    chan Msg
}

// PubSub fans published messages out to subscribers by topic. Slow
// subscribers drop messages rather than block the publisher.
type PubSub struct {
	mux    *sync.RWMutex
	pid    uuid.UUID
	subs   map[uuid.UUID][]subscription
	closed bool
}

// NewPublisher returns an empty PubSub owned by pid
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.RWMutex{},
		pid:  pid,
		subs: make(map[uuid.UUID][]subscription),
	}
}

// Subscribe returns a buffered channel receiving every message on topic
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	ch := make(chan Msg, 50)
	p.subs[pid] = append(p.subs[pid], subscription{topic, ch})
	return ch, nil
}

// Unsubscribe closes every channel held by pid
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, s := range p.subs[pid] {
		close(s.ch)
	}
	delete(p.subs, pid)
}

// Publish sends payload to every subscriber of topic
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.mux.RLock()
	defer p.mux.RUnlock()
	if p.closed {
		return
	}
	m := New(p.pid, topic, payload)
	for _, subs := range p.subs {
		for _, s := range subs {
			if s.topic != topic {
				continue
			}
			select {
			case s.ch <- m:
			default:
			}
		}
	}
}

// Close unsubscribes everyone. Later publishes are ignored.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	for pid, subs := range p.subs {
		for _, s := range subs {
			close(s.ch)
		}
		delete(p.subs, pid)
	}
	p.closed = true
}
