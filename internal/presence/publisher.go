package presence

import "sync"

// Status of a user as seen by the connection registry.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// Event is a status transition derived from registry changes.
type Event struct {
	User   string
	Status Status
	Avatar string
}

// Publisher fans status transitions out to subscribers. The registry publishes
// synchronously after releasing its own lock, so subscribers may call back
// into the registry without deadlocking.
type Publisher struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers fn for all subsequent transitions.
func (p *Publisher) Subscribe(fn func(Event)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// Publish delivers ev to every subscriber in subscription order.
func (p *Publisher) Publish(ev Event) {
	p.mu.RLock()
	subs := p.subs
	p.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
