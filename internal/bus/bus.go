// Package bus implements the typed, synchronous publish/subscribe event bus:
// a closed set of event names, in-order delivery per emission, and isolated
// handler failures.
package bus

import "sync"

// Name is one of the closed set of event names the bus accepts.
type Name string

const (
	RepoResolved      Name = "repo:resolved"
	TaskDiscovered    Name = "task:discovered"
	TaskSelected      Name = "task:selected"
	BudgetEstimated   Name = "budget:estimated"
	ExecutionStarted  Name = "execution:started"
	ExecutionProgress Name = "execution:progress"
	ExecutionCompleted Name = "execution:completed"
	ExecutionFailed   Name = "execution:failed"
	PRCreated         Name = "pr:created"
	PRMerged          Name = "pr:merged"
	RunCompleted      Name = "run:completed"
)

// Handler receives an emission's payload. It must not panic in a way the bus
// needs to recover from gracefully — handler panics are recovered per-handler
// so one bad subscriber cannot prevent delivery to the others.
type Handler func(payload interface{})

// subscription identifies one registered handler so Off can remove it, and
// tracks whether it was registered via Once.
type subscription struct {
	handler Handler
	once    bool
}

// Bus is a synchronous, in-process event emitter keyed by Name.
type Bus struct {
	mu   sync.Mutex
	subs map[Name][]*subscription
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Name][]*subscription)}
}

// On registers handler to receive every emission of name, in registration order.
func (b *Bus) On(name Name, handler Handler) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{handler: handler}
	b.subs[name] = append(b.subs[name], sub)
	return sub
}

// Once registers handler to receive exactly one emission of name.
func (b *Bus) Once(name Name, handler Handler) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{handler: handler, once: true}
	b.subs[name] = append(b.subs[name], sub)
	return sub
}

// Off removes a specific subscription returned by On/Once.
func (b *Bus) Off(sub *subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, list := range b.subs {
		for i, s := range list {
			if s == sub {
				b.subs[name] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers payload to every handler registered for name, in registration
// order. A handler that panics is isolated — its panic is recovered and
// delivery continues to the remaining handlers for this emission.
func (b *Bus) Emit(name Name, payload interface{}) {
	b.mu.Lock()
	list := make([]*subscription, len(b.subs[name]))
	copy(list, b.subs[name])
	b.mu.Unlock()

	var toRemove []*subscription
	for _, sub := range list {
		func() {
			defer func() { _ = recover() }()
			sub.handler(payload)
		}()
		if sub.once {
			toRemove = append(toRemove, sub)
		}
	}

	if len(toRemove) > 0 {
		b.mu.Lock()
		for _, sub := range toRemove {
			list := b.subs[name]
			for i, s := range list {
				if s == sub {
					b.subs[name] = append(list[:i], list[i+1:]...)
					break
				}
			}
		}
		b.mu.Unlock()
	}
}
