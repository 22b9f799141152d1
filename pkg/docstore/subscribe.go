package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event carries either a fresh snapshot or a read failure.
type Event struct {
	Snapshot Snapshot
	Err      error
}

// Subscription streams snapshots of one path until closed.
type Subscription struct {
	path   Path
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe opens a live view of path. The first event carries the current
// state; later events follow every write that touches the path. Bursts of
// writes are coalesced into one re-read and unchanged snapshots are skipped.
// The caller must drain Events until it calls Close.
func (s *Store) Subscribe(ctx context.Context, path string, q Query) (*Subscription, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)
	stopListen, err := s.notifier.Listen(subCtx, s.topic(p.Collection), func(payload []byte) {
		if !affects(p, payload) {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	sub := &Subscription{
		path:   p,
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.metrics.SubscriptionOpened(p.Collection)
	s.logg.Debug(s.logg.WithPath(subCtx, p.String()), "docstore.subscribe")

	go func() {
		defer close(sub.done)
		defer close(sub.events)
		defer s.metrics.SubscriptionClosed(p.Collection)
		defer stopListen()
		sub.run(subCtx, s, q, wake)
	}()
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, s *Store, q Query, wake <-chan struct{}) {
	var last *Snapshot
	deliver := func() bool {
		snap, err := s.read(ctx, sub.path, q)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			last = nil
			return sub.send(ctx, Event{Err: err})
		}
		if last != nil && last.equal(snap) {
			return true
		}
		last = &snap
		return sub.send(ctx, Event{Snapshot: snap})
	}

	if !deliver() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			if !deliver() {
				return
			}
		}
	}
}

func (sub *Subscription) send(ctx context.Context, ev Event) bool {
	select {
	case sub.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Path returns the subscribed path.
func (sub *Subscription) Path() Path { return sub.path }

// Events is closed once the subscription ends.
func (sub *Subscription) Events() <-chan Event { return sub.events }

// Done is closed once the subscription has fully released its resources.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Close ends the subscription and waits for its goroutine to exit. It is safe
// to call more than once and from several goroutines.
func (sub *Subscription) Close() {
	sub.once.Do(sub.cancel)
	<-sub.done
}

func affects(p Path, payload []byte) bool {
	if !p.IsRecord() {
		return true
	}
	var c change
	if err := json.Unmarshal(payload, &c); err != nil {
		return true
	}
	return c.Key == "" || c.Key == p.Key
}
