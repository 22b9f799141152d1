// Package mirror keeps a render-ready local copy of a live store path.
//
// A Mirror subscribes to a collection or record, turns every snapshot into a
// sorted slice of typed rows, and publishes the result until it is closed.
// Each view is derived from the latest snapshot alone; nothing carries over
// from earlier snapshots.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/angelmondragon/nursecall-backend/pkg/docstore"
	"github.com/angelmondragon/nursecall-backend/pkg/logger"
	"github.com/angelmondragon/nursecall-backend/pkg/metrics"
)

// Placeholder is rendered for required display fields that are missing.
const Placeholder = "—"

// Feed is a live stream of snapshots for one path.
type Feed interface {
	Events() <-chan docstore.Event
	Close()
}

// Source opens feeds.
type Source interface {
	Open(ctx context.Context, path string, q docstore.Query) (Feed, error)
}

type storeSource struct {
	store *docstore.Store
}

// FromStore adapts a document store into a Source.
func FromStore(store *docstore.Store) Source {
	return storeSource{store: store}
}

func (s storeSource) Open(ctx context.Context, path string, q docstore.Query) (Feed, error) {
	return s.store.Subscribe(ctx, path, q)
}

// View is what a consumer renders. Loaded is false until the first snapshot
// arrives, so "still loading" never looks like "empty".
type View[T any] struct {
	Loaded bool
	Items  []T
	// Err is the last store error; Items holds the fallback while it is set.
	Err error
}

// Spec describes what to mirror and how to shape it.
type Spec[T any] struct {
	// Name labels logs and metrics; defaults to the collection of Path.
	Name  string
	Path  string
	Query docstore.Query
	// Decode maps one stored record to a row. It must tolerate missing fields.
	Decode func(key string, rec docstore.Record) T
	// Less orders rows client side; nil keeps store order.
	Less func(a, b T) bool
	// Fallback is shown after a store error; nil means an empty list.
	Fallback []T
}

// Options wires optional observers.
type Options[T any] struct {
	OnChange func(View[T])
	Logger   *logger.Logger
	Metrics  *metrics.StoreMetrics
}

var errMissingDecode = errors.New("mirror spec requires a decode func")

// Mirror is a live, sorted local copy of a store path.
type Mirror[T any] struct {
	spec    Spec[T]
	name    string
	feed    Feed
	opts    Options[T]
	ctx     context.Context
	updates chan View[T]
	done    chan struct{}

	mu   sync.RWMutex
	view View[T]

	// deliverMu is held while a snapshot is applied and announced.
	deliverMu  sync.Mutex
	closed     atomic.Bool
	inCallback atomic.Bool
	closeOnce  sync.Once
}

// Open subscribes and starts mirroring.
func Open[T any](ctx context.Context, src Source, spec Spec[T], opts Options[T]) (*Mirror[T], error) {
	if spec.Decode == nil {
		return nil, errMissingDecode
	}
	p, err := docstore.ParsePath(spec.Path)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logger.New(logger.Options{ServiceName: "mirror", Output: io.Discard})
	}
	name := spec.Name
	if name == "" {
		name = p.Collection
	}

	feed, err := src.Open(ctx, spec.Path, spec.Query)
	if err != nil {
		return nil, fmt.Errorf("open mirror %s: %w", name, err)
	}

	m := &Mirror[T]{
		spec:    spec,
		name:    name,
		feed:    feed,
		opts:    opts,
		ctx:     opts.Logger.WithField(opts.Logger.WithPath(ctx, spec.Path), "mirror", name),
		updates: make(chan View[T], 1),
		done:    make(chan struct{}),
	}
	opts.Metrics.MirrorOpened(name)
	opts.Logger.Debug(m.ctx, "mirror.start")
	go m.loop()
	return m, nil
}

func (m *Mirror[T]) loop() {
	defer close(m.done)
	defer close(m.updates)
	defer m.opts.Metrics.MirrorClosed(m.name)
	defer m.closed.Store(true)

	for ev := range m.feed.Events() {
		if m.closed.Load() {
			continue
		}
		m.apply(m.transform(ev))
	}
}

func (m *Mirror[T]) transform(ev docstore.Event) View[T] {
	if ev.Err != nil {
		fallback := append([]T(nil), m.spec.Fallback...)
		if fallback == nil {
			fallback = []T{}
		}
		return View[T]{Loaded: true, Items: fallback, Err: ev.Err}
	}

	snap := ev.Snapshot
	items := make([]T, 0, snap.Len())
	if snap.Path().IsRecord() {
		if snap.Exists() {
			items = append(items, m.spec.Decode(snap.Key(), snap.Val()))
		}
	} else {
		for _, child := range snap.Children() {
			items = append(items, m.spec.Decode(child.Key, child.Value))
		}
	}
	if m.spec.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return m.spec.Less(items[i], items[j]) })
	}
	return View[T]{Loaded: true, Items: items}
}

func (m *Mirror[T]) apply(next View[T]) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	m.view = next
	m.mu.Unlock()

	if next.Err != nil {
		m.opts.Logger.Warn(m.ctx, "mirror.fallback: "+next.Err.Error())
	}
	m.opts.Metrics.SnapshotApplied(m.name)

	select {
	case <-m.updates:
	default:
	}
	m.updates <- next

	if m.opts.OnChange != nil {
		m.inCallback.Store(true)
		m.opts.OnChange(next)
		m.inCallback.Store(false)
	}
}

// View returns the current view.
func (m *Mirror[T]) View() View[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// Updates yields the newest view after each change. Stale views are dropped
// when the reader falls behind. The channel closes when the mirror stops.
func (m *Mirror[T]) Updates() <-chan View[T] { return m.updates }

// Done is closed once the mirror has stopped.
func (m *Mirror[T]) Done() <-chan struct{} { return m.done }

// Name returns the label used for logs and metrics.
func (m *Mirror[T]) Name() string { return m.name }

// Close releases the subscription. Once it returns, the view is never changed
// again and OnChange is not invoked again. Close may be called repeatedly,
// concurrently, and from inside OnChange.
func (m *Mirror[T]) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.feed.Close()
		m.opts.Logger.Debug(m.ctx, "mirror.closed")
	})
	if m.inCallback.Load() {
		return
	}
	<-m.done
}
