package reactive

import (
	"context"
	"strconv"
	"sync"

	"aura/internal/capability"
	"aura/internal/query"
)

// Bridge is the engine from spec §4.10: the live table from SignalID to
// registration, plus the query.Engine every registration re-executes
// against on invalidation.
type Bridge struct {
	mu            sync.RWMutex
	engine        *query.Engine
	logger        Logger
	registrations map[SignalID]registration
	nextID        uint64
}

func NewBridge(engine *query.Engine, logger Logger) *Bridge {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Bridge{
		engine:        engine,
		logger:        logger,
		registrations: make(map[SignalID]registration),
	}
}

// Subscription is what Subscribe returns: the signal's id, a fingerprint
// derived from the query's identity, the signal itself, and a function
// to drop the registration entirely.
type Subscription[T any] struct {
	ID          SignalID
	Fingerprint string
	Signal      *Signal[T]
	Unsubscribe func()
}

// Subscribe runs q once to seed its signal, registers it against every
// predicate it depends on, and returns the live subscription. Go methods
// cannot carry their own type parameters, so this is a free function.
func Subscribe[T any](ctx context.Context, b *Bridge, granted []capability.Cap, q query.Query[T]) (*Subscription[T], error) {
	result, err := query.Execute(ctx, b.engine, granted, q)
	if err != nil {
		return nil, err
	}

	sig := newSignal(result)
	reg := &registrationOf[T]{signal: sig, query: q, granted: granted}

	b.mu.Lock()
	b.nextID++
	id := SignalID(fingerprintOf(q) + "-" + strconv.FormatUint(b.nextID, 10))
	b.registrations[id] = reg
	b.mu.Unlock()

	return &Subscription[T]{
		ID:          id,
		Fingerprint: fingerprintOf(q),
		Signal:      sig,
		Unsubscribe: func() { b.unregister(id) },
	}, nil
}

func (b *Bridge) unregister(id SignalID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.registrations, id)
}

// Invalidate re-executes every registration whose dependencies include
// predicate, emitting the fresh result to each one's signal. A failed
// re-execution is logged at warn level and does not stop the scan or
// propagate to the caller.
func (b *Bridge) Invalidate(ctx context.Context, predicate string) {
	b.mu.RLock()
	var matched []struct {
		id  SignalID
		reg registration
	}
	for id, reg := range b.registrations {
		for _, dep := range reg.dependencies() {
			if dep.Predicate == predicate {
				matched = append(matched, struct {
					id  SignalID
					reg registration
				}{id, reg})
				break
			}
		}
	}
	b.mu.RUnlock()

	for _, m := range matched {
		if err := m.reg.reexecute(ctx, b.engine); err != nil {
			b.logger.InvalidationFailed(string(m.id), predicate, err)
		}
	}
}
