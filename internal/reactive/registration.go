package reactive

import (
	"context"
	"fmt"

	"aura/internal/auracrypto"
	"aura/internal/capability"
	"aura/internal/query"
)

// registration is the trait-object spec §4.10 describes: a table entry
// that owns a signal, its originating typed query, and that query's
// dependency predicates, without the table itself needing to know the
// query's result type T.
type registration interface {
	dependencies() []query.PredicatePattern
	reexecute(ctx context.Context, engine *query.Engine) error
}

type registrationOf[T any] struct {
	signal  *Signal[T]
	query   query.Query[T]
	granted []capability.Cap
}

func (r *registrationOf[T]) dependencies() []query.PredicatePattern {
	return r.query.Dependencies()
}

func (r *registrationOf[T]) reexecute(ctx context.Context, engine *query.Engine) error {
	result, err := query.Execute(ctx, engine, r.granted, r.query)
	if err != nil {
		return err
	}
	r.signal.set(result)
	return nil
}

// identity is satisfied by any query.Query[T] regardless of T, since
// neither method mentions the type parameter — used only to derive a
// subscription fingerprint from a query's program text.
type identity interface {
	Program() string
	ResultQuery() string
}

// fingerprintOf derives a stable identity for q from its Datalog program
// and result query, the same BLAKE3-over-canonical-bytes approach
// internal/query's Engine.Snapshot uses for its prestate hash.
func fingerprintOf(q identity) string {
	h := auracrypto.Hash([]byte(q.Program() + "\x00" + q.ResultQuery()))
	return fmt.Sprintf("%x", h)
}
