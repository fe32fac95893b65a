package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	_ "github.com/google/mangle/packages"
	"github.com/google/mangle/parse"
	"github.com/google/mangle/unionfind"

	"aura/internal/auracrypto"
	"aura/internal/capability"
)

// Engine holds the base fact schema and the live fact store every query
// executes against (or clones of it, for isolation and snapshots). The
// base schema holds the permanent journal-derived facts; each query's
// own rules evaluate against a throwaway clone so that two queries
// defining differently-shaped derived predicates of the same name never
// collide in shared state.
type Engine struct {
	cfg Config

	mu             sync.RWMutex
	baseStore      factstore.FactStoreWithRemove
	store          factstore.ConcurrentFactStore
	baseSchema     []parse.SourceUnit
	predicateIndex map[string]ast.PredicateSym
	bloom          *bloomFilter
}

// NewEngine constructs an empty Engine under cfg.
func NewEngine(cfg Config) *Engine {
	base := factstore.NewSimpleInMemoryStore()
	return &Engine{
		cfg:            cfg,
		baseStore:      base,
		store:          factstore.NewConcurrentFactStore(base),
		predicateIndex: make(map[string]ast.PredicateSym),
		bloom:          newBloomFilter(cfg.BloomExpectedPredicates, cfg.BloomFalsePositiveRate),
	}
}

// LoadSchema declares the base predicates (and any permanently-true
// rules) every query may depend on — e.g. the journal's device,
// guardian, and capability-grant facts. Schema fragments accumulate;
// later queries see every previously loaded declaration.
func (e *Engine) LoadSchema(source string) error {
	unit, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		return &ExecutionError{Reason: "parse base schema", Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseSchema = append(e.baseSchema, unit)
	return e.reindexLocked()
}

func (e *Engine) reindexLocked() error {
	var clauses []ast.Clause
	var decls []ast.Decl
	for _, frag := range e.baseSchema {
		clauses = append(clauses, frag.Clauses...)
		decls = append(decls, frag.Decls...)
	}
	unit := parse.SourceUnit{Clauses: clauses, Decls: decls}

	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return &ExecutionError{Reason: "analyze base schema", Cause: err}
	}

	index := make(map[string]ast.PredicateSym, len(info.Decls))
	for sym := range info.Decls {
		index[sym.Symbol] = sym
		e.bloom.Add(sym.Symbol)
	}
	e.predicateIndex = index
	return nil
}

// AddFacts inserts facts into the engine's live store. Every predicate
// must already be declared via LoadSchema.
func (e *Engine) AddFacts(facts []Fact) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range facts {
		if err := e.insertFactLocked(f); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) insertFactLocked(f Fact) error {
	sym, ok := e.predicateIndex[f.Predicate]
	if !ok {
		return &ExecutionError{Reason: fmt.Sprintf("predicate %s is not declared", f.Predicate)}
	}
	if len(f.Args) != sym.Arity {
		return &ExecutionError{Reason: fmt.Sprintf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))}
	}

	args := make([]ast.BaseTerm, len(f.Args))
	for i, raw := range f.Args {
		term, err := convertValue(raw)
		if err != nil {
			return &ExecutionError{Reason: fmt.Sprintf("predicate %s arg %d", f.Predicate, i), Cause: err}
		}
		args[i] = term
	}

	e.store.Add(ast.Atom{Predicate: sym, Args: args})
	e.bloom.Add(f.Predicate)
	return nil
}

// Snapshot is a frozen, content-addressed copy of the engine's fact
// store, per spec §4.8's "snapshot identified by a prestate hash".
type Snapshot struct {
	Hash  [auracrypto.HashSize]byte
	store factstore.ConcurrentFactStore
}

// HashHex returns the snapshot's prestate hash as a hex string, the
// form callers use as a SnapshotStore key.
func (s *Snapshot) HashHex() string {
	return fmt.Sprintf("%x", s.Hash)
}

// Snapshot clones the current fact store and computes its prestate
// hash (BLAKE3 over a canonical CBOR encoding of the sorted fact set,
// the same primitives the journal uses for event hashing).
func (e *Engine) Snapshot() (*Snapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	facts := e.snapshotFactsLocked()
	data, err := auracrypto.CanonicalMarshal(facts)
	if err != nil {
		return nil, &ExecutionError{Reason: "marshal snapshot facts", Cause: err}
	}
	return &Snapshot{Hash: auracrypto.Hash(data), store: cloneStore(e.store)}, nil
}

func (e *Engine) snapshotFactsLocked() []Fact {
	var facts []Fact
	for _, sym := range e.store.ListPredicates() {
		_ = e.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
			args := make([]interface{}, len(atom.Args))
			for i, a := range atom.Args {
				args[i] = convertTermToValue(a)
			}
			facts = append(facts, Fact{Predicate: sym.Symbol, Args: args})
			return nil
		})
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Predicate != facts[j].Predicate {
			return facts[i].Predicate < facts[j].Predicate
		}
		return fmt.Sprint(facts[i].Args) < fmt.Sprint(facts[j].Args)
	})
	return facts
}

func cloneStore(src factstore.ConcurrentFactStore) factstore.ConcurrentFactStore {
	base := factstore.NewSimpleInMemoryStore()
	clone := factstore.NewConcurrentFactStore(base)
	for _, sym := range src.ListPredicates() {
		_ = src.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
			clone.Add(atom)
			return nil
		})
	}
	return clone
}

// Execute runs the four-step pipeline from spec §4.8 against the
// engine's current fact store: capability check, bloom-filter
// dependency pre-check, rule evaluation, result parsing. Go methods
// cannot carry their own type parameters, so Execute and
// ExecuteAgainstSnapshot are free functions parameterized over the
// query's result type.
func Execute[T any](ctx context.Context, e *Engine, granted []capability.Cap, q Query[T]) (T, error) {
	var zero T
	if err := checkCapabilities(granted, q); err != nil {
		return zero, err
	}

	e.mu.RLock()
	present := bloomMayContain(e.bloom, q.Dependencies())
	var scratch factstore.ConcurrentFactStore
	var fragments []parse.SourceUnit
	if present {
		scratch = cloneStore(e.store)
		fragments = append([]parse.SourceUnit{}, e.baseSchema...)
	}
	e.mu.RUnlock()

	if !present {
		return parseEmpty(q)
	}

	return runQuery(scratch, fragments, q)
}

// ExecuteAgainstSnapshot runs the same pipeline against a frozen
// Snapshot rather than the engine's live store, for isolation's
// Snapshot{prestate_hash} level.
func ExecuteAgainstSnapshot[T any](ctx context.Context, e *Engine, granted []capability.Cap, q Query[T], snap *Snapshot) (T, error) {
	var zero T
	if snap == nil {
		return zero, &SnapshotNotAvailableError{Hash: "<nil>"}
	}
	if err := checkCapabilities(granted, q); err != nil {
		return zero, err
	}

	e.mu.RLock()
	present := bloomMayContain(e.bloom, q.Dependencies())
	fragments := append([]parse.SourceUnit{}, e.baseSchema...)
	e.mu.RUnlock()

	if !present {
		return parseEmpty(q)
	}

	scratch := cloneStore(snap.store)
	return runQuery(scratch, fragments, q)
}

func checkCapabilities[T any](granted []capability.Cap, q Query[T]) error {
	for _, required := range q.RequiredCapabilities() {
		if !authorized(granted, required) {
			return &MissingCapabilityError{Cap: required}
		}
	}
	return nil
}

func bloomMayContain(b *bloomFilter, deps []PredicatePattern) bool {
	for _, dep := range deps {
		if !b.MayContain(dep.Predicate) {
			return false
		}
	}
	return true
}

func parseEmpty[T any](q Query[T]) (T, error) {
	var zero T
	empty, err := q.ParseResult(nil)
	if err != nil {
		return zero, &ExecutionError{Reason: "parse empty result", Cause: err}
	}
	return empty, nil
}

func runQuery[T any](store factstore.ConcurrentFactStore, baseFragments []parse.SourceUnit, q Query[T]) (T, error) {
	var zero T
	bindings, err := evaluate(store, baseFragments, q.Program(), q.ResultQuery())
	if err != nil {
		return zero, &ExecutionError{Reason: "evaluate query program", Cause: err}
	}
	result, err := q.ParseResult(bindings)
	if err != nil {
		return zero, &ExecutionError{Reason: "parse result bindings", Cause: err}
	}
	return result, nil
}

// evaluate compiles program against baseFragments, evaluates every rule
// into store, then evaluates resultQuery and collects its bindings.
func evaluate(store factstore.ConcurrentFactStore, baseFragments []parse.SourceUnit, program, resultQuery string) ([]Binding, error) {
	programUnit, err := parse.Unit(strings.NewReader(program))
	if err != nil {
		return nil, fmt.Errorf("parse query program: %w", err)
	}

	var clauses []ast.Clause
	var decls []ast.Decl
	for _, frag := range baseFragments {
		clauses = append(clauses, frag.Clauses...)
		decls = append(decls, frag.Decls...)
	}
	clauses = append(clauses, programUnit.Clauses...)
	decls = append(decls, programUnit.Decls...)
	unit := parse.SourceUnit{Clauses: clauses, Decls: decls}

	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("analyze query program: %w", err)
	}

	if _, err := mengine.EvalProgramWithStats(info, store); err != nil {
		return nil, fmt.Errorf("evaluate rules: %w", err)
	}

	shape, err := parseQueryShape(resultQuery)
	if err != nil {
		return nil, fmt.Errorf("parse result query: %w", err)
	}
	decl, ok := info.Decls[shape.atom.Predicate]
	if !ok {
		return nil, fmt.Errorf("result predicate %s is not declared", shape.atom.Predicate.Symbol)
	}
	if len(decl.Modes()) == 0 {
		return nil, fmt.Errorf("result predicate %s has no modes declared", shape.atom.Predicate.Symbol)
	}
	mode := decl.Modes()[0]

	predToRules := make(map[ast.PredicateSym][]ast.Clause)
	for _, clause := range info.Rules {
		predToRules[clause.Head.Predicate] = append(predToRules[clause.Head.Predicate], clause)
	}
	qc := &mengine.QueryContext{PredToRules: predToRules, PredToDecl: info.Decls, Store: store}

	var bindings []Binding
	err = qc.EvalQuery(shape.atom, mode, unionfind.New(), func(fact ast.Atom) error {
		row := make(Binding, len(shape.variables))
		for _, v := range shape.variables {
			if v.Index >= len(fact.Args) {
				continue
			}
			row[v.Name] = convertTermToValue(fact.Args[v.Index])
		}
		bindings = append(bindings, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query result predicate: %w", err)
	}
	return bindings, nil
}

type queryVariable struct {
	Name  string
	Index int
}

type queryShape struct {
	atom      ast.Atom
	variables []queryVariable
}

func parseQueryShape(query string) (*queryShape, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return nil, fmt.Errorf("empty query")
	}
	clean = strings.TrimPrefix(clean, "?")
	clean = strings.TrimSpace(clean)
	clean = strings.TrimSuffix(clean, ".")

	atom, err := parse.Atom(clean)
	if err != nil {
		atom, err = parse.Atom(clean + ".")
		if err != nil {
			return nil, fmt.Errorf("failed to parse query %q: %w", query, err)
		}
	}

	var variables []queryVariable
	for idx, arg := range atom.Args {
		if v, ok := arg.(ast.Variable); ok {
			variables = append(variables, queryVariable{Name: v.Symbol, Index: idx})
		}
	}
	return &queryShape{atom: atom, variables: variables}, nil
}

// convertValue converts a Go value into a Mangle BaseTerm for fact
// insertion. This engine doesn't carry per-argument type bounds from the
// schema decl, so it always falls back to string/name/number heuristics.
func convertValue(value interface{}) (ast.BaseTerm, error) {
	switch v := value.(type) {
	case ast.BaseTerm:
		return v, nil
	case string:
		if strings.HasPrefix(v, "/") {
			return ast.Name(v)
		}
		if isIdentifier(v) {
			if name, err := ast.Name("/" + v); err == nil {
				return name, nil
			}
		}
		return ast.String(v), nil
	case int:
		return ast.Number(int64(v)), nil
	case int32:
		return ast.Number(int64(v)), nil
	case int64:
		return ast.Number(v), nil
	case uint64:
		return ast.Number(int64(v)), nil
	case float32:
		return ast.Float64(float64(v)), nil
	case float64:
		return ast.Float64(v), nil
	case bool:
		if v {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	case []byte:
		return ast.String(string(v)), nil
	default:
		return nil, fmt.Errorf("unsupported fact argument type %T", v)
	}
}

func convertTermToValue(term ast.BaseTerm) interface{} {
	switch v := term.(type) {
	case ast.Constant:
		switch v.Type {
		case ast.StringType, ast.NameType, ast.BytesType:
			return v.Symbol
		case ast.NumberType:
			return v.NumValue
		case ast.Float64Type:
			return math.Float64frombits(uint64(v.NumValue))
		default:
			return v.String()
		}
	case ast.Variable:
		return v.Symbol
	default:
		return fmt.Sprintf("%v", term)
	}
}

// isIdentifier reports whether s looks like a Mangle bare identifier
// ([a-z][a-zA-Z0-9_]*), the shape auto-promoted to a Name constant.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !((c >= 'a' && c <= 'z') || c == '_') {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}
