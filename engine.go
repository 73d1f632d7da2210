// Package subdoc evaluates and mutates parts of a stored JSON document
// addressed by paths, one batch of operations at a time.
//
// Lookup batches evaluate every spec independently and never change the
// document. Mutation batches are all-or-nothing: specs are applied in order
// to a private working tree, the first failure aborts the batch, and the new
// document is only produced once every spec succeeded and the caller's CAS
// matches the stored one.
package subdoc

import (
	"fmt"
	"io"
	"time"
)

// DefaultMaxPaths is the default cap on the number of specs in a batch.
const DefaultMaxPaths = 16

// BatchKind distinguishes lookup and mutation batches.
type BatchKind string

const (
	BatchLookup   BatchKind = "lookup"
	BatchMutation BatchKind = "mutation"
)

// Batch is an ordered list of specs against the document stored under Key.
// A non-zero CAS must match the stored CAS for a mutation to commit.
type Batch struct {
	Key   string `json:"key"`
	CAS   uint64 `json:"cas,omitempty"`
	Specs []Spec `json:"specs"`
}

// Observer receives the outcome of every batch and op an Engine executes.
type Observer interface {
	ObserveBatch(kind BatchKind, status Status, specs int, elapsed time.Duration)
	ObserveOp(op Opcode, status Status)
}

type nopObserver struct{}

func (nopObserver) ObserveBatch(BatchKind, Status, int, time.Duration) {}
func (nopObserver) ObserveOp(Opcode, Status)                           {}

// Options configures an Engine.
type Options struct {
	// MaxPaths caps the number of specs per batch. Zero means DefaultMaxPaths.
	MaxPaths int
	// CounterPolicy decides whether counters create absent targets.
	CounterPolicy CounterPolicy
	// Observer is notified of every batch and op. Nil disables observation.
	Observer Observer
}

// DefaultOptions returns the options used by NewEngine(Options{}).
func DefaultOptions() Options {
	return Options{MaxPaths: DefaultMaxPaths, CounterPolicy: CounterCreateWithMkdirP}
}

// Engine executes batches. It holds no per-document state and is safe for
// concurrent use.
type Engine struct {
	maxPaths      int
	counterPolicy CounterPolicy
	observer      Observer
}

// NewEngine returns an Engine configured by opts.
func NewEngine(opts Options) *Engine {
	e := &Engine{
		maxPaths:      opts.MaxPaths,
		counterPolicy: opts.CounterPolicy,
		observer:      opts.Observer,
	}
	if e.maxPaths <= 0 {
		e.maxPaths = DefaultMaxPaths
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	return e
}

// MaxPaths returns the batch size cap.
func (e *Engine) MaxPaths() int { return e.maxPaths }

// Validate checks the structural constraints of a batch before anything is
// evaluated: the spec count and that every opcode belongs to kind.
func (e *Engine) Validate(kind BatchKind, b Batch) error {
	if len(b.Specs) == 0 || len(b.Specs) > e.maxPaths {
		return fmt.Errorf("%w: %d specs, limit is %d", ErrInvalidCombo, len(b.Specs), e.maxPaths)
	}
	for i, spec := range b.Specs {
		ok := spec.Op.IsLookup()
		if kind == BatchMutation {
			ok = spec.Op.IsMutation()
		}
		if !ok {
			return fmt.Errorf("%w: spec %d: %s in a %s batch", ErrInvalidCombo, i, spec.Op, kind)
		}
	}
	return nil
}

// ExecuteLookup evaluates a lookup batch against the stored document bytes.
func (e *Engine) ExecuteLookup(doc []byte, b Batch) BatchResult {
	return e.observe(BatchLookup, b, func() BatchResult {
		root, err := ParseDocument(doc)
		if err != nil {
			return batchStatus(StatusDocNotJSON)
		}
		return e.lookupTree(root, b)
	})
}

// LookupTree evaluates a lookup batch against an already parsed document.
func (e *Engine) LookupTree(root Node, b Batch) BatchResult {
	return e.observe(BatchLookup, b, func() BatchResult {
		return e.lookupTree(root, b)
	})
}

// ExecuteMutation applies a mutation batch to the stored document bytes
// whose current CAS is storedCAS. On success it returns the new document
// bytes; otherwise the returned bytes are nil and doc is untouched.
func (e *Engine) ExecuteMutation(doc []byte, storedCAS uint64, b Batch) (BatchResult, []byte) {
	var out []byte
	res := e.observe(BatchMutation, b, func() BatchResult {
		// The freshly parsed tree is private to this call and serves as
		// the working copy.
		work, err := ParseDocument(doc)
		if err != nil {
			return batchStatus(StatusDocNotJSON)
		}
		res, work := e.mutateTree(work, storedCAS, b)
		if res.OK() {
			out = Marshal(work)
		}
		return res
	})
	return res, out
}

// MutateTree applies a mutation batch to a deep copy of root. root itself is
// never modified; the returned tree is nil unless the batch succeeded.
func (e *Engine) MutateTree(root Node, storedCAS uint64, b Batch) (BatchResult, Node) {
	var out Node
	res := e.observe(BatchMutation, b, func() BatchResult {
		res, work := e.mutateTree(Clone(root), storedCAS, b)
		out = work
		return res
	})
	return res, out
}

// ApplyStream reads a whole document from r, applies a mutation batch to it
// and writes the new document to w. There is no stored CAS to compare
// against, so b.CAS is ignored. Nothing is written unless the batch succeeds.
func (e *Engine) ApplyStream(r io.Reader, w io.Writer, b Batch) (BatchResult, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return BatchResult{}, fmt.Errorf("read document: %w", err)
	}
	res, out := e.ExecuteMutation(doc, b.CAS, b)
	if !res.OK() {
		return res, nil
	}
	if _, err := w.Write(out); err != nil {
		return res, fmt.Errorf("write document: %w", err)
	}
	return res, nil
}

func (e *Engine) observe(kind BatchKind, b Batch, run func() BatchResult) BatchResult {
	start := time.Now()
	var res BatchResult
	if err := e.Validate(kind, b); err != nil {
		res = batchStatus(StatusInvalidCombo)
	} else {
		res = run()
	}
	e.observer.ObserveBatch(kind, res.Status, len(b.Specs), time.Since(start))
	return res
}

func (e *Engine) lookupTree(root Node, b Batch) BatchResult {
	results := make([]OpResult, len(b.Specs))
	for i, spec := range b.Specs {
		value, err := lookup(root, spec)
		results[i] = OpResult{Index: i, Status: StatusOf(err), Value: value}
		if err != nil {
			results[i].Err = &PathError{Op: spec.Op, Path: spec.Path, Err: err}
		}
		e.observer.ObserveOp(spec.Op, results[i].Status)
	}
	return aggregateLookup(results)
}

func (e *Engine) mutateTree(work Node, storedCAS uint64, b Batch) (BatchResult, Node) {
	var results []OpResult
	for i, spec := range b.Specs {
		next, value, err := e.mutate(work, spec)
		e.observer.ObserveOp(spec.Op, StatusOf(err))
		if err != nil {
			return abortMutation(len(b.Specs), OpResult{
				Index:  i,
				Status: StatusOf(err),
				Err:    &PathError{Op: spec.Op, Path: spec.Path, Err: err},
			}), nil
		}
		work = next
		if value != nil {
			results = append(results, OpResult{Index: i, Status: StatusSuccess, Value: value})
		}
	}
	if b.CAS != 0 && b.CAS != storedCAS {
		return batchStatus(StatusKeyExists), nil
	}
	return BatchResult{Status: StatusSuccess, Results: results, FailedIndex: -1}, work
}
