package subdoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("subdoc")

// MutateOptions tune Service.Mutate.
type MutateOptions struct {
	// MutationSeqno is passed through to the store write.
	MutationSeqno bool
}

// Service runs batches against documents held by a Store.
type Service struct {
	engine *Engine
	store  Store
	logger *slog.Logger
	newID  func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithRequestIDGenerator sets the generator of per-batch request IDs used
// in logs and traces. Default: UUIDv7.
func WithRequestIDGenerator(gen func() string) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// NewService returns a Service executing batches with engine against store.
func NewService(engine *Engine, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		store:  store,
		logger: slog.Default(),
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the engine used by s.
func (s *Service) Engine() *Engine { return s.engine }

// Lookup fetches the document under b.Key and evaluates a lookup batch on it.
// The returned error is reserved for store failures; every other outcome is
// reported through the BatchResult, which carries the document's current CAS.
func (s *Service) Lookup(ctx context.Context, b Batch) (BatchResult, error) {
	reqID := s.newID()
	ctx, span := s.start(ctx, "subdoc.Lookup", reqID, b)
	defer span.End()

	if err := s.engine.Validate(BatchLookup, b); err != nil {
		return s.reject(span, reqID, BatchLookup, b, err), nil
	}

	doc, cas, err := s.store.Fetch(ctx, b.Key)
	if errors.Is(err, ErrKeyNotFound) {
		return s.missing(span, reqID, BatchLookup, b), nil
	}
	if err != nil {
		return BatchResult{}, s.storeFailure(span, reqID, "fetch", b.Key, err)
	}

	res := s.engine.ExecuteLookup(doc, b)
	res.CAS = cas
	return s.finish(span, reqID, BatchLookup, b, res), nil
}

// Mutate fetches the document under b.Key, applies a mutation batch to it
// and writes the result back conditionally on the fetched CAS. A concurrent
// writer that got there first turns the batch into StatusKeyExists; the
// caller must fetch and retry.
func (s *Service) Mutate(ctx context.Context, b Batch, opts MutateOptions) (BatchResult, error) {
	reqID := s.newID()
	ctx, span := s.start(ctx, "subdoc.Mutate", reqID, b)
	defer span.End()
	span.SetAttributes(attribute.Bool("subdoc.mutation_seqno", opts.MutationSeqno))

	if err := s.engine.Validate(BatchMutation, b); err != nil {
		return s.reject(span, reqID, BatchMutation, b, err), nil
	}

	doc, cas, err := s.store.Fetch(ctx, b.Key)
	if errors.Is(err, ErrKeyNotFound) {
		return s.missing(span, reqID, BatchMutation, b), nil
	}
	if err != nil {
		return BatchResult{}, s.storeFailure(span, reqID, "fetch", b.Key, err)
	}

	res, newDoc := s.engine.ExecuteMutation(doc, cas, b)
	if !res.OK() {
		return s.finish(span, reqID, BatchMutation, b, res), nil
	}

	wr, err := s.store.CompareAndSwap(ctx, b.Key, newDoc, cas, WriteOptions{MutationSeqno: opts.MutationSeqno})
	switch {
	case errors.Is(err, ErrCASMismatch):
		return s.finish(span, reqID, BatchMutation, b, batchStatus(StatusKeyExists)), nil
	case errors.Is(err, ErrKeyNotFound):
		return s.finish(span, reqID, BatchMutation, b, batchStatus(StatusKeyNotFound)), nil
	case err != nil:
		return BatchResult{}, s.storeFailure(span, reqID, "compare-and-swap", b.Key, err)
	}
	res.CAS = wr.CAS
	res.Seqno = wr.Seqno
	return s.finish(span, reqID, BatchMutation, b, res), nil
}

func (s *Service) start(ctx context.Context, name, reqID string, b Batch) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("subdoc.request_id", reqID),
		attribute.String("subdoc.key", b.Key),
		attribute.Int("subdoc.specs", len(b.Specs)),
	))
}

func (s *Service) reject(span trace.Span, reqID string, kind BatchKind, b Batch, err error) BatchResult {
	res := batchStatus(StatusInvalidCombo)
	s.engine.observer.ObserveBatch(kind, res.Status, len(b.Specs), 0)
	s.logger.Info("subdoc batch rejected",
		"request_id", reqID, "kind", kind, "key", b.Key, "error", err)
	span.SetStatus(codes.Error, err.Error())
	return res
}

// missing reports a batch whose document is absent. The engine never ran,
// so the observer hears about it here.
func (s *Service) missing(span trace.Span, reqID string, kind BatchKind, b Batch) BatchResult {
	res := batchStatus(StatusKeyNotFound)
	s.engine.observer.ObserveBatch(kind, res.Status, len(b.Specs), 0)
	return s.finish(span, reqID, kind, b, res)
}

func (s *Service) finish(span trace.Span, reqID string, kind BatchKind, b Batch, res BatchResult) BatchResult {
	span.SetAttributes(attribute.String("subdoc.status", res.Status.String()))
	if res.OK() {
		span.SetStatus(codes.Ok, "")
		s.logger.Debug("subdoc batch done",
			"request_id", reqID, "kind", kind, "key", b.Key, "specs", len(b.Specs), "cas", res.CAS)
		return res
	}

	span.SetStatus(codes.Error, res.Status.String())
	attrs := []any{"request_id", reqID, "kind", kind, "key", b.Key, "status", res.Status}
	if op, ok := res.Failed(); ok {
		attrs = append(attrs, "index", op.Index, "op_status", op.Status, "path", pointerOf(b.Specs[op.Index].Path))
		if op.Err != nil {
			attrs = append(attrs, "error", op.Err)
		}
	}
	s.logger.Info("subdoc batch failed", attrs...)
	return res
}

func (s *Service) storeFailure(span trace.Span, reqID, op, key string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("subdoc store failure", "request_id", reqID, "op", op, "key", key, "error", err)
	return fmt.Errorf("%s %q: %w", op, key, err)
}

// pointerOf renders path text in its normalized form for logs, falling
// back to the raw text when it does not parse.
func pointerOf(text string) string {
	p, err := ParsePath(text)
	if err != nil {
		return text
	}
	return p.Pointer()
}
