package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/rag"
)

var (
	// ErrUnknownEvent is returned when no workflow is bound to an event name.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrRunNotFound is returned by Result for IDs Temporal does not know.
	ErrRunNotFound = errors.New("run not found")
)

// Dispatcher turns events into workflow executions on a task queue.
type Dispatcher struct {
	client    client.Client
	taskQueue string
}

// NewDispatcher returns a Dispatcher starting workflows on taskQueue.
func NewDispatcher(c client.Client, taskQueue string) *Dispatcher {
	return &Dispatcher{client: c, taskQueue: taskQueue}
}

// Send starts the workflow bound to ev.Name. The event ID becomes the
// workflow ID; an empty ID gets a fresh UUID. The returned acknowledgment
// carries only the ID.
func (d *Dispatcher) Send(ctx context.Context, ev rag.Event) (rag.SendResult, error) {
	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}

	ctx, span := observability.StartEventSpan(ctx, ev.Name, id)
	defer span.End()

	wf, arg, err := bind(ev)
	if err != nil {
		observability.RecordError(span, err)
		return rag.SendResult{}, err
	}

	opts := client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: d.taskQueue,
	}
	run, err := d.client.ExecuteWorkflow(ctx, opts, wf, arg)
	if err != nil {
		observability.RecordError(span, err)
		return rag.SendResult{}, fmt.Errorf("start %s: %w", ev.Name, err)
	}

	observability.Metrics().RecordEventSent(ev.Name)
	return rag.SendResult{IDs: []string{run.GetID()}}, nil
}

// Result blocks until the run with the given workflow ID completes and
// decodes its result into out.
func (d *Dispatcher) Result(ctx context.Context, id string, out any) error {
	run := d.client.GetWorkflow(ctx, id, "")
	if err := run.Get(ctx, out); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return fmt.Errorf("run %s: %w", id, err)
	}
	return nil
}

// bind resolves the workflow and its validated, defaulted argument.
func bind(ev rag.Event) (any, any, error) {
	switch ev.Name {
	case rag.EventIngestPDF:
		var p rag.IngestPayload
		if err := decodePayload(ev.Data, &p); err != nil {
			return nil, nil, err
		}
		if p.PDFPath == "" {
			return nil, nil, rag.ErrMissingPDFPath
		}
		return IngestPDFWorkflow, p.WithDefaults(), nil
	case rag.EventQueryPDFAI:
		var p rag.QueryPayload
		if err := decodePayload(ev.Data, &p); err != nil {
			return nil, nil, err
		}
		if p.Question == "" {
			return nil, nil, rag.ErrMissingQuestion
		}
		if p.TopK < 0 {
			return nil, nil, rag.ErrNegativeTopK
		}
		return QueryPDFWorkflow, p.WithDefaults(), nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
}

// decodePayload accepts the typed payload or anything that marshals to the
// same JSON shape, such as a map decoded from a CLI flag.
func decodePayload[T any](data any, out *T) error {
	switch v := data.(type) {
	case T:
		*out = v
		return nil
	case *T:
		if v == nil {
			return errors.New("event data is nil")
		}
		*out = *v
		return nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
