package temporal

import (
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Registrar is the subset of worker.Worker used for registration. The
// Temporal test environment satisfies it too.
type Registrar interface {
	RegisterWorkflow(w interface{})
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds both workflows and their named steps to r. The
// generate-answer step is a local activity and needs no registration.
func Register(r Registrar) {
	r.RegisterWorkflow(IngestPDFWorkflow)
	r.RegisterWorkflow(QueryPDFWorkflow)

	r.RegisterActivityWithOptions(LoadAndChunkActivity, activity.RegisterOptions{Name: StepLoadAndChunk})
	r.RegisterActivityWithOptions(EmbedAndUpsertActivity, activity.RegisterOptions{Name: StepEmbedAndUpsert})
	r.RegisterActivityWithOptions(RecordSourceActivity, activity.RegisterOptions{Name: StepRecordSource})
	r.RegisterActivityWithOptions(EmbedAndSearchActivity, activity.RegisterOptions{Name: StepEmbedAndSearch})
}

// StartWorker creates and starts a Temporal worker.
func StartWorker(c client.Client, taskQueue string, opts worker.Options) (worker.Worker, error) {
	w := worker.New(c, taskQueue, opts)
	Register(w)

	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	return w, nil
}
