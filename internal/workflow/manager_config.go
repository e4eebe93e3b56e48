package workflow

import "clipwise/internal/store"

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Stages left nil are skipped; the next stage starts from the status the
// previous one would have produced.
func (m *Manager) ConfigureStages(set StageSet) {
	ordered := []pipelineStage{
		{name: "ingest", handler: set.Ingest, startStatus: store.RunPending, processingStatus: store.RunIngesting, doneStatus: store.RunIngested},
		{name: "dispatch", handler: set.Dispatch, startStatus: store.RunIngested, processingStatus: store.RunDispatching, doneStatus: store.RunDispatched},
		{name: "poll", handler: set.Poll, startStatus: store.RunDispatched, processingStatus: store.RunPolling, doneStatus: store.RunPolled},
		{name: "finalize", handler: set.Finalize, startStatus: store.RunPolled, processingStatus: store.RunFinalizing, doneStatus: store.RunFinalized},
		{name: "index", handler: set.Index, startStatus: store.RunFinalized, processingStatus: store.RunIndexing, doneStatus: store.RunCompleted},
	}

	stages := make([]pipelineStage, 0, len(ordered))
	for i, stg := range ordered {
		if stg.handler == nil {
			continue
		}
		// Fold skipped predecessors into this stage's start status.
		for j := i - 1; j >= 0 && ordered[j].handler == nil; j-- {
			stg.startStatus = ordered[j].startStatus
		}
		stages = append(stages, stg)
	}
	if n := len(stages); n > 0 && stages[n-1].doneStatus != store.RunCompleted {
		stages[n-1].doneStatus = store.RunCompleted
	}

	m.mu.Lock()
	m.pipeline = newPipeline(stages)
	m.mu.Unlock()
}

func (m *Manager) currentPipeline() *pipeline {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pipeline
}
