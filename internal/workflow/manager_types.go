package workflow

import (
	"clipwise/internal/stage"
	"clipwise/internal/store"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Ingest   stage.Handler
	Dispatch stage.Handler
	Poll     stage.Handler
	Finalize stage.Handler
	Index    stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      store.RunStatus
	processingStatus store.RunStatus
	doneStatus       store.RunStatus
}

type pipeline struct {
	stages        []pipelineStage
	startStatuses []store.RunStatus
	byStart       map[store.RunStatus]pipelineStage
	byProcessing  map[store.RunStatus]pipelineStage
}

func newPipeline(stages []pipelineStage) *pipeline {
	p := &pipeline{
		stages:       stages,
		byStart:      make(map[store.RunStatus]pipelineStage, len(stages)),
		byProcessing: make(map[store.RunStatus]pipelineStage, len(stages)),
	}
	for _, stg := range stages {
		p.byStart[stg.startStatus] = stg
		p.byProcessing[stg.processingStatus] = stg
		p.startStatuses = append(p.startStatuses, stg.startStatus)
	}
	return p
}

func (p *pipeline) stageForStatus(status store.RunStatus) (pipelineStage, bool) {
	if p == nil {
		return pipelineStage{}, false
	}
	stg, ok := p.byStart[status]
	return stg, ok
}

// rollback maps a processing status to the start status of its stage.
func (p *pipeline) rollback(status store.RunStatus) (store.RunStatus, bool) {
	if p == nil {
		return status, false
	}
	stg, ok := p.byProcessing[status]
	if !ok {
		return status, false
	}
	return stg.startStatus, true
}
