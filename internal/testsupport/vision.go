package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clipwise/internal/services"
	"clipwise/internal/vision"
)

// VisionScript describes how the fake service treats one object.
type VisionScript struct {
	// Checks is the number of IN_PROGRESS status checks before Final is reported.
	Checks int
	// Final is the terminal state; defaults to COMPLETED. IN_PROGRESS never terminates.
	Final      vision.State
	Results    *vision.Results
	StartErr   error
	StatusErr  error
	ResultsErr error
}

type fakeJob struct {
	script VisionScript
	checks int
}

// FakeVision is a scripted in-memory vision.Service.
type FakeVision struct {
	// Delay is applied to every status check so tests can observe overlap.
	Delay time.Duration

	mu       sync.Mutex
	scripts  []scriptMatch
	fallback VisionScript
	jobs     map[string]*fakeJob
	started  map[string]int
	next     int

	startOutage  error
	statusOutage error

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	statusCalls atomic.Int32
}

type scriptMatch struct {
	match  string
	script VisionScript
}

// NewFakeVision returns a fake whose jobs complete on the first check with
// DefaultResults unless scripted otherwise.
func NewFakeVision() *FakeVision {
	return &FakeVision{
		fallback: VisionScript{Final: vision.StateCompleted},
		jobs:     make(map[string]*fakeJob),
		started:  make(map[string]int),
	}
}

// Script applies script to every object whose key contains match.
func (f *FakeVision) Script(match string, script VisionScript) *FakeVision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, scriptMatch{match: match, script: script})
	return f
}

// Default replaces the script used for unmatched objects.
func (f *FakeVision) Default(script VisionScript) *FakeVision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = script
	return f
}

// SetStartOutage makes every StartJob fail with err until called with nil.
func (f *FakeVision) SetStartOutage(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startOutage = err
}

// SetStatusOutage makes every GetStatus fail with err until called with nil.
func (f *FakeVision) SetStatusOutage(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusOutage = err
}

func (f *FakeVision) Name() string { return "fake" }

func (f *FakeVision) scriptFor(key string) VisionScript {
	for _, s := range f.scripts {
		if strings.Contains(key, s.match) {
			return s.script
		}
	}
	return f.fallback
}

func (f *FakeVision) StartJob(_ context.Context, ref vision.ObjectRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startOutage != nil {
		return "", f.startOutage
	}
	script := f.scriptFor(ref.Key)
	if script.StartErr != nil {
		return "", script.StartErr
	}
	f.next++
	handle := fmt.Sprintf("job-%d", f.next)
	f.jobs[handle] = &fakeJob{script: script}
	f.started[ref.Key]++
	return handle, nil
}

func (f *FakeVision) GetStatus(ctx context.Context, handle string) (vision.Status, error) {
	f.statusCalls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if current <= peak || f.maxInFlight.CompareAndSwap(peak, current) {
			break
		}
	}
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return vision.Status{}, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusOutage != nil {
		return vision.Status{}, f.statusOutage
	}
	job, ok := f.jobs[handle]
	if !ok {
		return vision.Status{}, services.Wrap(services.ErrNotFound, "fake", "get status", "unknown handle "+handle, nil)
	}
	if job.script.StatusErr != nil {
		return vision.Status{}, job.script.StatusErr
	}
	job.checks++
	if job.checks <= job.script.Checks {
		return vision.Status{State: vision.StateInProgress}, nil
	}
	final := job.script.Final
	if final == "" {
		final = vision.StateCompleted
	}
	return vision.Status{State: final}, nil
}

func (f *FakeVision) GetResults(_ context.Context, handle string) (*vision.Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[handle]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake", "get results", "unknown handle "+handle, nil)
	}
	if job.script.ResultsErr != nil {
		return nil, job.script.ResultsErr
	}
	if job.script.Results != nil {
		return job.script.Results, nil
	}
	return DefaultResults(), nil
}

// StartCount reports how many jobs were started for keys containing match.
func (f *FakeVision) StartCount(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for key, n := range f.started {
		if strings.Contains(key, match) {
			total += n
		}
	}
	return total
}

// StatusCalls reports the total number of status checks served.
func (f *FakeVision) StatusCalls() int { return int(f.statusCalls.Load()) }

// MaxInFlight reports the highest number of overlapping status checks seen.
func (f *FakeVision) MaxInFlight() int { return int(f.maxInFlight.Load()) }

// DefaultResults returns a small deterministic detection set.
func DefaultResults() *vision.Results {
	return &vision.Results{
		DurationMS: 12000,
		Labels: []vision.LabelDetection{
			{Name: "Tree", Confidence: 88, TimestampMS: 0, Parents: []string{"Plant"}},
			{Name: "tree ", Confidence: 93, TimestampMS: 4000, Parents: []string{"Plant"}},
			{Name: "Sky", Confidence: 75, TimestampMS: 2000},
		},
	}
}
