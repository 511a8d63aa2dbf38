// Package flow is the job-graph engine: jobs with declared output
// references, flows wiring them together, and a local runner that
// resolves references, executes jobs in dependency order and expands
// dynamic sub-flows.
package flow

import (
	"context"

	"github.com/google/uuid"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// OutputRef points at one key of another job's output map. Used as an
// input value it creates a dependency edge; the runner substitutes the
// concrete value before the consuming job starts.
type OutputRef struct {
	JobID string
	Key   string
}

// JobFunc is the work a job performs. Inputs arrive with every
// OutputRef already resolved.
type JobFunc func(ctx context.Context, inputs map[string]interface{}) (*Response, error)

// Response is what a job hands back. Output is its terminal result;
// Replace swaps the job for a dynamically built sub-flow whose jobs run
// after it. A nil Response completes the job with no output and no
// children, which is how empty slab or placement sets terminate a
// branch quietly.
type Response struct {
	Output  map[string]interface{}
	Replace *Flow
}

// Job is one unit of work in a flow.
type Job struct {
	ID     string
	Name   string
	Fn     JobFunc
	Inputs map[string]interface{}

	// After lists job IDs that must complete first, for ordering
	// constraints that carry no data.
	After []string

	// ParentID is set on jobs created by a dynamic expansion.
	ParentID string
}

// NewJob creates a job with a fresh ID.
func NewJob(name string, fn JobFunc) *Job {
	return &Job{
		ID:     uuid.New().String(),
		Name:   name,
		Fn:     fn,
		Inputs: make(map[string]interface{}),
	}
}

// WithInput sets an input value and returns the job for chaining.
func (j *Job) WithInput(key string, value interface{}) *Job {
	j.Inputs[key] = value
	return j
}

// OutputRef returns a reference to one key of this job's output.
func (j *Job) OutputRef(key string) OutputRef {
	return OutputRef{JobID: j.ID, Key: key}
}

// Dependencies returns the IDs of jobs this job consumes, derived from
// its OutputRef inputs plus any explicit After entries.
func (j *Job) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, v := range j.Inputs {
		if ref, ok := v.(OutputRef); ok {
			add(ref.JobID)
		}
	}
	for _, id := range j.After {
		add(id)
	}
	return deps
}

// Flow is an ordered collection of jobs. Order only breaks ties; the
// real execution order comes from the dependency edges.
type Flow struct {
	Name string
	Jobs []*Job
}

// NewFlow creates an empty flow.
func NewFlow(name string) *Flow {
	return &Flow{Name: name}
}

// Add appends jobs to the flow.
func (f *Flow) Add(jobs ...*Job) *Flow {
	f.Jobs = append(f.Jobs, jobs...)
	return f
}
