package flow

import (
	"context"
	"fmt"

	"vaspflow/pkg/errors"
	"vaspflow/pkg/logger"
)

// Runner executes a flow locally, one job at a time. Calculations own
// the whole machine while they run, so there is nothing to gain from
// parallel jobs here; cancellation is honored between jobs and never
// interrupts a running calculation.
type Runner struct {
	// MaxDynamicJobs caps the total number of jobs a run may grow to
	// through expansions. Zero means no cap.
	MaxDynamicJobs int

	log *logger.Logger
}

// NewRunner creates a runner.
func NewRunner() *Runner {
	return &Runner{log: logger.WithField("component", "flow-runner")}
}

// Run executes every job of the flow in dependency order, expanding
// Replace responses into additional jobs. It returns the populated run
// store; the error reports the first job failure or a graph problem,
// with the store still reflecting everything that ran.
func (r *Runner) Run(ctx context.Context, f *Flow) (*Store, error) {
	store := NewStore()
	jobs := make(map[string]*Job)
	var pending []string

	admit := func(j *Job) error {
		if _, dup := jobs[j.ID]; dup {
			return fmt.Errorf("duplicate job id %s", j.ID)
		}
		if r.MaxDynamicJobs > 0 && len(jobs) >= r.MaxDynamicJobs {
			return fmt.Errorf("flow grew past the %d-job limit", r.MaxDynamicJobs)
		}
		jobs[j.ID] = j
		pending = append(pending, j.ID)
		store.register(j)
		return nil
	}

	for _, j := range f.Jobs {
		if err := admit(j); err != nil {
			return store, err
		}
	}

	r.log.Info("starting flow", "flow", f.Name, "jobs", len(pending))

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return store, fmt.Errorf("flow %s canceled: %w", f.Name, err)
		}

		next := -1
		for i, id := range pending {
			if r.ready(jobs[id], store) {
				next = i
				break
			}
		}
		if next < 0 {
			return store, fmt.Errorf("flow %s: %w", f.Name, errors.ErrFlowCycle)
		}

		id := pending[next]
		pending = append(pending[:next], pending[next+1:]...)
		job := jobs[id]

		inputs, err := r.resolveInputs(job, store)
		if err != nil {
			store.setError(id, err)
			return store, err
		}

		r.log.Info("running job", "job", job.Name, "id", id)
		store.setState(id, StatusRunning)

		resp, err := job.Fn(ctx, inputs)
		if err != nil {
			wrapped := errors.WrapJobError(id, job.Name, err)
			store.setError(id, wrapped)
			r.log.Error("job failed", "job", job.Name, "id", id, "error", err)
			return store, wrapped
		}

		if resp != nil {
			store.setOutput(id, resp.Output)
		}
		store.setState(id, StatusCompleted)

		if resp != nil && resp.Replace != nil {
			r.log.Info("expanding job", "job", job.Name, "children", len(resp.Replace.Jobs))
			for _, child := range resp.Replace.Jobs {
				child.ParentID = id
				if err := admit(child); err != nil {
					return store, err
				}
			}
		}
	}

	r.log.Info("flow finished", "flow", f.Name, "jobs", len(jobs))
	return store, nil
}

// ready reports whether every dependency of the job has completed. A
// failed dependency can never unblock, but the runner aborts on the
// first failure so that case does not reach here.
func (r *Runner) ready(job *Job, store *Store) bool {
	for _, dep := range job.Dependencies() {
		if store.State(dep) != StatusCompleted {
			return false
		}
	}
	return true
}

// resolveInputs substitutes every OutputRef input with the concrete
// value from the producing job's output.
func (r *Runner) resolveInputs(job *Job, store *Store) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(job.Inputs))
	for k, v := range job.Inputs {
		ref, ok := v.(OutputRef)
		if !ok {
			inputs[k] = v
			continue
		}
		output := store.Output(ref.JobID)
		if output == nil {
			return nil, fmt.Errorf("job %s input %q: %w", job.Name, k, errors.ErrOutputNotReady)
		}
		value, ok := output[ref.Key]
		if !ok {
			return nil, fmt.Errorf("job %s input %q: %w: no key %q in output of %s",
				job.Name, k, errors.ErrOutputNotReady, ref.Key, ref.JobID)
		}
		inputs[k] = value
	}
	return inputs, nil
}
