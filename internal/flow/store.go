package flow

import (
	"sync"
)

// Store is the in-memory run store: per-job state, outputs and errors.
// Safe for concurrent reads while a run is in progress.
type Store struct {
	mu      sync.RWMutex
	states  map[string]JobStatus
	outputs map[string]map[string]interface{}
	errs    map[string]error
	names   map[string]string
	order   []string
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{
		states:  make(map[string]JobStatus),
		outputs: make(map[string]map[string]interface{}),
		errs:    make(map[string]error),
		names:   make(map[string]string),
	}
}

func (s *Store) register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[job.ID]; !ok {
		s.order = append(s.order, job.ID)
	}
	s.states[job.ID] = StatusPending
	s.names[job.ID] = job.Name
}

func (s *Store) setState(jobID string, state JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[jobID] = state
}

func (s *Store) setOutput(jobID string, output map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[jobID] = output
}

func (s *Store) setError(jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[jobID] = err
	s.states[jobID] = StatusFailed
}

// State returns a job's current status.
func (s *Store) State(jobID string) JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[jobID]
}

// Output returns a job's output map, or nil if it has none yet.
func (s *Store) Output(jobID string) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[jobID]
}

// Err returns the error a failed job recorded.
func (s *Store) Err(jobID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errs[jobID]
}

// Name returns the registered job name.
func (s *Store) Name(jobID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[jobID]
}

// JobIDs returns the job IDs in registration order, expansions included.
func (s *Store) JobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Completed reports whether every registered job finished successfully.
func (s *Store) Completed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.states {
		if state != StatusCompleted {
			return false
		}
	}
	return true
}
