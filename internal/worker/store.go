package worker

import (
	"sync"
	"time"

	"github.com/gastronom/catalog-crawler/internal/catalog"
)

// TaskRecord is the admin-visible state of one submitted parse task.
type TaskRecord struct {
	Task     catalog.ParseTask  `json:"task"`
	Status   catalog.TaskStatus `json:"status"`
	Started  *time.Time         `json:"started_at,omitempty"`
	Finished *time.Time         `json:"finished_at,omitempty"`
	Note     string             `json:"note,omitempty"`
	Stats    catalog.Stats      `json:"stats"`
}

// TaskStore tracks task lifecycle in memory for the admin API.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]TaskRecord
}

// NewTaskStore creates an empty store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]TaskRecord)}
}

// Create registers a freshly queued task.
func (s *TaskStore) Create(task catalog.ParseTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.TaskID] = TaskRecord{Task: task, Status: catalog.TaskStatusQueued}
}

// Update mutates the record for taskID through fn. Unknown IDs are ignored.
func (s *TaskStore) Update(taskID string, fn func(*TaskRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tasks[taskID]
	if !ok {
		return
	}
	fn(&rec)
	s.tasks[taskID] = rec
}

// Get returns the record for taskID.
func (s *TaskStore) Get(taskID string) (TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.tasks[taskID]
	return rec, ok
}
