/*
service.go - Task operations over a TaskStore

PURPOSE:
  Orchestrates the pure components (ValidateAndDerive, List, Summarize)
  around a TaskStore. This is the only place that combines validation with
  persistence.

OPERATIONS:
  Create:    validate + derive -> store (sno and created_at assigned)
  Update:    fetch -> merge patch over stored raw fields -> validate + derive -> store
  Delete:    remove by sno
  List:      snapshot -> filter -> sort -> paginate
  Summarize: snapshot -> filter -> group -> sum
  Select:    snapshot -> filter -> sort (export row set)

AUTHORIZATION:
  Not decided here. Callers check ownership / role before calling Update or
  Delete, and scope listings with Filter.Owner.
*/
package works

import (
	"context"
	"time"
)

// Service runs task operations against a store.
type Service struct {
	Tasks TaskStore

	// Now returns the creation timestamp. Defaults to time.Now in UTC.
	Now func() time.Time
}

// NewService creates a service over the given store.
func NewService(tasks TaskStore) *Service {
	return &Service{
		Tasks: tasks,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create validates raw and stores a new task created by createdBy.
func (s *Service) Create(ctx context.Context, raw RawTask, createdBy string) (Task, error) {
	in, derived, err := ValidateAndDerive(raw)
	if err != nil {
		return Task{}, err
	}
	return s.Tasks.CreateTask(ctx, Task{
		Inputs:    in,
		Derived:   derived,
		CreatedBy: createdBy,
		CreatedAt: s.Now(),
	})
}

// Get returns the task with the given sno.
func (s *Service) Get(ctx context.Context, sno int64) (Task, error) {
	return s.Tasks.GetTask(ctx, sno)
}

// Update applies patch to the stored task. Fields absent from the patch keep
// their stored values; the merged set is validated and re-derived as a whole.
func (s *Service) Update(ctx context.Context, sno int64, patch RawTask) (Task, error) {
	existing, err := s.Tasks.GetTask(ctx, sno)
	if err != nil {
		return Task{}, err
	}

	in, derived, err := ValidateAndDerive(existing.Raw().Merge(patch))
	if err != nil {
		return Task{}, err
	}

	existing.Inputs = in
	existing.Derived = derived
	return s.Tasks.UpdateTask(ctx, existing)
}

// Delete removes the task with the given sno.
func (s *Service) Delete(ctx context.Context, sno int64) error {
	return s.Tasks.DeleteTask(ctx, sno)
}

// List returns one page of tasks.
func (s *Service) List(ctx context.Context, q ListQuery) (Page, error) {
	tasks, err := s.Tasks.ListTasks(ctx)
	if err != nil {
		return Page{}, err
	}
	return List(tasks, q), nil
}

// Summarize returns grand, sub-division and account-code totals.
func (s *Service) Summarize(ctx context.Context, f Filter) (Summary, error) {
	tasks, err := s.Tasks.ListTasks(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(tasks, f), nil
}

// Select returns every task passing f, sorted, without paging.
func (s *Service) Select(ctx context.Context, f Filter, sortBy, order string) ([]Task, error) {
	tasks, err := s.Tasks.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return Select(tasks, f, sortBy, order), nil
}
