package task

import (
	"context"
	"sort"
	"sync"
)

type StubRepository struct {
	mu   sync.Mutex
	data map[string]Task
}

func NewStubRepository() *StubRepository {
	return &StubRepository{data: map[string]Task{}}
}

func (s *StubRepository) Store(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[task.Id] = task
	return nil
}

func (s *StubRepository) Update(ctx context.Context, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[task.Id]; !ok {
		return ErrTaskNotFound
	}
	s.data[task.Id] = task
	return nil
}

func (s *StubRepository) Get(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.data[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (s *StubRepository) FindUnfinished(ctx context.Context) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tasks []Task
	for _, task := range s.data {
		if !task.Finished() {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
	return tasks, nil
}
