package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.FusedResult
	err     error
	lastReq domain.QueryRequest
}

func (m *mockSearchService) Search(_ context.Context, req domain.QueryRequest) ([]domain.FusedResult, error) {
	m.lastReq = req
	return m.results, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	tasks     map[string]*domain.ProcessingTask
	submitted []string
	err       error
}

func (m *mockIngestionService) Start(_ context.Context) error { return nil }

func (m *mockIngestionService) Stop() error { return nil }

func (m *mockIngestionService) Submit(_ context.Context, uri string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.submitted = append(m.submitted, uri)
	return "task-" + uri, nil
}

func (m *mockIngestionService) BatchSubmit(ctx context.Context, uris []string) ([]string, error) {
	ids := make([]string, 0, len(uris))
	for _, u := range uris {
		id, err := m.Submit(ctx, u)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockIngestionService) Status(_ context.Context, taskID string) (*domain.ProcessingTask, error) {
	if t, ok := m.tasks[taskID]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockIngestionService) Cancel(_ context.Context, _ string) error { return m.err }

func (m *mockIngestionService) Wait(ctx context.Context, taskID string) (*domain.ProcessingTask, error) {
	return m.Status(ctx, taskID)
}

func (m *mockIngestionService) Remove(_ context.Context, _ string) error { return m.err }

// mockPersonService is a mock implementation of driving.PersonService.
type mockPersonService struct {
	persons []domain.PersonIdentity
	err     error
}

func (m *mockPersonService) Register(
	_ context.Context, name string, aliases []string, _ [][]byte,
) (*domain.PersonIdentity, error) {
	return &domain.PersonIdentity{ID: "p-new", Name: name, Aliases: aliases}, m.err
}

func (m *mockPersonService) List(_ context.Context) ([]domain.PersonIdentity, error) {
	return m.persons, m.err
}

func (m *mockPersonService) Remove(_ context.Context, _ string) error { return m.err }

func (m *mockPersonService) Match(_ context.Context, _ string) ([]domain.PersonIdentity, error) {
	return nil, m.err
}
