package memstore

import (
	"context"

	"sprintmail/internal/model"
	"sprintmail/internal/repository"
)

func (s *Store) CreateAssistantRecord(_ context.Context, r *model.AssistantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.id()
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.assistantRecords = append(s.assistantRecords, &cp)
	return nil
}

func (s *Store) ListAssistantRecords(_ context.Context, limit int) ([]model.AssistantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AssistantRecord, 0, limit)
	for i := len(s.assistantRecords) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.assistantRecords[i])
	}
	return out, nil
}

func (s *Store) RateAssistantRecord(_ context.Context, id int64, rating int, feedback string) (*model.AssistantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.assistantRecords {
		if r.ID != id {
			continue
		}
		v := rating
		r.Rating = &v
		r.Feedback = feedback
		r.UpdatedAt = s.now()
		cp := *r
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (s *Store) FirstAssistantTemplate(_ context.Context, templateType string) (*model.AssistantTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.assistantTemplates {
		if t.TemplateType == templateType {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreateAssistantTemplate(_ context.Context, t *model.AssistantTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.id()
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	s.assistantTemplates = append(s.assistantTemplates, &cp)
	return nil
}

func (s *Store) IncrementAssistantTemplateUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.assistantTemplates {
		if t.ID == id {
			t.UsageCount++
			t.UpdatedAt = s.now()
			return nil
		}
	}
	return repository.ErrNotFound
}

// AssistantTemplates 返回已保存模板的副本
func (s *Store) AssistantTemplates() []model.AssistantTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AssistantTemplate, 0, len(s.assistantTemplates))
	for _, t := range s.assistantTemplates {
		out = append(out, *t)
	}
	return out
}
