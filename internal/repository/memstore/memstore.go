// Package memstore 内存实现，供测试与 storage.driver=memory 使用
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/pkg/trace"
)

// Event 记录下的领域事件
type Event struct {
	RoutingKey string
	Payload    any
}

type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	emails    map[int64]*model.TrainingEmail
	vectors   []*model.PatternVector
	templates []*model.EmailTemplate
	history   []*model.GenerationRecord
	events    []Event

	assistantRecords   []*model.AssistantRecord
	assistantTemplates []*model.AssistantTemplate
	nextID    int64

	// FailSaveAnalysis 非空时 SaveAnalysis 返回该错误
	FailSaveAnalysis error
}

func New() *Store {
	return &Store{
		now:    time.Now,
		emails: map[int64]*model.TrainingEmail{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) Ping(context.Context) error { return nil }

// Events 返回已记录事件的副本
func (s *Store) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

func (s *Store) CreateTrainingEmail(ctx context.Context, e *model.TrainingEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.emails {
		if existing.ContentHash == e.ContentHash {
			return fmt.Errorf("%w: email_training_data_content_hash_key", repository.ErrDuplicate)
		}
	}

	e.ID = s.id()
	e.IsProcessed = false
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	s.emails[e.ID] = &cp

	s.events = append(s.events, Event{
		RoutingKey: mqcontracts.TrainingEmailUploaded,
		Payload: mqcontracts.TrainingEmailUploadedPayload{
			TrainingEmailID: e.ID,
			EmailType:       e.EmailType,
			UploadedAt:      e.CreatedAt,
			TraceID:         trace.FromContext(ctx),
		},
	})
	return nil
}

func (s *Store) GetTrainingEmail(_ context.Context, id int64) (*model.TrainingEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.emails[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListPendingTrainingEmails(context.Context) ([]model.TrainingEmail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TrainingEmail
	for _, e := range s.emails {
		if !e.IsProcessed && e.IsApproved {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveAnalysis(ctx context.Context, a *repository.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSaveAnalysis != nil {
		return s.FailSaveAnalysis
	}

	e, ok := s.emails[a.Email.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if e.IsProcessed {
		return fmt.Errorf("%w: training email %d already processed", repository.ErrConflict, e.ID)
	}
	for _, v := range s.vectors {
		if v.ContentHash == a.Vector.ContentHash {
			return fmt.Errorf("%w: email_pattern_vectors_content_hash_key", repository.ErrDuplicate)
		}
	}

	now := s.now()
	a.Vector.ID = s.id()
	a.Vector.Dimension = len(a.Vector.Embedding)
	a.Vector.CreatedAt = now
	v := *a.Vector
	s.vectors = append(s.vectors, &v)

	a.Template.ID = s.id()
	a.Template.IsActive = true
	a.Template.CreatedAt = now
	a.Template.UpdatedAt = now
	t := *a.Template
	s.templates = append(s.templates, &t)

	patterns := a.Patterns
	e.IsProcessed = true
	e.Patterns = &patterns
	e.UpdatedAt = now

	s.events = append(s.events, Event{
		RoutingKey: mqcontracts.TrainingEmailAnalyzed,
		Payload: mqcontracts.TrainingEmailAnalyzedPayload{
			TrainingEmailID: e.ID,
			VectorID:        v.ID,
			TemplateID:      t.ID,
			PatternType:     v.PatternType,
			Confidence:      v.ConfidenceScore,
			TraceID:         trace.FromContext(ctx),
		},
	})
	return nil
}

// AddPatternVector 直接写入向量（测试用）
func (s *Store) AddPatternVector(v model.PatternVector) model.PatternVector {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.id()
	v.Dimension = len(v.Embedding)
	s.vectors = append(s.vectors, &v)
	return v
}

// AddTemplate 直接写入模板（测试用）
func (s *Store) AddTemplate(t model.EmailTemplate) model.EmailTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.IsActive = true
	s.templates = append(s.templates, &t)
	return t
}

func (s *Store) ListPatternVectors(context.Context) ([]model.PatternVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PatternVector, 0, len(s.vectors))
	for _, v := range s.vectors {
		out = append(out, *v)
	}
	return out, nil
}

func (s *Store) ListActiveTemplates(context.Context) ([]model.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.EmailTemplate
	for _, t := range s.templates {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListTemplatesByConfidence(context.Context) ([]model.EmailTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EmailTemplate, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) findTemplate(id int64) *model.EmailTemplate {
	for _, t := range s.templates {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Template 按 ID 返回模板副本（测试用）
func (s *Store) Template(id int64) (model.EmailTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t := s.findTemplate(id); t != nil {
		return *t, true
	}
	return model.EmailTemplate{}, false
}

func (s *Store) IncrementTemplateUsage(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findTemplate(id)
	if t == nil {
		return repository.ErrNotFound
	}
	t.UsageCount++
	return nil
}

func (s *Store) RecomputeSuccessRate(_ context.Context, templateID int64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findTemplate(templateID)
	if t == nil {
		return 0, repository.ErrNotFound
	}

	sum, n := 0, 0
	for _, r := range s.history {
		if r.TemplateID != nil && *r.TemplateID == templateID && r.Feedback != nil {
			sum += r.Feedback.Rating
			n++
		}
	}
	t.SuccessRate = 0
	if n > 0 {
		t.SuccessRate = float64(sum) / float64(n) / 5
	}
	return t.SuccessRate, nil
}

func (s *Store) CreateGenerationRecord(ctx context.Context, r *model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.id()
	r.CreatedAt = s.now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.history = append(s.history, &cp)

	s.events = append(s.events, Event{
		RoutingKey: mqcontracts.SprintEmailGenerated,
		Payload: mqcontracts.SprintEmailGeneratedPayload{
			HistoryID:    r.ID,
			TemplateUsed: r.TemplateUsed,
			TemplateID:   r.TemplateID,
			Confidence:   r.Confidence,
			TraceID:      trace.FromContext(ctx),
		},
	})
	return nil
}

func (s *Store) GetGenerationRecord(_ context.Context, id int64) (*model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.history {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListHistory(_ context.Context, limit, offset int) ([]model.GenerationRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]model.GenerationRecord, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		all = append(all, *s.history[i])
	}

	total := len(all)
	if offset >= total {
		return []model.GenerationRecord{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) SaveFeedback(ctx context.Context, historyID int64, fb model.Feedback) (*model.GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.history {
		if r.ID != historyID {
			continue
		}
		f := fb
		r.Feedback = &f
		r.UpdatedAt = s.now()

		s.events = append(s.events, Event{
			RoutingKey: mqcontracts.FeedbackSubmitted,
			Payload: mqcontracts.FeedbackSubmittedPayload{
				HistoryID:  r.ID,
				TemplateID: r.TemplateID,
				Rating:     fb.Rating,
				TraceID:    trace.FromContext(ctx),
			},
		})
		cp := *r
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (s *Store) Stats(context.Context) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &model.Stats{
		TrainingEmails:  len(s.emails),
		Templates:       len(s.templates),
		TemplatesByType: map[string]int{},
		PatternVectors:  len(s.vectors),
		GeneratedEmails: len(s.history),
		Feedback:        model.FeedbackStats{Distribution: map[int]int{}},
	}
	for _, e := range s.emails {
		if e.IsProcessed {
			st.ProcessedEmails++
		}
	}

	var conf float64
	for _, t := range s.templates {
		st.TemplatesByType[t.PatternType]++
		conf += t.Confidence
	}
	if len(s.templates) > 0 {
		st.AverageConfidence = conf / float64(len(s.templates))
	}

	cutoff := s.now().Add(-7 * 24 * time.Hour)
	sum := 0
	for _, r := range s.history {
		if r.CreatedAt.After(cutoff) {
			st.GeneratedLast7Days++
		}
		if r.Feedback != nil {
			st.Feedback.Count++
			st.Feedback.Distribution[r.Feedback.Rating]++
			sum += r.Feedback.Rating
		}
	}
	if st.Feedback.Count > 0 {
		st.Feedback.AverageRating = float64(sum) / float64(st.Feedback.Count)
	}
	return st, nil
}
