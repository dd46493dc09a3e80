// Package memstore provides in-memory implementations of the store
// interfaces for tests and local experiments.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/store"
)

type slotKey struct {
	userID   uuid.UUID
	lessonID uuid.UUID
}

// Store implements store.ProgressStore, store.LessonStore and
// store.SyllabusStore. SaveStateFn, when set, replaces SaveState so tests
// can inject write failures.
type Store struct {
	mu          sync.RWMutex
	states      map[slotKey]json.RawMessage
	messages    map[slotKey][]domain.ConversationMessage
	syllabi     map[uuid.UUID]*domain.Syllabus
	lessons     map[uuid.UUID]*domain.LessonContext
	contents    map[uuid.UUID]*domain.LessonContent
	SaveStateFn func(ctx context.Context, userID, lessonID uuid.UUID, state json.RawMessage) error
}

var (
	_ store.ProgressStore = (*Store)(nil)
	_ store.LessonStore   = (*Store)(nil)
	_ store.SyllabusStore = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		states:   make(map[slotKey]json.RawMessage),
		messages: make(map[slotKey][]domain.ConversationMessage),
		syllabi:  make(map[uuid.UUID]*domain.Syllabus),
		lessons:  make(map[uuid.UUID]*domain.LessonContext),
		contents: make(map[uuid.UUID]*domain.LessonContent),
	}
}

// GetState implements store.ProgressStore.
func (s *Store) GetState(_ context.Context, userID, lessonID uuid.UUID) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.states[slotKey{userID, lessonID}]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), raw...), nil
}

// SaveState implements store.ProgressStore.
func (s *Store) SaveState(ctx context.Context, userID, lessonID uuid.UUID, state json.RawMessage) error {
	if s.SaveStateFn != nil {
		return s.SaveStateFn(ctx, userID, lessonID, state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[slotKey{userID, lessonID}] = append(json.RawMessage(nil), state...)
	return nil
}

// AppendMessage implements store.ProgressStore.
func (s *Store) AppendMessage(_ context.Context, msg *domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	key := slotKey{msg.UserID, msg.LessonID}
	s.messages[key] = append(s.messages[key], *msg)
	return nil
}

// RecentMessages implements store.ProgressStore.
func (s *Store) RecentMessages(_ context.Context, userID, lessonID uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[slotKey{userID, lessonID}]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domain.ConversationMessage(nil), all...), nil
}

// CreateSyllabus implements store.SyllabusStore and indexes its lessons.
func (s *Store) CreateSyllabus(_ context.Context, syl *domain.Syllabus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.syllabi[syl.ID]; exists {
		return store.ErrDuplicate
	}
	cp := *syl
	s.syllabi[syl.ID] = &cp
	for _, m := range syl.Modules {
		for _, l := range m.Lessons {
			s.lessons[l.ID] = &domain.LessonContext{
				Lesson:      l,
				ModuleTitle: m.Title,
				SyllabusID:  syl.ID,
				Topic:       syl.Topic,
				Level:       syl.Level,
			}
		}
	}
	return nil
}

// GetSyllabus implements store.SyllabusStore.
func (s *Store) GetSyllabus(_ context.Context, id uuid.UUID) (*domain.Syllabus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	syl, ok := s.syllabi[id]
	if !ok {
		return nil, store.ErrSyllabusNotFound
	}
	cp := *syl
	return &cp, nil
}

// FindSyllabus implements store.SyllabusStore.
func (s *Store) FindSyllabus(_ context.Context, userID *uuid.UUID, topic string, level domain.Difficulty) (*domain.Syllabus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*domain.Syllabus
	for _, syl := range s.syllabi {
		if !strings.EqualFold(syl.Topic, topic) || syl.Level != level {
			continue
		}
		if !sameUser(syl.UserID, userID) {
			continue
		}
		matches = append(matches, syl)
	}
	if len(matches) == 0 {
		return nil, store.ErrSyllabusNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	cp := *matches[0]
	return &cp, nil
}

// AddLesson registers a standalone lesson, for tests that do not need a
// whole syllabus.
func (s *Store) AddLesson(lc domain.LessonContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[lc.Lesson.ID] = &lc
}

// GetLessonContext implements store.LessonStore.
func (s *Store) GetLessonContext(_ context.Context, lessonID uuid.UUID) (*domain.LessonContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lc, ok := s.lessons[lessonID]
	if !ok {
		return nil, store.ErrLessonNotFound
	}
	cp := *lc
	return &cp, nil
}

// GetCompletedContent implements store.LessonStore.
func (s *Store) GetCompletedContent(_ context.Context, lessonID uuid.UUID) (*domain.LessonContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[lessonID]
	if !ok || c.Status != domain.LessonContentCompleted {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// SaveContent implements store.LessonStore.
func (s *Store) SaveContent(_ context.Context, content *domain.LessonContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	now := time.Now().UTC()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = now
	}
	content.UpdatedAt = now
	cp := *content
	s.contents[content.LessonID] = &cp
	return nil
}

// Content returns the stored content row regardless of status.
func (s *Store) Content(lessonID uuid.UUID) (*domain.LessonContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[lessonID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func sameUser(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
