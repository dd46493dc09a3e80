package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLessonStore(t *testing.T) (*LessonStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewLessonStore(db, discardLogger()), mock
}

func TestLessonStore_GetLessonContext(t *testing.T) {
	s, mock := newLessonStore(t)
	lessonID, moduleID, syllabusID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons l")).
		WithArgs(lessonID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "module_id", "lesson_index", "title", "summary", "duration_minutes",
			"module_title", "syllabus_id", "topic", "level",
		}).AddRow(lessonID.String(), moduleID.String(), 0, "Closures", "Functions that capture", 20,
			"Functions", syllabusID.String(), "Go", "Good Knowledge"))

	lc, err := s.GetLessonContext(context.Background(), lessonID)
	require.NoError(t, err)

	assert.Equal(t, lessonID, lc.Lesson.ID)
	assert.Equal(t, "Closures", lc.Lesson.Title)
	assert.Equal(t, 20, lc.Lesson.Duration)
	assert.Equal(t, "Functions", lc.ModuleTitle)
	assert.Equal(t, syllabusID, lc.SyllabusID)
	assert.Equal(t, domain.DifficultyGoodKnowledge, lc.Level)
}

func TestLessonStore_GetLessonContextNotFound(t *testing.T) {
	s, mock := newLessonStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons l")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetLessonContext(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrLessonNotFound)
}

func TestLessonStore_GetCompletedContent(t *testing.T) {
	s, mock := newLessonStore(t)
	lessonID := uuid.New()
	columns := []string{"id", "lesson_id", "status", "exposition", "error_message", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM lesson_contents")).
		WithArgs(lessonID, "completed").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), lessonID.String(), "completed", "A closure is...", nil, fixedNow, fixedNow))

	content, err := s.GetCompletedContent(context.Background(), lessonID)
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, domain.LessonContentCompleted, content.Status)
	assert.Equal(t, "A closure is...", content.Exposition)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lesson_contents")).
		WillReturnRows(sqlmock.NewRows(columns))

	content, err = s.GetCompletedContent(context.Background(), lessonID)
	assert.NoError(t, err)
	assert.Nil(t, content, "no completed content is not an error")

	mock.ExpectQuery(regexp.QuoteMeta("FROM lesson_contents")).
		WillReturnError(errors.New("connection reset"))

	_, err = s.GetCompletedContent(context.Background(), lessonID)
	assert.ErrorContains(t, err, "connection reset")
}

func TestLessonStore_SaveContent(t *testing.T) {
	s, mock := newLessonStore(t)
	content := &domain.LessonContent{LessonID: uuid.New(), Status: domain.LessonContentFailed, Error: "model refused"}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (lesson_id) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), content.LessonID, "failed", "", "model refused", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveContent(context.Background(), content))
	assert.NotEqual(t, uuid.Nil, content.ID)
	assert.False(t, content.UpdatedAt.IsZero())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_contents")).
		WillReturnError(newForeignKeyViolation())

	err := s.SaveContent(context.Background(), &domain.LessonContent{LessonID: uuid.New(), Status: domain.LessonContentGenerating})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}
