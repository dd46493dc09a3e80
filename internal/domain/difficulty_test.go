package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		input   string
		want    Difficulty
		wantErr bool
	}{
		{"Beginner", DifficultyBeginner, false},
		{"good knowledge", DifficultyGoodKnowledge, false},
		{"  ADVANCED ", DifficultyAdvanced, false},
		{"Intermediate", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDifficulty(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDifficultyScale(t *testing.T) {
	assert.Equal(t, 0, DifficultyBeginner.Value())
	assert.Equal(t, 3, DifficultyAdvanced.Value())
	assert.Equal(t, -1, Difficulty("Expert").Value())

	lower, ok := DifficultyGoodKnowledge.Lower()
	assert.True(t, ok)
	assert.Equal(t, DifficultyEarlyLearner, lower)

	_, ok = DifficultyBeginner.Lower()
	assert.False(t, ok)

	d, ok := DifficultyFromValue(2)
	assert.True(t, ok)
	assert.Equal(t, DifficultyGoodKnowledge, d)
	_, ok = DifficultyFromValue(4)
	assert.False(t, ok)
}

func TestLessonWordBudget(t *testing.T) {
	assert.Equal(t, 200, DifficultyBeginner.LessonWordBudget())
	assert.Equal(t, 800, DifficultyAdvanced.LessonWordBudget())
	assert.Equal(t, 400, Difficulty("unknown").LessonWordBudget())
}

func TestNewSyllabus(t *testing.T) {
	userID := uuid.New()

	t.Run("assigns ids and indexes", func(t *testing.T) {
		s, err := NewSyllabus(&userID, " Go concurrency ", DifficultyBeginner, []Module{
			{Title: "Goroutines", Lessons: []Lesson{{Title: "Starting goroutines"}, {Title: "WaitGroups"}}},
			{Title: "Channels", Lessons: []Lesson{{Title: "Buffered channels"}}},
		})
		require.NoError(t, err)

		assert.Equal(t, "Go concurrency", s.Topic)
		require.Len(t, s.Modules, 2)
		assert.Equal(t, 1, s.Modules[1].Index)
		assert.Equal(t, s.ID, s.Modules[0].SyllabusID)
		assert.Equal(t, 1, s.Modules[0].Lessons[1].Index)
		assert.Equal(t, s.Modules[0].ID, s.Modules[0].Lessons[1].ModuleID)
		assert.NotEqual(t, uuid.Nil, s.Modules[0].Lessons[0].ID)

		first := s.FirstLesson()
		require.NotNil(t, first)
		assert.Equal(t, "Starting goroutines", first.Title)
	})

	t.Run("rejects empty outline", func(t *testing.T) {
		_, err := NewSyllabus(&userID, "Go", DifficultyBeginner, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := NewSyllabus(nil, "Go", Difficulty("Expert"), []Module{
			{Title: "M", Lessons: []Lesson{{Title: "L"}}},
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}
