package domain

import (
	"fmt"
	"strings"
)

// Difficulty is a position on the ordered learner-level scale.
type Difficulty string

// Difficulty levels from easiest to hardest.
const (
	DifficultyBeginner      Difficulty = "Beginner"
	DifficultyEarlyLearner  Difficulty = "Early Learner"
	DifficultyGoodKnowledge Difficulty = "Good Knowledge"
	DifficultyAdvanced      Difficulty = "Advanced"
)

// DifficultyLevels lists every level in ascending order.
var DifficultyLevels = []Difficulty{
	DifficultyBeginner,
	DifficultyEarlyLearner,
	DifficultyGoodKnowledge,
	DifficultyAdvanced,
}

// ParseDifficulty accepts a display name in any case ("beginner",
// "Good Knowledge").
func ParseDifficulty(s string) (Difficulty, error) {
	needle := strings.TrimSpace(s)
	for _, d := range DifficultyLevels {
		if strings.EqualFold(string(d), needle) {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: unknown difficulty %q", ErrValidation, s)
}

// DifficultyFromValue is the inverse of Value.
func DifficultyFromValue(v int) (Difficulty, bool) {
	if v < 0 || v >= len(DifficultyLevels) {
		return "", false
	}
	return DifficultyLevels[v], true
}

// Value returns the zero-based rank of d, or -1 if d is not a known level.
func (d Difficulty) Value() int {
	for i, level := range DifficultyLevels {
		if level == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of DifficultyLevels.
func (d Difficulty) Valid() bool {
	return d.Value() >= 0
}

// Lower returns the next easier level, or false at the bottom of the scale.
func (d Difficulty) Lower() (Difficulty, bool) {
	v := d.Value()
	if v <= 0 {
		return "", false
	}
	return DifficultyLevels[v-1], true
}

// LessonWordBudget is the target exposition length for lessons at d.
// Unknown levels get the budget of the second level.
func (d Difficulty) LessonWordBudget() int {
	v := d.Value()
	if v < 0 {
		return 400
	}
	return (v + 1) * 200
}
