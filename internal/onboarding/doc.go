// Package onboarding runs the adaptive knowledge assessment that picks a
// learner's starting level for a topic. The assessment is a plain value that
// the caller stores between steps; each Step consumes at most one answer and
// produces at most one new question.
package onboarding
