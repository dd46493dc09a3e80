package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/onboarding"
)

// CreateSyllabusRequest asks for a syllabus on a topic at a learner level.
type CreateSyllabusRequest struct {
	Topic          string `json:"topic" validate:"required,max=200"`
	KnowledgeLevel string `json:"knowledge_level" validate:"required"`
}

// SubmitAnswerRequest carries the learner's answer to the pending quiz question.
type SubmitAnswerRequest struct {
	Answer string `json:"answer" validate:"required,max=4000"`
}

// ChatRequest carries one learner message for the lesson tutor.
type ChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

// OnboardingRequest advances an adaptive placement assessment by one step.
// The first request carries only the topic; later ones echo back the
// assessment_state from the previous task result.
type OnboardingRequest struct {
	Topic           string                 `json:"topic" validate:"required,max=200"`
	AssessmentState *onboarding.Assessment `json:"assessment_state,omitempty"`
	Answer          string                 `json:"answer,omitempty" validate:"max=4000"`
	Skip            bool                   `json:"skip,omitempty"`
}

// TaskAcceptedResponse is returned with 202 for every submitted task.
type TaskAcceptedResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
