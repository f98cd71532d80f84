package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole distinguishes the two sides of the consultation transcript.
type ChatRole string

const (
	RoleStudent ChatRole = "student"
	RolePatient ChatRole = "patient"
)

// ChatMessage is one turn of the student–patient conversation.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult is a named examination or investigation outcome.
type StepResult struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// SecondaryContext is the student's working state for a case: conversation,
// plans, results and drafts. It is client-held and carries no server-side
// trust requirement; losing or resetting it has no security impact. The
// server keeps an autosave scratch copy and persists it durably only at
// explicit case completion.
type SecondaryContext struct {
	CaseID               uuid.UUID     `json:"case_id"`
	Conversation         []ChatMessage `json:"conversation,omitempty"`
	PreliminaryDiagnosis string        `json:"preliminary_diagnosis,omitempty"`
	ExaminationPlan      []string      `json:"examination_plan,omitempty"`
	ExaminationResults   []StepResult  `json:"examination_results,omitempty"`
	InvestigationPlan    []string      `json:"investigation_plan,omitempty"`
	InvestigationResults []StepResult  `json:"investigation_results,omitempty"`
	FinalDiagnosis       string        `json:"final_diagnosis,omitempty"`
	ManagementPlan       string        `json:"management_plan,omitempty"`
	Feedback             string        `json:"feedback,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// CaseReport is the durable snapshot of secondary context written once at
// case completion.
type CaseReport struct {
	ID        uuid.UUID        `json:"id"`
	CaseID    uuid.UUID        `json:"case_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Report    SecondaryContext `json:"report"`
	CreatedAt time.Time        `json:"created_at"`
}

// AutosaveRequest carries the client's current secondary context scratch.
type AutosaveRequest struct {
	Context SecondaryContext `json:"context" binding:"required"`
}

// CompleteCaseRequest finishes a case with the final secondary context.
type CompleteCaseRequest struct {
	Context SecondaryContext `json:"context" binding:"required"`
}
