package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DifficultyLevel enumerates case difficulty tiers.
type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// PatientProfile describes the adult virtual patient.
type PatientProfile struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Occupation     string `json:"occupation,omitempty"`
	EmotionalState string `json:"emotional_state,omitempty"`
}

// PediatricProfile describes a pediatric patient plus the accompanying parent,
// who answers on the child's behalf during the consultation.
type PediatricProfile struct {
	Name           string `json:"name"`
	AgeMonths      int    `json:"age_months"`
	Gender         string `json:"gender"`
	ParentName     string `json:"parent_name"`
	ParentRelation string `json:"parent_relation"`
	Immunization   string `json:"immunization,omitempty"`
}

// PrimaryContext is the ground truth of a case: the diagnosis and narrative
// the student must work towards but never read directly. Immutable once
// created; the client only ever holds it inside a signed token.
//
// Exactly one of PatientProfile/PediatricProfile is set, selected by the
// IsPediatric discriminant. Validate enforces this at the cache and token
// boundaries.
type PrimaryContext struct {
	Diagnosis        string            `json:"diagnosis"`
	PrimaryInfo      string            `json:"primary_info"`
	OpeningLine      string            `json:"opening_line"`
	PatientProfile   *PatientProfile   `json:"patient_profile,omitempty"`
	PediatricProfile *PediatricProfile `json:"pediatric_profile,omitempty"`
	IsPediatric      bool              `json:"is_pediatric"`
	Department       string            `json:"department"`
	DifficultyLevel  DifficultyLevel   `json:"difficulty_level"`
}

// Primary context boundary errors.
var (
	ErrEmptyDiagnosis   = errors.New("primary context has no diagnosis")
	ErrProfileMismatch  = errors.New("profile does not match pediatric flag")
	ErrAmbiguousProfile = errors.New("both patient and pediatric profiles set")
)

// Validate checks the tagged profile union and required fields. Called
// wherever a primary context crosses a trust boundary (cache put, token
// issue, token verify).
func (p *PrimaryContext) Validate() error {
	if p.Diagnosis == "" {
		return ErrEmptyDiagnosis
	}
	if p.PatientProfile != nil && p.PediatricProfile != nil {
		return ErrAmbiguousProfile
	}
	if p.IsPediatric && p.PatientProfile != nil {
		return ErrProfileMismatch
	}
	if !p.IsPediatric && p.PediatricProfile != nil {
		return ErrProfileMismatch
	}
	return nil
}

// ClinicalCase is the durable case record. It is the rebuild source for the
// primary-context cache: losing every cache entry must never lose a case.
type ClinicalCase struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	Diagnosis        string            `json:"-"`
	PrimaryInfo      string            `json:"-"`
	OpeningLine      string            `json:"opening_line"`
	PatientProfile   *PatientProfile   `json:"patient_profile,omitempty"`
	PediatricProfile *PediatricProfile `json:"pediatric_profile,omitempty"`
	IsPediatric      bool              `json:"is_pediatric"`
	Department       string            `json:"department"`
	DifficultyLevel  DifficultyLevel   `json:"difficulty_level"`
	IsOSCE           bool              `json:"is_osce"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// PrimaryContext extracts the security-sensitive half of the case record.
func (c *ClinicalCase) PrimaryContext() *PrimaryContext {
	return &PrimaryContext{
		Diagnosis:        c.Diagnosis,
		PrimaryInfo:      c.PrimaryInfo,
		OpeningLine:      c.OpeningLine,
		PatientProfile:   c.PatientProfile,
		PediatricProfile: c.PediatricProfile,
		IsPediatric:      c.IsPediatric,
		Department:       c.Department,
		DifficultyLevel:  c.DifficultyLevel,
	}
}

// GenerateCaseRequest is the payload for creating a new case.
type GenerateCaseRequest struct {
	Department      string          `json:"department" binding:"required,min=2,max=64"`
	DifficultyLevel DifficultyLevel `json:"difficulty_level" binding:"required,oneof=easy medium hard"`
	IsPediatric     bool            `json:"is_pediatric"`
	IsOSCE          bool            `json:"is_osce"`
}

// ResumeCaseRequest re-enters an in-progress case.
type ResumeCaseRequest struct {
	CaseID uuid.UUID `json:"case_id" binding:"required"`
}

// AskPatientRequest is a single student question to the virtual patient.
// The client owns the transcript and sends the relevant history with each
// question; the server stores none of it.
type AskPatientRequest struct {
	Question string        `json:"question" binding:"required,min=1,max=2000"`
	History  []ChatMessage `json:"history"`
}
