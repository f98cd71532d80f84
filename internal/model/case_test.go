package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestPrimaryContextValidate(t *testing.T) {
	adult := &PatientProfile{Name: "Budi", Age: 24, Gender: "male"}
	child := &PediatricProfile{Name: "Sari", AgeMonths: 18, Gender: "female", ParentName: "Ibu Ani", ParentRelation: "mother"}

	cases := []struct {
		name string
		ctx  PrimaryContext
		want error
	}{
		{"valid adult", PrimaryContext{Diagnosis: "x", PatientProfile: adult}, nil},
		{"valid pediatric", PrimaryContext{Diagnosis: "x", IsPediatric: true, PediatricProfile: child}, nil},
		{"no profile at all", PrimaryContext{Diagnosis: "x"}, nil},
		{"empty diagnosis", PrimaryContext{PatientProfile: adult}, ErrEmptyDiagnosis},
		{"both profiles", PrimaryContext{Diagnosis: "x", PatientProfile: adult, PediatricProfile: child}, ErrAmbiguousProfile},
		{"pediatric flag with adult profile", PrimaryContext{Diagnosis: "x", IsPediatric: true, PatientProfile: adult}, ErrProfileMismatch},
		{"adult flag with pediatric profile", PrimaryContext{Diagnosis: "x", PediatricProfile: child}, ErrProfileMismatch},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.ctx.Validate()
			if c.want == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if c.want != nil && !errors.Is(err, c.want) {
				t.Errorf("expected %v, got %v", c.want, err)
			}
		})
	}
}

func TestClinicalCaseJSONHidesDiagnosis(t *testing.T) {
	record := ClinicalCase{
		Diagnosis:   "Acute appendicitis",
		PrimaryInfo: "Hidden grading narrative",
		OpeningLine: "Doctor, my stomach hurts.",
		Department:  "surgery",
	}

	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	if strings.Contains(payload, "appendicitis") || strings.Contains(payload, "Hidden grading") {
		t.Errorf("case payload leaked hidden fields: %s", payload)
	}
	if !strings.Contains(payload, "my stomach hurts") {
		t.Errorf("opening line should be visible: %s", payload)
	}
}

func TestFollowUpQuestionJSONHidesGradingHalf(t *testing.T) {
	q := FollowUpQuestion{
		ID:          "q1",
		Question:    "What is the diagnosis?",
		Answer:      "Acute appendicitis",
		Explanation: "Classic presentation",
	}

	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	if strings.Contains(payload, "appendicitis") || strings.Contains(payload, "Classic presentation") {
		t.Errorf("follow-up payload leaked grading fields: %s", payload)
	}
}
