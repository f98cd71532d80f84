// Package generator talks to the narrative generation service. The
// generator is a black box to this backend: it turns a structured request
// into text, and everything security-sensitive about its output is handled
// by the caller (cache, token, answer key).
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var generatorCalls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generator_calls_total",
		Help: "Calls to the narrative generator by endpoint and status",
	},
	[]string{"endpoint", "status"},
)

// CaseRequest asks the generator for a complete case narrative.
type CaseRequest struct {
	Department      string                `json:"department"`
	DifficultyLevel model.DifficultyLevel `json:"difficulty_level"`
	IsPediatric     bool                  `json:"is_pediatric"`
}

// CaseSeed is the generator's output for a new case: the full primary
// context material before it is split into durable record, cache and token.
type CaseSeed struct {
	Diagnosis        string                  `json:"diagnosis"`
	PrimaryInfo      string                  `json:"primary_info"`
	OpeningLine      string                  `json:"opening_line"`
	PatientProfile   *model.PatientProfile   `json:"patient_profile,omitempty"`
	PediatricProfile *model.PediatricProfile `json:"pediatric_profile,omitempty"`
}

// ReplyRequest asks for the virtual patient's answer to a student question.
// The primary context grounds the reply; it never travels further than the
// generator call.
type ReplyRequest struct {
	Primary  model.PrimaryContext `json:"primary_context"`
	Question string               `json:"question"`
	History  []model.ChatMessage  `json:"history,omitempty"`
}

// FollowUpSeed is a generated follow-up question together with its grading
// half.
type FollowUpSeed struct {
	Question    string `json:"question"`
	Category    string `json:"category"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// OSCESet is the generated OSCE material for one session.
type OSCESet struct {
	HistoryQuestions []model.HistoryQuestion `json:"history_questions"`
	FollowUps        []FollowUpSeed          `json:"follow_ups"`
}

// Client is the generation interface consumed by the services.
type Client interface {
	GenerateCase(ctx context.Context, req CaseRequest) (*CaseSeed, error)
	PatientReply(ctx context.Context, req ReplyRequest) (string, error)
	GenerateOSCE(ctx context.Context, primary model.PrimaryContext) (*OSCESet, error)
}

// HTTPClient implements Client against the generation service's HTTP API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a generator client. Generation is slow; the timeout
// is generous on purpose.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateCase requests a new case narrative.
func (c *HTTPClient) GenerateCase(ctx context.Context, req CaseRequest) (*CaseSeed, error) {
	var seed CaseSeed
	if err := c.post(ctx, "/v1/case", req, &seed); err != nil {
		return nil, err
	}
	return &seed, nil
}

// PatientReply requests the virtual patient's answer to one question.
func (c *HTTPClient) PatientReply(ctx context.Context, req ReplyRequest) (string, error) {
	var out struct {
		Reply string `json:"reply"`
	}
	if err := c.post(ctx, "/v1/patient-reply", req, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// GenerateOSCE requests the OSCE question set for a case.
func (c *HTTPClient) GenerateOSCE(ctx context.Context, primary model.PrimaryContext) (*OSCESet, error) {
	req := struct {
		Primary model.PrimaryContext `json:"primary_context"`
	}{Primary: primary}

	var set OSCESet
	if err := c.post(ctx, "/v1/osce", req, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, in, out interface{}) (err error) {
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		generatorCalls.WithLabelValues(endpoint, status).Inc()
	}()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("generator returned status %d: %s", resp.StatusCode, string(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode generator response: %w", err)
	}
	return nil
}
