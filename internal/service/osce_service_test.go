package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/generator"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/rs/zerolog"
)

// fakeGenerator returns a fixed OSCE set and counts calls, so idempotency
// of Start is observable.
type fakeGenerator struct {
	set       *generator.OSCESet
	osceCalls int
}

func (f *fakeGenerator) GenerateCase(_ context.Context, _ generator.CaseRequest) (*generator.CaseSeed, error) {
	return nil, errors.New("not used")
}

func (f *fakeGenerator) PatientReply(_ context.Context, _ generator.ReplyRequest) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeGenerator) GenerateOSCE(_ context.Context, _ model.PrimaryContext) (*generator.OSCESet, error) {
	f.osceCalls++
	return f.set, nil
}

func testOSCESet() *generator.OSCESet {
	return &generator.OSCESet{
		HistoryQuestions: []model.HistoryQuestion{
			{ID: "h1", Question: "Ask about onset of pain", Category: CategoryHistoryTaking},
			{ID: "h2", Question: "Ask about fever", Category: CategoryHistoryTaking},
		},
		FollowUps: []generator.FollowUpSeed{
			{Question: "Which sign supports the diagnosis?", Category: CategoryExamination, Answer: "Rebound tenderness", Explanation: "Peritoneal irritation sign"},
			{Question: "What is the most likely diagnosis?", Category: CategoryDiagnosis, Answer: "Acute appendicitis", Explanation: "Classic presentation"},
			{Question: "What is the definitive management?", Category: CategoryManagement, Answer: "Appendectomy", Explanation: "Surgical source control"},
			{Question: "Which symptom do you explore first?", Category: CategoryHistoryTaking, Answer: "Pain migration", Explanation: "Pathognomonic sequence"},
		},
	}
}

func newTestOSCE(t *testing.T) (*OSCEService, *fakeGenerator) {
	t.Helper()
	gen := &fakeGenerator{set: testOSCESet()}
	svc := NewOSCEService(testRedis(t), gen, 2*time.Hour, zerolog.Nop())
	return svc, gen
}

func seedOSCE(t *testing.T, svc *OSCEService) (sessionID string, caseID uuid.UUID) {
	t.Helper()
	sessionID = "osce-session"
	caseID = uuid.New()
	if _, err := svc.Start(context.Background(), sessionID, caseID, testPrimaryContext()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return sessionID, caseID
}

func TestOSCEStartSeedsCaches(t *testing.T) {
	svc, _ := newTestOSCE(t)
	ctx := context.Background()

	questions, err := svc.Start(ctx, "s1", uuid.New(), testPrimaryContext())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 history questions, got %d", len(questions))
	}

	views, err := svc.FollowUpsForClient(ctx, "s1")
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("expected 4 follow-ups, got %d", len(views))
	}
	for _, v := range views {
		if v.ID == "" {
			t.Error("follow-up missing generated id")
		}
		if v.IsAnswered {
			t.Error("fresh follow-up must be unanswered")
		}
	}
}

func TestOSCEStartIsIdempotent(t *testing.T) {
	svc, gen := newTestOSCE(t)
	ctx := context.Background()
	caseID := uuid.New()

	first, err := svc.Start(ctx, "s1", caseID, testPrimaryContext())
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := svc.Start(ctx, "s1", caseID, testPrimaryContext())
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if gen.osceCalls != 1 {
		t.Errorf("retry must not re-roll the question set, generator called %d times", gen.osceCalls)
	}
	if len(first) != len(second) || first[0].ID != second[0].ID {
		t.Error("retry must return the same set")
	}
}

func TestOSCEReadsBeforeStart(t *testing.T) {
	svc, _ := newTestOSCE(t)
	ctx := context.Background()

	if _, err := svc.HistoryQuestions(ctx, "cold"); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("HistoryQuestions: expected ErrOSCENotStarted, got %v", err)
	}
	if _, err := svc.FollowUpsForClient(ctx, "cold"); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("FollowUpsForClient: expected ErrOSCENotStarted, got %v", err)
	}
	if _, err := svc.Evaluate(ctx, "cold", uuid.New()); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("Evaluate: expected ErrOSCENotStarted, got %v", err)
	}
}

func TestOSCEProjectionHidesGradingFields(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, _ := seedOSCE(t, svc)

	views, err := svc.FollowUpsForClient(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}

	data, err := json.Marshal(views)
	if err != nil {
		t.Fatalf("marshal views: %v", err)
	}
	payload := strings.ToLower(string(data))
	for _, forbidden := range []string{"rebound tenderness", "appendectomy", "explanation", "correct_answer", "is_correct"} {
		if strings.Contains(payload, forbidden) {
			t.Errorf("projection leaked %q: %s", forbidden, payload)
		}
	}
}

func TestProjectFollowUpsIsTotal(t *testing.T) {
	// Whatever the input carries, the view type has no place for the
	// grading half.
	inputs := [][]model.FollowUpQuestion{
		nil,
		{},
		{{ID: "q", Answer: "secret", Explanation: "secret", StudentAnswer: "x"}},
		{{}, {ID: "only-id"}},
	}
	for _, in := range inputs {
		views := ProjectFollowUps(in)
		if len(views) != len(in) {
			t.Fatalf("length mismatch: %d vs %d", len(views), len(in))
		}
		data, err := json.Marshal(views)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if strings.Contains(string(data), "secret") {
			t.Errorf("projection leaked grading data: %s", data)
		}
	}
}

func TestOSCEUpdateAnswer(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, _ := seedOSCE(t, svc)
	ctx := context.Background()

	views, err := svc.FollowUpsForClient(ctx, sessionID)
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}
	qid := views[0].ID

	view, err := svc.UpdateAnswer(ctx, sessionID, qid, "first answer")
	if err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	if !view.IsAnswered || view.StudentAnswer != "first answer" {
		t.Errorf("answer not recorded: %+v", view)
	}

	// Re-submission overwrites, never appends.
	view, err = svc.UpdateAnswer(ctx, sessionID, qid, "second answer")
	if err != nil {
		t.Fatalf("UpdateAnswer again: %v", err)
	}
	if view.StudentAnswer != "second answer" {
		t.Errorf("re-submission must overwrite, got %q", view.StudentAnswer)
	}
}

func TestOSCEUpdateAnswerUnknownID(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, _ := seedOSCE(t, svc)
	ctx := context.Background()

	before, err := svc.FollowUpsForClient(ctx, sessionID)
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}

	if _, err := svc.UpdateAnswer(ctx, sessionID, "no-such-question", "x"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}

	after, err := svc.FollowUpsForClient(ctx, sessionID)
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)
	if string(beforeJSON) != string(afterJSON) {
		t.Error("failed update must leave the cache unmodified")
	}
}

func TestOSCEEvaluate(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, caseID := seedOSCE(t, svc)
	ctx := context.Background()

	views, err := svc.FollowUpsForClient(ctx, sessionID)
	if err != nil {
		t.Fatalf("FollowUpsForClient: %v", err)
	}

	// Answer everything; grading is case- and whitespace-insensitive.
	answers := map[string]string{
		CategoryExamination:   "  rebound TENDERNESS ",
		CategoryDiagnosis:     "acute appendicitis",
		CategoryManagement:    "wrong answer",
		CategoryHistoryTaking: "pain migration",
	}
	for _, v := range views {
		if _, err := svc.UpdateAnswer(ctx, sessionID, v.ID, answers[v.Category]); err != nil {
			t.Fatalf("UpdateAnswer: %v", err)
		}
	}

	eval, err := svc.Evaluate(ctx, sessionID, caseID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if eval.Scores.Examination != 100 || eval.Scores.Diagnosis != 100 || eval.Scores.HistoryTaking != 100 {
		t.Errorf("correct answers must score 100: %+v", eval.Scores)
	}
	if eval.Scores.Management != 0 {
		t.Errorf("wrong answer must score 0: %+v", eval.Scores)
	}
	want := MeanScore(eval.Scores)
	if math.Abs(eval.OverallScore-want) > 1e-9 {
		t.Errorf("overall %v is not the component mean %v", eval.OverallScore, want)
	}

	// The wrong answer produces a correction carrying the model answer.
	var found bool
	for _, c := range eval.Feedback.Corrections {
		if c.CorrectAnswer == "Appendectomy" {
			found = true
			if c.StudentAnswer != "wrong answer" {
				t.Errorf("correction student answer mismatch: %+v", c)
			}
		}
	}
	if !found {
		t.Errorf("missing correction for the wrong answer: %+v", eval.Feedback.Corrections)
	}

	// The evaluation is cached for later reads.
	cached, err := svc.Evaluation(ctx, sessionID)
	if err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if cached.OverallScore != eval.OverallScore {
		t.Errorf("cached evaluation mismatch: %v vs %v", cached.OverallScore, eval.OverallScore)
	}
}

func TestOSCEEvaluationMissing(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, _ := seedOSCE(t, svc)

	if _, err := svc.Evaluation(context.Background(), sessionID); !errors.Is(err, ErrEvaluationMissing) {
		t.Errorf("expected ErrEvaluationMissing, got %v", err)
	}
}

func TestOSCEInvalidateSession(t *testing.T) {
	svc, _ := newTestOSCE(t)
	sessionID, caseID := seedOSCE(t, svc)
	ctx := context.Background()

	if err := svc.InvalidateSession(ctx, sessionID, caseID); err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}

	if _, err := svc.HistoryQuestions(ctx, sessionID); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("history should be gone, got %v", err)
	}
	if _, err := svc.FollowUpsForClient(ctx, sessionID); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("follow-ups should be gone, got %v", err)
	}
	if _, err := svc.Evaluate(ctx, sessionID, caseID); !errors.Is(err, ErrOSCENotStarted) {
		t.Errorf("evaluate on evicted session should fail typed, got %v", err)
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{130, 100},
	}
	for _, c := range cases {
		if got := ClampScore(c.in); got != c.want {
			t.Errorf("ClampScore(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMeanScoreFullPrecision(t *testing.T) {
	s := model.ComponentScores{HistoryTaking: 33, Examination: 33, Diagnosis: 33, Management: 34}
	if got := MeanScore(s); got != 33.25 {
		t.Errorf("MeanScore = %v, want 33.25", got)
	}
	if DisplayScore(33.25) != 33 {
		t.Errorf("DisplayScore(33.25) = %d", DisplayScore(33.25))
	}
	if DisplayScore(33.5) != 34 {
		t.Errorf("DisplayScore(33.5) = %d", DisplayScore(33.5))
	}
}

func TestValidateEvaluation(t *testing.T) {
	good := &model.OSCEEvaluation{
		Scores:       model.ComponentScores{HistoryTaking: 80, Examination: 60, Diagnosis: 40, Management: 20},
		OverallScore: 50,
	}
	if err := ValidateEvaluation(good); err != nil {
		t.Errorf("valid evaluation rejected: %v", err)
	}

	bad := []*model.OSCEEvaluation{
		{Scores: model.ComponentScores{HistoryTaking: -1}, OverallScore: -0.25},
		{Scores: model.ComponentScores{HistoryTaking: 101, Examination: 100, Diagnosis: 100, Management: 100}, OverallScore: 100.25},
		{Scores: model.ComponentScores{HistoryTaking: 50, Examination: 50, Diagnosis: 50, Management: 50}, OverallScore: 49},
		{Scores: model.ComponentScores{HistoryTaking: math.NaN()}, OverallScore: 0},
	}
	for i, e := range bad {
		if err := ValidateEvaluation(e); !errors.Is(err, ErrInvalidEvaluation) {
			t.Errorf("case %d: expected ErrInvalidEvaluation, got %v", i, err)
		}
	}
}
