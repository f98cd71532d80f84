package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medsim/clerksim-backend/internal/config"
	"github.com/medsim/clerksim-backend/internal/generator"
	"github.com/medsim/clerksim-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OSCE domain errors.
var (
	ErrOSCENotStarted    = errors.New("osce stage not started for this session")
	ErrQuestionNotFound  = errors.New("follow-up question not found")
	ErrEvaluationMissing = errors.New("no evaluation cached for this session")
	ErrInvalidEvaluation = errors.New("evaluation failed validation")
)

// Follow-up categories map onto the four evaluation components.
const (
	CategoryHistoryTaking = "history_taking"
	CategoryExamination   = "examination"
	CategoryDiagnosis     = "diagnosis"
	CategoryManagement    = "management"
)

// scoreTolerance bounds the permitted float drift between a stored overall
// score and the recomputed component mean.
const scoreTolerance = 1e-9

// storedFollowUp is the cache codec for follow-up questions. The model type
// hides Answer/Explanation from JSON so they cannot leak to a client; this
// private mirror carries them inside Redis, which only the server reads.
type storedFollowUp struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Category      string `json:"category"`
	Answer        string `json:"answer"`
	Explanation   string `json:"explanation"`
	IsAnswered    bool   `json:"is_answered"`
	StudentAnswer string `json:"student_answer,omitempty"`
	IsCorrect     *bool  `json:"is_correct,omitempty"`
}

func toStored(q model.FollowUpQuestion) storedFollowUp {
	return storedFollowUp(q)
}

func fromStored(q storedFollowUp) model.FollowUpQuestion {
	return model.FollowUpQuestion(q)
}

// OSCEService owns the three session-keyed OSCE caches (history questions,
// follow-up Q&A, evaluation) plus the case-keyed hidden answer key. All use
// the two-hour OSCE TTL; entries simply read as absent once expired.
type OSCEService struct {
	rdb *redis.Client
	gen generator.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewOSCEService creates a new OSCEService.
func NewOSCEService(rdb *redis.Client, gen generator.Client, ttl time.Duration, log zerolog.Logger) *OSCEService {
	return &OSCEService{
		rdb: rdb,
		gen: gen,
		ttl: ttl,
		log: log.With().Str("component", "osce_service").Logger(),
	}
}

// Start seeds the OSCE caches for a session: history questions, follow-up
// questions and the answer key. Idempotent: if the session is already
// seeded the existing history questions are returned unchanged, so a
// duplicate network retry cannot re-roll the question set.
func (s *OSCEService) Start(ctx context.Context, sessionID string, caseID uuid.UUID, primary *model.PrimaryContext) ([]model.HistoryQuestion, error) {
	existing, err := s.HistoryQuestions(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrOSCENotStarted) {
		return nil, err
	}

	set, err := s.gen.GenerateOSCE(ctx, *primary)
	if err != nil {
		return nil, fmt.Errorf("generate osce set: %w", err)
	}

	followUps := make([]storedFollowUp, len(set.FollowUps))
	answerKey := make(map[string]interface{}, len(set.FollowUps))
	for i, seed := range set.FollowUps {
		id := uuid.New().String()
		followUps[i] = storedFollowUp{
			ID:          id,
			Question:    seed.Question,
			Category:    seed.Category,
			Answer:      seed.Answer,
			Explanation: seed.Explanation,
		}
		answerKey[id] = seed.Answer
	}

	historyJSON, err := json.Marshal(set.HistoryQuestions)
	if err != nil {
		return nil, fmt.Errorf("marshal history questions: %w", err)
	}
	followUpJSON, err := json.Marshal(followUps)
	if err != nil {
		return nil, fmt.Errorf("marshal follow-ups: %w", err)
	}

	// Seed all three keys atomically via pipeline.
	answersKey := config.CacheKey.OSCEAnswerKey(caseID.String())
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.OSCEHistoryKey(sessionID), historyJSON, s.ttl)
	pipe.Set(ctx, config.CacheKey.OSCEFollowUpKey(sessionID), followUpJSON, s.ttl)
	pipe.Del(ctx, answersKey)
	if len(answerKey) > 0 {
		pipe.HSet(ctx, answersKey, answerKey)
	}
	pipe.Expire(ctx, answersKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("seed osce caches: %w", err)
	}

	s.log.Info().
		Str("case_id", caseID.String()).
		Int("follow_ups", len(followUps)).
		Msg("OSCE session seeded")
	return set.HistoryQuestions, nil
}

// HistoryQuestions returns the cached history question set for a session.
func (s *OSCEService) HistoryQuestions(ctx context.Context, sessionID string) ([]model.HistoryQuestion, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.OSCEHistoryKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOSCENotStarted
		}
		return nil, fmt.Errorf("get history questions: %w", err)
	}

	var questions []model.HistoryQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal history questions: %w", err)
	}
	return questions, nil
}

// FollowUpsForClient returns the session's follow-up questions projected
// down to their client-safe fields. This is the only follow-up read path
// handlers are given; the graded half stays server-side until evaluation.
func (s *OSCEService) FollowUpsForClient(ctx context.Context, sessionID string) ([]model.FollowUpQuestionView, error) {
	questions, err := s.loadFollowUps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return ProjectFollowUps(questions), nil
}

// UpdateAnswer records a student answer against one follow-up question.
// Unknown question ids fail typed and leave the cache unmodified.
// Re-submitting overwrites the prior answer, never appends.
func (s *OSCEService) UpdateAnswer(ctx context.Context, sessionID, questionID, answer string) (*model.FollowUpQuestionView, error) {
	questions, err := s.loadFollowUps(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i := range questions {
		if questions[i].ID == questionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrQuestionNotFound
	}

	questions[idx].StudentAnswer = answer
	questions[idx].IsAnswered = true
	questions[idx].IsCorrect = nil // Grading happens at evaluation time.

	if err := s.storeFollowUps(ctx, sessionID, questions); err != nil {
		return nil, err
	}

	view := questions[idx].View()
	return &view, nil
}

// Evaluate grades a session against the hidden answer key and produces the
// scored evaluation. The answer key is read server-side only; the client
// first sees correct answers inside the corrections of the result.
func (s *OSCEService) Evaluate(ctx context.Context, sessionID string, caseID uuid.UUID) (*model.OSCEEvaluation, error) {
	questions, err := s.loadFollowUps(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	answerKey, err := s.rdb.HGetAll(ctx, config.CacheKey.OSCEAnswerKey(caseID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(answerKey) == 0 {
		return nil, ErrOSCENotStarted
	}

	var corrections []model.QuestionCorrection
	correct := map[string]int{}
	total := map[string]int{}

	for i := range questions {
		q := &questions[i]
		total[q.Category]++

		key := answerKey[q.ID]
		if key == "" {
			key = q.Answer
		}

		ok := q.IsAnswered && answersMatch(q.StudentAnswer, key)
		q.IsCorrect = &ok
		if ok {
			correct[q.Category]++
			continue
		}
		corrections = append(corrections, model.QuestionCorrection{
			QuestionID:    q.ID,
			Question:      q.Question,
			StudentAnswer: q.StudentAnswer,
			CorrectAnswer: key,
			Explanation:   q.Explanation,
		})
	}

	scores := model.ComponentScores{
		HistoryTaking: componentScore(correct, total, CategoryHistoryTaking),
		Examination:   componentScore(correct, total, CategoryExamination),
		Diagnosis:     componentScore(correct, total, CategoryDiagnosis),
		Management:    componentScore(correct, total, CategoryManagement),
	}

	eval := &model.OSCEEvaluation{
		SessionID:    sessionID,
		Scores:       scores,
		OverallScore: MeanScore(scores),
		Feedback:     buildFeedback(scores, corrections),
		CreatedAt:    time.Now(),
	}
	if err := ValidateEvaluation(eval); err != nil {
		return nil, err
	}

	// Persist the graded flags back so later reads see is_correct, and
	// cache the evaluation itself.
	if err := s.storeFollowUps(ctx, sessionID, questions); err != nil {
		return nil, err
	}
	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.OSCEEvaluationKey(sessionID), evalJSON, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("cache evaluation: %w", err)
	}

	s.log.Info().
		Str("case_id", caseID.String()).
		Float64("overall", eval.OverallScore).
		Msg("OSCE session evaluated")
	return eval, nil
}

// Evaluation returns the cached evaluation for a session.
func (s *OSCEService) Evaluation(ctx context.Context, sessionID string) (*model.OSCEEvaluation, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.OSCEEvaluationKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEvaluationMissing
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}

	eval := &model.OSCEEvaluation{}
	if err := json.Unmarshal(data, eval); err != nil {
		return nil, fmt.Errorf("unmarshal evaluation: %w", err)
	}
	return eval, nil
}

// InvalidateSession evicts every OSCE key for a session, called at case
// completion alongside the primary-context invalidation.
func (s *OSCEService) InvalidateSession(ctx context.Context, sessionID string, caseID uuid.UUID) error {
	return s.rdb.Del(ctx,
		config.CacheKey.OSCEHistoryKey(sessionID),
		config.CacheKey.OSCEFollowUpKey(sessionID),
		config.CacheKey.OSCEEvaluationKey(sessionID),
		config.CacheKey.OSCEAnswerKey(caseID.String()),
	).Err()
}

func (s *OSCEService) loadFollowUps(ctx context.Context, sessionID string) ([]model.FollowUpQuestion, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.OSCEFollowUpKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOSCENotStarted
		}
		return nil, fmt.Errorf("get follow-ups: %w", err)
	}

	var stored []storedFollowUp
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal follow-ups: %w", err)
	}

	questions := make([]model.FollowUpQuestion, len(stored))
	for i, q := range stored {
		questions[i] = fromStored(q)
	}
	return questions, nil
}

func (s *OSCEService) storeFollowUps(ctx context.Context, sessionID string, questions []model.FollowUpQuestion) error {
	stored := make([]storedFollowUp, len(questions))
	for i, q := range questions {
		stored[i] = toStored(q)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal follow-ups: %w", err)
	}
	// KeepTTL preserves the remaining session window.
	if err := s.rdb.Set(ctx, config.CacheKey.OSCEFollowUpKey(sessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("store follow-ups: %w", err)
	}
	return nil
}

// ProjectFollowUps maps follow-up questions to their client-safe view. The
// projection is total: whatever the input holds, the output cannot carry
// answer, explanation or correctness fields because the view type has no
// place for them.
func ProjectFollowUps(questions []model.FollowUpQuestion) []model.FollowUpQuestionView {
	views := make([]model.FollowUpQuestionView, len(questions))
	for i := range questions {
		views[i] = questions[i].View()
	}
	return views
}

// ClampScore bounds a component score to [0,100].
func ClampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// MeanScore returns the arithmetic mean of the four component scores at
// full precision. Rounding is display-only.
func MeanScore(s model.ComponentScores) float64 {
	return (s.HistoryTaking + s.Examination + s.Diagnosis + s.Management) / 4
}

// DisplayScore rounds a score for presentation; stored values keep full
// precision.
func DisplayScore(v float64) int {
	return int(math.Round(v))
}

// ValidateEvaluation rejects evaluations whose components leave [0,100] or
// whose overall score drifts from the component mean.
func ValidateEvaluation(e *model.OSCEEvaluation) error {
	components := []float64{e.Scores.HistoryTaking, e.Scores.Examination, e.Scores.Diagnosis, e.Scores.Management}
	for _, c := range components {
		if c < 0 || c > 100 || math.IsNaN(c) {
			return ErrInvalidEvaluation
		}
	}
	if math.Abs(e.OverallScore-MeanScore(e.Scores)) > scoreTolerance {
		return ErrInvalidEvaluation
	}
	return nil
}

func componentScore(correct, total map[string]int, category string) float64 {
	n := total[category]
	if n == 0 {
		return 0
	}
	return ClampScore(100 * float64(correct[category]) / float64(n))
}

func answersMatch(student, key string) bool {
	return strings.EqualFold(strings.TrimSpace(student), strings.TrimSpace(key))
}

func buildFeedback(scores model.ComponentScores, corrections []model.QuestionCorrection) model.EvaluationFeedback {
	fb := model.EvaluationFeedback{
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
		Corrections:     corrections,
	}

	components := []struct {
		name  string
		score float64
	}{
		{"history taking", scores.HistoryTaking},
		{"examination", scores.Examination},
		{"diagnosis", scores.Diagnosis},
		{"management", scores.Management},
	}

	for _, c := range components {
		switch {
		case c.score >= 75:
			fb.Strengths = append(fb.Strengths, fmt.Sprintf("Solid performance in %s (%d%%)", c.name, DisplayScore(c.score)))
		case c.score < 50:
			fb.Weaknesses = append(fb.Weaknesses, fmt.Sprintf("Weak performance in %s (%d%%)", c.name, DisplayScore(c.score)))
			fb.Recommendations = append(fb.Recommendations, fmt.Sprintf("Review the %s stations and reattempt a case in this department", c.name))
		}
	}
	return fb
}
