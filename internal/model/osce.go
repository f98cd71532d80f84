package model

import "time"

// HistoryQuestion is a model history-taking question shown to the student
// after the OSCE consultation phase. Carries no hidden fields.
type HistoryQuestion struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Category string `json:"category"`
}

// FollowUpQuestion is the server-side record of an OSCE follow-up question.
// Answer and Explanation are the grading half and are excluded from JSON so
// that this type can never leak them to a client, even if serialized
// directly by mistake. The OSCE cache persists them through a private
// storage codec instead.
type FollowUpQuestion struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Category      string `json:"category"`
	Answer        string `json:"-"`
	Explanation   string `json:"-"`
	IsAnswered    bool   `json:"is_answered"`
	StudentAnswer string `json:"student_answer,omitempty"`
	IsCorrect     *bool  `json:"is_correct,omitempty"`
}

// FollowUpQuestionView is the client projection of a follow-up question:
// only the fields a student may see before grading.
type FollowUpQuestionView struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Category      string `json:"category"`
	IsAnswered    bool   `json:"is_answered"`
	StudentAnswer string `json:"student_answer,omitempty"`
}

// View projects the question down to its client-safe fields.
func (q *FollowUpQuestion) View() FollowUpQuestionView {
	return FollowUpQuestionView{
		ID:            q.ID,
		Question:      q.Question,
		Category:      q.Category,
		IsAnswered:    q.IsAnswered,
		StudentAnswer: q.StudentAnswer,
	}
}

// ComponentScores is the four-part OSCE score breakdown, each in [0,100].
type ComponentScores struct {
	HistoryTaking float64 `json:"history_taking"`
	Examination   float64 `json:"examination"`
	Diagnosis     float64 `json:"diagnosis"`
	Management    float64 `json:"management"`
}

// QuestionCorrection pairs a graded follow-up question with its model
// answer. Only ever produced at grading time, after submission.
type QuestionCorrection struct {
	QuestionID    string `json:"question_id"`
	Question      string `json:"question"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation,omitempty"`
}

// EvaluationFeedback is the structured narrative half of an evaluation.
type EvaluationFeedback struct {
	Strengths       []string             `json:"strengths"`
	Weaknesses      []string             `json:"weaknesses"`
	Recommendations []string             `json:"recommendations"`
	Corrections     []QuestionCorrection `json:"corrections,omitempty"`
}

// OSCEEvaluation is the scored outcome of an OSCE session. OverallScore is
// always the arithmetic mean of the four component scores; stored at full
// precision, rounded only for display.
type OSCEEvaluation struct {
	SessionID    string             `json:"session_id"`
	Scores       ComponentScores    `json:"scores"`
	OverallScore float64            `json:"overall_score"`
	Feedback     EvaluationFeedback `json:"feedback"`
	CreatedAt    time.Time          `json:"created_at"`
}

// AnswerFollowUpRequest submits a student answer to one follow-up question.
type AnswerFollowUpRequest struct {
	QuestionID string `json:"question_id" binding:"required"`
	Answer     string `json:"answer" binding:"required,min=1,max=2000"`
}
