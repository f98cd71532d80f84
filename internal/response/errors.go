package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrUnauthorized       ErrCode = "UNAUTHORIZED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Case sessions ─────────────────────────────────────────────────
	ErrSessionRequired ErrCode = "SESSION_REQUIRED"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"
	ErrSessionExpired  ErrCode = "SESSION_EXPIRED"
	ErrSessionInactive ErrCode = "SESSION_INACTIVE"
	ErrContextNotFound ErrCode = "CONTEXT_NOT_FOUND"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound      ErrCode = "NOT_FOUND"
	ErrCaseNotFound  ErrCode = "CASE_NOT_FOUND"
	ErrCaseCompleted ErrCode = "CASE_ALREADY_COMPLETED"
	ErrConflict      ErrCode = "CONFLICT"

	// ─── OSCE ──────────────────────────────────────────────────────────
	ErrQuestionNotFound  ErrCode = "QUESTION_NOT_FOUND"
	ErrOSCENotStarted    ErrCode = "OSCE_NOT_STARTED"
	ErrNotOSCECase       ErrCode = "NOT_AN_OSCE_CASE"
	ErrEvaluationMissing ErrCode = "EVALUATION_NOT_FOUND"
	ErrInvalidEvaluation ErrCode = "INVALID_EVALUATION"

	// ─── Server ────────────────────────────────────────────────────────
	ErrGeneratorFailed ErrCode = "GENERATOR_FAILED"
	ErrStorage         ErrCode = "STORAGE_ERROR"
	ErrInternal        ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrUnauthorized:
		return "Authentication is required."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The token is invalid."
	case ErrTokenExpired:
		return "The token has expired."

	// ─── Case sessions ─────────────────────────────────────────────────
	case ErrSessionRequired:
		return "No case session was supplied with the request."
	case ErrSessionNotFound:
		return "No matching case session was found."
	case ErrSessionExpired:
		return "The case session has expired."
	case ErrSessionInactive:
		return "The case session is no longer active."
	case ErrContextNotFound:
		return "The case context could not be resolved."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "This session belongs to another user."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrCaseNotFound:
		return "Case not found."
	case ErrCaseCompleted:
		return "This case has already been completed."
	case ErrConflict:
		return "Resource already exists."

	// ─── OSCE ──────────────────────────────────────────────────────────
	case ErrQuestionNotFound:
		return "Unknown follow-up question."
	case ErrOSCENotStarted:
		return "The OSCE stage has not been started for this session."
	case ErrNotOSCECase:
		return "This case was not generated in OSCE mode."
	case ErrEvaluationMissing:
		return "No evaluation exists for this session yet."
	case ErrInvalidEvaluation:
		return "The evaluation result failed validation."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrGeneratorFailed:
		return "The case generator is unavailable. Please try again."
	case ErrStorage:
		return "A storage error occurred."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
