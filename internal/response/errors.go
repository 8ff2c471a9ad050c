package response

// ErrCode identifies an API error independently of its message.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrRunInvalidated     ErrCode = "RUN_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrAdminAccessOnly    ErrCode = "ADMIN_ACCESS_ONLY"
	ErrParticipantOnly    ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrAdminDisabled      ErrCode = "ADMIN_LOGIN_DISABLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidSession ErrCode = "INVALID_SESSION"
	ErrInvalidAnswer  ErrCode = "INVALID_ANSWER"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Participant flow ──────────────────────────────────────────────
	ErrRunNotStarted      ErrCode = "RUN_NOT_STARTED"
	ErrSessionNotStarted  ErrCode = "SESSION_NOT_STARTED"
	ErrSessionFinished    ErrCode = "SESSION_FINISHED"
	ErrSessionNotFinished ErrCode = "SESSION_NOT_FINISHED"
	ErrAlreadySubmitted   ErrCode = "ALREADY_SUBMITTED"
	ErrSubmitInProgress   ErrCode = "SUBMIT_IN_PROGRESS"
	ErrPopupNotVisible    ErrCode = "POPUP_NOT_VISIBLE"
	ErrNoEvaluation       ErrCode = "NO_EVALUATION"
	ErrEvaluationFinished ErrCode = "EVALUATION_FINISHED"
	ErrNoResult           ErrCode = "NO_RESULT"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

var messages = map[ErrCode]string{
	ErrInvalidCredentials: "Invalid admin secret.",
	ErrRunInvalidated:     "This run has been replaced by a newer one. Please start again.",
	ErrTokenRequired:      "Authentication token is required.",
	ErrTokenInvalid:       "Authentication token is invalid.",
	ErrTokenExpired:       "Authentication token has expired.",
	ErrAdminAccessOnly:    "This resource is restricted to administrators.",
	ErrParticipantOnly:    "This resource is restricted to participants.",
	ErrAdminDisabled:      "Admin login is not configured on this server.",

	ErrValidation:     "Validation failed. Please check your input.",
	ErrInvalidID:      "Invalid ID format.",
	ErrInvalidPayload: "Invalid request payload.",
	ErrInvalidSession: "Invalid session.",
	ErrInvalidAnswer:  "The answer is not one of the allowed choices.",

	ErrNotFound: "Resource not found.",
	ErrConflict: "Resource already exists.",

	ErrRunNotStarted:      "No active run. Start a new test first.",
	ErrSessionNotStarted:  "This session has not been started.",
	ErrSessionFinished:    "This session is already finished.",
	ErrSessionNotFinished: "Submit the session before starting its break.",
	ErrAlreadySubmitted:   "Answers for this session were already saved.",
	ErrSubmitInProgress:   "A submission for this session is in progress.",
	ErrPopupNotVisible:    "This popup is not currently shown.",
	ErrNoEvaluation:       "No evaluation form is available.",
	ErrEvaluationFinished: "The evaluation for this break is already saved.",
	ErrNoResult:           "No results yet.",

	ErrFileRequired:    "A file upload is required.",
	ErrUnsupportedFile: "Only image files are allowed.",
	ErrFileTooLarge:    "File size exceeds the limit.",

	ErrRateLimitExceeded: "Too many requests. Please try again later.",

	ErrInternal: "Internal server error.",
}

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return "An unexpected error occurred."
}
