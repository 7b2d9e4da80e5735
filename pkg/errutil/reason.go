package errutil

import "errors"

// Reason is the machine readable kind of a domain failure.
type Reason string

const (
	ReasonInvalidTransition    Reason = "INVALID_TRANSITION"
	ReasonDuplicateApplication Reason = "DUPLICATE_APPLICATION"
	ReasonCapacityExceeded     Reason = "CAPACITY_EXCEEDED"
	ReasonVerificationRequired Reason = "VERIFICATION_REQUIRED"
	ReasonInsufficientBalance  Reason = "INSUFFICIENT_BALANCE"
	ReasonOverdraftRisk        Reason = "OVERDRAFT_RISK"
	ReasonConflictRetry        Reason = "CONFLICT_RETRY"
	ReasonValidation           Reason = "VALIDATION_ERROR"
	ReasonCampaignNotOpen      Reason = "CAMPAIGN_NOT_OPEN"
	ReasonNotFound             Reason = "NOT_FOUND"
	ReasonForbidden            Reason = "FORBIDDEN"
)

// Sentinels for errors.Is.
var (
	ErrInvalidTransition    = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonInvalidTransition}
	ErrDuplicateApplication = BaseError{Code: StatusConflict, Reason: ReasonDuplicateApplication}
	ErrCapacityExceeded     = BaseError{Code: StatusConflict, Reason: ReasonCapacityExceeded}
	ErrVerificationRequired = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonVerificationRequired}
	ErrInsufficientBalance  = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonInsufficientBalance}
	ErrOverdraftRisk        = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonOverdraftRisk}
	ErrConflictRetry        = BaseError{Code: StatusConflict, Reason: ReasonConflictRetry}
	ErrValidation           = BaseError{Code: StatusValidationFailed, Reason: ReasonValidation}
	ErrCampaignNotOpen      = BaseError{Code: StatusUnprocessableEntity, Reason: ReasonCampaignNotOpen}
	ErrNotFound             = BaseError{Code: StatusNotFound, Reason: ReasonNotFound}
	ErrForbidden            = BaseError{Code: StatusForbidden, Reason: ReasonForbidden}
)

func InvalidTransition(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithReason(ReasonInvalidTransition)}, options...)...)
}

func DuplicateApplication(msg string, options ...Option) error {
	return New(StatusConflict, msg, append([]Option{WithReason(ReasonDuplicateApplication)}, options...)...)
}

func CapacityExceeded(msg string, options ...Option) error {
	return New(StatusConflict, msg, append([]Option{WithReason(ReasonCapacityExceeded)}, options...)...)
}

func VerificationRequired(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithReason(ReasonVerificationRequired)}, options...)...)
}

func InsufficientBalance(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithReason(ReasonInsufficientBalance)}, options...)...)
}

func OverdraftRisk(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithReason(ReasonOverdraftRisk)}, options...)...)
}

func ConflictRetry(msg string, options ...Option) error {
	return New(StatusConflict, msg, append([]Option{WithReason(ReasonConflictRetry)}, options...)...)
}

func Validation(msg string, options ...Option) error {
	return New(StatusValidationFailed, msg, append([]Option{WithReason(ReasonValidation)}, options...)...)
}

func CampaignNotOpen(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, append([]Option{WithReason(ReasonCampaignNotOpen)}, options...)...)
}

// HasReason reports whether any BaseError in err's chain carries reason.
func HasReason(err error, reason Reason) bool {
	var be BaseError
	if !errors.As(err, &be) {
		return false
	}
	return be.Reason == reason
}
