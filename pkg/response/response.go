package response

import "errors"

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

//Error Codes
type ErrCode string

var (
	FAILED_REQUEST     ErrCode = "REQUEST_FAILED"
	BAD_REQUEST        ErrCode = "FAILED_TO_DECODE"
	VALIDATION_FAILED  ErrCode = "VALIDATION_FAILED"
	NOT_FOUND          ErrCode = "NOT_FOUND"
	LOCKED             ErrCode = "LOCKED"
	CONFLICT           ErrCode = "CONFLICT"
	SLOT_NOT_AVAILABLE ErrCode = "SLOT_NOT_AVAILABLE"
	SLOTS_EXIST        ErrCode = "SLOTS_ALREADY_EXIST"
	SCHEDULE_OVERLAP   ErrCode = "SCHEDULE_OVERLAP"
	INVALID_TRANSITION ErrCode = "INVALID_TRANSITION"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("resource not found")
	ErrLocked            = errors.New("resource is locked")
	ErrConflict          = errors.New("conflict")
	ErrSlotNotAvailable  = errors.New("slot is not available")
	ErrSlotsExist        = errors.New("time slots already exist for this schedule")
	ErrScheduleOverlap   = errors.New("schedule overlaps an existing schedule")
	ErrScheduleInactive  = errors.New("schedule is not active")
	ErrNotADoctor        = errors.New("user is not a doctor")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError carries the human-readable rule that was violated.
// errors.Is(err, ErrValidation) matches it.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(msg string) error {
	return &ValidationError{Message: msg}
}

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}
