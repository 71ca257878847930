package alert

import (
	"github.com/go-playground/validator/v10"

	"github.com/unapuno/tesis/core"
)

// Type is the alert severity bucket.
type Type string

const (
	TypeDanger  Type = "danger"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Alert is a derived early-warning notification. It is never stored: the
// whole set is recomputed on every query, and its ID (a rule tag plus the
// source project id) is the stable key that dismissals join on.
type Alert struct {
	ID           string `json:"id"`
	Type         Type   `json:"type"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
}

// rule tags, prefixed onto the project id
const (
	tagTimeOver = "time-over-"
	tagTimeWarn = "time-warn-"
	tagRisk     = "risk-"
	tagTurnitin = "turnitin-"
	tagObserved = "obs-"
)

// ContactStudent is a director's request to email a student about an alert.
type ContactStudent struct {
	AlertID      string `json:"alert_id" validate:"required"`
	StudentName  string `json:"student_name" validate:"required"`
	StudentEmail string `json:"student_email" validate:"required,email"`
	Message      string `json:"message" validate:"required"`
}

func (cs *ContactStudent) Validate(validate *validator.Validate) error {
	cs.StudentName = core.CleanString(cs.StudentName)
	cs.StudentEmail = core.CleanString(cs.StudentEmail, true /* lower */)
	cs.Message = core.CleanString(cs.Message)
	return validate.Struct(cs)
}
