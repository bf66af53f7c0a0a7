package sheets

import (
	"errors"
	"fmt"
)

// SubmissionRequest is the body both spreadsheet endpoints expect.
type SubmissionRequest struct {
	GroupID   string `json:"grupo_id"`
	Timestamp string `json:"timestamp"` // ISO 8601
	Record    string `json:"transacao"` // "<ref>|<value>|<phone>"
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

// SubmissionResponse is the JSON flavour of the endpoint reply. Older
// deployments answer with plain text instead.
type SubmissionResponse struct {
	Success        bool   `json:"success"`
	Duplicate      bool   `json:"duplicado"`
	ExistingStatus string `json:"status_existente,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Kind tells orders and payments apart.
type Kind string

const (
	KindOrder   Kind = "order"
	KindPayment Kind = "payment"
)

// Outcome is how the endpoint classified a submission.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

var ErrSubmissionFailure = errors.New("submission failed")

// SubmissionError is returned for anything that is neither a recorded nor a
// duplicate submission.
type SubmissionError struct {
	Kind       Kind
	Reference  string
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Kind, e.Reference)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status: %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailure
}
