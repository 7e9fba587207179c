package toolgate

import (
	"github.com/pkamenev/toolgate/internal/confirm"
	"github.com/pkamenev/toolgate/internal/gateway"
)

// Status classifies what happened to an invocation.
type Status string

const (
	StatusDenied       Status = Status(gateway.StatusDenied)
	StatusConfirmation Status = Status(gateway.StatusConfirmation)
	StatusSuccess      Status = Status(gateway.StatusSuccess)
	StatusFailure      Status = Status(gateway.StatusFailure)
)

// ConfirmPhrase is the exact text Confirm expects for approval.
const ConfirmPhrase = confirm.Phrase

// Response is the outcome of Invoke or Confirm.
type Response struct {
	Status      Status
	Reason      string
	ChallengeID string
	Output      string
}

// VerifyResult reports audit chain integrity.
type VerifyResult struct {
	Valid   bool
	Entries int
	Seq     uint64
	Line    int
	Error   string
}

func toResponse(r *gateway.Response) *Response {
	return &Response{
		Status:      Status(r.Status),
		Reason:      r.Reason,
		ChallengeID: r.ChallengeID,
		Output:      r.Output,
	}
}
