package calls

import (
	"strings"
	"time"
)

// Record is one attempted phone call, as reported by the telephony provider.
//
// Records are immutable once fetched: analytics folds over them and never
// writes back. Duration is meaningful only for completed calls.
//
// From is usually E.164, but softphone-originated calls arrive as a
// synthetic caller ID of the form "client:<userId>-<locationId>".
type Record struct {
	SID  string `json:"sid"`
	From string `json:"from"`
	To   string `json:"to"`

	Status Status `json:"status"`

	// DurationSeconds is the call duration in seconds.
	DurationSeconds int `json:"duration"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	Direction string `json:"direction,omitempty"`

	Price     string `json:"price,omitempty"`
	PriceUnit string `json:"price_unit,omitempty"`
}

// Status uses the provider's hyphenated spellings verbatim so records
// survive a JSON round trip without remapping.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNoAnswer   Status = "no-answer"
	StatusBusy       Status = "busy"
	StatusCanceled   Status = "canceled"
)

// IsConnected reports whether the call actually reached a human:
// completed with a nonzero duration. Zero-duration completed calls are
// provider artifacts and do not count toward answer rates.
func (r Record) IsConnected() bool {
	return r.Status == StatusCompleted && r.DurationSeconds > 0
}

const clientCallerPrefix = "client:"

// ClientCallerID extracts the user ID from a synthetic softphone caller
// ("client:<userId>-<locationId>"). Returns "" when the From field is a
// plain phone number or the synthetic form is malformed.
func (r Record) ClientCallerID() string {
	if !strings.HasPrefix(r.From, clientCallerPrefix) {
		return ""
	}
	rest := r.From[len(clientCallerPrefix):]
	i := strings.IndexByte(rest, '-')
	if i <= 0 {
		return ""
	}
	return rest[:i]
}

// NormalizePhone strips every non-digit so numbers from different sources
// ("+1 (510) 555-0100", "15105550100") compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for i := 0; i < len(phone); i++ {
		ch := phone[i]
		if ch >= '0' && ch <= '9' {
			b.WriteByte(ch)
		}
	}
	return b.String()
}
