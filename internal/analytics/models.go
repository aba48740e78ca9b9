package analytics

import (
	"math"

	"dialops/internal/calls"
	"dialops/internal/numbers"
)

// SpamRisk is a heuristic classification of how likely a number is to be
// carrier-flagged, based purely on call volume and answer rate.
type SpamRisk string

const (
	SpamRiskGood   SpamRisk = "good"
	SpamRiskMedium SpamRisk = "medium"
	SpamRiskHigh   SpamRisk = "high"
	SpamRiskNoData SpamRisk = "no-data"
)

// ClassifySpamRisk applies the risk table. Precedence matters and the
// volume threshold is strictly greater than 10:
//
//	totalCalls == 0                      -> no-data
//	totalCalls > 10 && answerRate < 30   -> high
//	totalCalls > 10 && answerRate < 50   -> medium
//	otherwise                            -> good
func ClassifySpamRisk(totalCalls, answerRate int) SpamRisk {
	switch {
	case totalCalls == 0:
		return SpamRiskNoData
	case totalCalls > 10 && answerRate < 30:
		return SpamRiskHigh
	case totalCalls > 10 && answerRate < 50:
		return SpamRiskMedium
	default:
		return SpamRiskGood
	}
}

// NumberSummary is the per-number aggregate for one reporting window.
type NumberSummary struct {
	PhoneNumber  string       `json:"phoneNumber"`
	FriendlyName string       `json:"friendlyName"`
	SID          string       `json:"sid"`
	Role         numbers.Role `json:"role"`

	TotalCalls     int `json:"totalCalls"`
	CompletedCalls int `json:"completedCalls"`
	NoAnswerCalls  int `json:"noAnswerCalls"`
	FailedCalls    int `json:"failedCalls"`
	CanceledCalls  int `json:"canceledCalls"`

	AnswerRate  int `json:"answerRate"`
	AvgDuration int `json:"avgDuration"`

	SpamRisk SpamRisk `json:"spamRisk"`
}

// NumberReport is the full output of a by-number aggregation pass.
type NumberReport struct {
	Period  string          `json:"period"`
	Numbers []NumberSummary `json:"numbers"`
	Summary NumberRollup    `json:"summary"`

	Cached   bool `json:"cached,omitempty"`
	CacheAge int  `json:"cacheAge,omitempty"`
}

// NumberRollup summarizes a NumberReport.
type NumberRollup struct {
	TotalNumbers int `json:"totalNumbers"`
	TotalCalls   int `json:"totalCalls"`

	// Truncated means the call fetch hit its record cap and counts may
	// undercount.
	Truncated bool `json:"truncated"`

	HighRiskNumbers   int `json:"highRiskNumbers"`
	MediumRiskNumbers int `json:"mediumRiskNumbers"`
	GoodNumbers       int `json:"goodNumbers"`
	NoDataNumbers     int `json:"noDataNumbers"`
}

// UserSummary is the per-staff-member aggregate for one reporting window.
type UserSummary struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Email    string `json:"email"`

	TotalCalls       int `json:"totalCalls"`
	OwnNumberCalls   int `json:"ownNumberCalls"`
	StateNumberCalls int `json:"stateNumberCalls"`
	CompletedCalls   int `json:"completedCalls"`

	Bookings       int `json:"bookings"`
	AnswerRate     int `json:"answerRate"`
	AvgDuration    int `json:"avgDuration"`
	ConversionRate int `json:"conversionRate"`

	// CallsByDay is keyed by calendar date (2006-01-02) in the reference
	// timezone.
	CallsByDay map[string]int `json:"callsByDay"`

	NumberTypes map[numbers.Role]int `json:"numberTypes"`
}

// UserReport is the full output of a by-user aggregation pass.
type UserReport struct {
	Period  string        `json:"period"`
	Setters []UserSummary `json:"setters"`
	Summary UserRollup    `json:"summary"`

	Cached   bool `json:"cached,omitempty"`
	CacheAge int  `json:"cacheAge,omitempty"`
}

// UserRollup summarizes a UserReport.
type UserRollup struct {
	TotalSetters      int `json:"totalSetters"`
	TotalCalls        int `json:"totalCalls"`
	AvgCallsPerSetter int `json:"avgCallsPerSetter"`

	// UnmappedCalls counts call records dropped because they could not be
	// attributed to a staff member who currently owns a number. Ex-staff
	// history lands here on purpose.
	UnmappedCalls int `json:"unmappedCalls"`

	// Degraded means the directory, roster-assignment, or opportunity
	// collaborator failed and the report was computed against empty data
	// for that source. Zero bookings in a degraded report is not evidence
	// that no bookings happened.
	Degraded bool `json:"degraded,omitempty"`

	Truncated bool `json:"truncated"`
}

// NumberDetail is the drill-down view of one number: aggregate stats plus
// the most recent call records.
type NumberDetail struct {
	PhoneNumber string `json:"phoneNumber"`
	Period      string `json:"period"`

	TotalCalls     int `json:"totalCalls"`
	CompletedCalls int `json:"completedCalls"`
	NoAnswerCalls  int `json:"noAnswerCalls"`
	FailedCalls    int `json:"failedCalls"`
	CanceledCalls  int `json:"canceledCalls"`

	AnswerRate  int `json:"answerRate"`
	AvgDuration int `json:"avgDuration"`

	SpamRisk SpamRisk `json:"spamRisk"`

	Calls []calls.Record `json:"calls"`
}

// User is the slice of a staff identity the aggregator needs.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Opportunity is a converted lead from the CRM; only the contact phone
// matters for booking attribution.
type Opportunity struct {
	ContactPhone string `json:"contactPhone"`
}

// roundRate converts a numerator/denominator pair to a whole percentage,
// 0 when the denominator is 0 so there is never a divide-by-zero.
func roundRate(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}

// roundMean returns the rounded mean of sum over n, 0 when n == 0.
func roundMean(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}
