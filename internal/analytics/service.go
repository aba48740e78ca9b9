package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"dialops/internal/calls"
	"dialops/internal/numbers"
)

// ErrCollaboratorUnavailable means the call-log fetch failed. That source
// is the point of the dashboard, so the aggregation fails outright; the
// HTTP boundary decides whether to serve anything stale.
var ErrCollaboratorUnavailable = errors.New("analytics: call log unavailable")

// ErrInvalidWindow rejects non-positive trailing-day windows.
var ErrInvalidWindow = errors.New("analytics: window days must be positive")

// Collaborator contracts. All four are remote APIs in production; tests
// inject fakes with call counters.

// CallLog returns call records starting at since, newest-first ordering
// not assumed, at most limit records.
type CallLog interface {
	ListCalls(ctx context.Context, since time.Time, limit int) ([]calls.Record, error)
}

// Roster returns the numbers the business owns at the provider.
type Roster interface {
	ListOwned(ctx context.Context) ([]numbers.OwnedNumber, error)
}

// Directory returns staff identities from the CRM.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Opportunities returns converted leads from the CRM inside a window.
type Opportunities interface {
	ListOpportunities(ctx context.Context, since time.Time) ([]Opportunity, error)
}

// Settings fixes the aggregator's reference frame.
type Settings struct {
	// Zone is the fixed reporting timezone (historically UTC-5).
	Zone *time.Location

	// FetchLimit caps one call-log fetch; hits set the truncated flag.
	FetchLimit int

	// RoleOverrides pins number roles the substring convention would
	// misclassify.
	RoleOverrides map[string]numbers.Role
}

// Service is the call aggregator. Aggregation is a pure function of the
// collaborator data and the window; the injected cache is the only state.
type Service struct {
	callLog     CallLog
	roster      Roster
	assignments numbers.AssignmentSource
	directory   Directory
	opps        Opportunities

	cache    Cache
	settings Settings

	clock func() time.Time
	log   *slog.Logger
}

func NewService(callLog CallLog, roster Roster, assignments numbers.AssignmentSource, directory Directory, opps Opportunities, cache Cache, settings Settings, log *slog.Logger) *Service {
	if settings.Zone == nil {
		settings.Zone = time.FixedZone("UTC-5", -5*3600)
	}
	if settings.FetchLimit <= 0 {
		settings.FetchLimit = 20000
	}
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		callLog:     callLog,
		roster:      roster,
		assignments: assignments,
		directory:   directory,
		opps:        opps,
		cache:       cache,
		settings:    settings,
		clock:       time.Now,
		log:         log,
	}
}

// AggregateByNumber produces per-number performance summaries for a
// trailing window of windowDays, ranked so the numbers most worth looking
// at surface first.
func (s *Service) AggregateByNumber(ctx context.Context, windowDays int) (NumberReport, error) {
	if windowDays < 1 {
		return NumberReport{}, ErrInvalidWindow
	}

	cacheKey := fmt.Sprintf("calls:%d", windowDays)
	var cached NumberReport
	if ok := s.cacheGet(ctx, cacheKey, &cached); ok {
		return cached, nil
	}

	since := WindowStart(s.clock(), windowDays, s.settings.Zone)

	owned, err := s.roster.ListOwned(ctx)
	if err != nil {
		return NumberReport{}, fmt.Errorf("analytics: number roster: %w", err)
	}
	records, err := s.callLog.ListCalls(ctx, since, s.settings.FetchLimit)
	if err != nil {
		return NumberReport{}, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	truncated := len(records) >= s.settings.FetchLimit

	report := NumberReport{
		Period:  PeriodLabel(windowDays),
		Numbers: make([]NumberSummary, 0, len(owned)),
	}

	for _, n := range owned {
		sum := NumberSummary{
			PhoneNumber:  n.PhoneNumber,
			FriendlyName: n.FriendlyName,
			SID:          n.SID,
			Role:         numbers.ResolveRole(n.PhoneNumber, s.settings.RoleOverrides),
		}

		durationSum, connected := 0, 0
		for _, r := range records {
			if r.From != n.PhoneNumber {
				continue
			}
			sum.TotalCalls++
			switch {
			case r.IsConnected():
				sum.CompletedCalls++
				connected++
				durationSum += r.DurationSeconds
			case r.Status == calls.StatusNoAnswer:
				sum.NoAnswerCalls++
			case r.Status == calls.StatusFailed, r.Status == calls.StatusBusy:
				sum.FailedCalls++
			case r.Status == calls.StatusCanceled:
				sum.CanceledCalls++
			}
		}

		sum.AnswerRate = roundRate(sum.CompletedCalls, sum.TotalCalls)
		sum.AvgDuration = roundMean(durationSum, connected)
		sum.SpamRisk = ClassifySpamRisk(sum.TotalCalls, sum.AnswerRate)
		report.Numbers = append(report.Numbers, sum)
	}

	// Ranking: busiest first; equal volume puts high-risk numbers ahead;
	// then the worse answer rate surfaces first.
	sort.SliceStable(report.Numbers, func(i, j int) bool {
		a, b := report.Numbers[i], report.Numbers[j]
		if a.TotalCalls != b.TotalCalls {
			return a.TotalCalls > b.TotalCalls
		}
		if (a.SpamRisk == SpamRiskHigh) != (b.SpamRisk == SpamRiskHigh) {
			return a.SpamRisk == SpamRiskHigh
		}
		return a.AnswerRate < b.AnswerRate
	})

	report.Summary.TotalNumbers = len(report.Numbers)
	report.Summary.Truncated = truncated
	for _, sum := range report.Numbers {
		report.Summary.TotalCalls += sum.TotalCalls
		switch sum.SpamRisk {
		case SpamRiskHigh:
			report.Summary.HighRiskNumbers++
		case SpamRiskMedium:
			report.Summary.MediumRiskNumbers++
		case SpamRiskGood:
			report.Summary.GoodNumbers++
		case SpamRiskNoData:
			report.Summary.NoDataNumbers++
		}
	}
	if truncated {
		s.log.Warn("call fetch hit record cap; number stats may undercount",
			"limit", s.settings.FetchLimit, "window_days", windowDays)
	}

	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// AggregateByUser produces per-staff performance summaries for a trailing
// window. Only users who currently own a number in the CRM are reported;
// everything else counts as unmapped. Directory and opportunity failures
// degrade to empty data instead of failing the report.
func (s *Service) AggregateByUser(ctx context.Context, windowDays int) (UserReport, error) {
	if windowDays < 1 {
		return UserReport{}, ErrInvalidWindow
	}

	cacheKey := fmt.Sprintf("setters:%d", windowDays)
	var cached UserReport
	if ok := s.cacheGet(ctx, cacheKey, &cached); ok {
		return cached, nil
	}

	since := WindowStart(s.clock(), windowDays, s.settings.Zone)
	degraded := false

	assignments, err := s.assignments.ListAssignments(ctx)
	if err != nil {
		s.log.Warn("assignment fetch failed; computing without user mapping", "err", err)
		degraded = true
		assignments = nil
	}
	users, err := s.directory.ListUsers(ctx)
	if err != nil {
		s.log.Warn("directory fetch failed; user names unavailable", "err", err)
		degraded = true
		users = nil
	}
	opps, err := s.opps.ListOpportunities(ctx, since)
	if err != nil {
		s.log.Warn("opportunity fetch failed; bookings unavailable", "err", err)
		degraded = true
		opps = nil
	}

	records, err := s.callLog.ListCalls(ctx, since, s.settings.FetchLimit)
	if err != nil {
		return UserReport{}, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}
	truncated := len(records) >= s.settings.FetchLimit

	// Number -> owning user, exact string match on the provider's caller ID.
	numberToUser := make(map[string]string, len(assignments))
	for _, a := range assignments {
		if a.LinkedUserID != "" {
			numberToUser[a.PhoneNumber] = a.LinkedUserID
		}
	}
	// The valid-user set: owning at least one number means active staff.
	validUsers := make(map[string]struct{}, len(numberToUser))
	for _, uid := range numberToUser {
		validUsers[uid] = struct{}{}
	}
	userByID := make(map[string]User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}

	resolve := func(r calls.Record) string {
		if uid, ok := numberToUser[r.From]; ok {
			return uid
		}
		return r.ClientCallerID()
	}

	stats := map[string]*UserSummary{}
	order := []string{} // first-seen order keeps the sort deterministic
	unmapped := 0

	for _, r := range records {
		uid := resolve(r)
		if uid == "" {
			unmapped++
			continue
		}
		if _, ok := validUsers[uid]; !ok {
			// Recognized but unassigned: ex-staff history, dropped on purpose.
			unmapped++
			continue
		}

		sum, ok := stats[uid]
		if !ok {
			u := userByID[uid]
			name := u.Name
			if name == "" {
				name = "Unknown User"
			}
			sum = &UserSummary{
				UserID:      uid,
				UserName:    name,
				Email:       u.Email,
				CallsByDay:  map[string]int{},
				NumberTypes: map[numbers.Role]int{},
			}
			stats[uid] = sum
			order = append(order, uid)
		}

		role := numbers.ResolveRole(r.From, s.settings.RoleOverrides)
		sum.TotalCalls++
		if role.IsPersonal() {
			sum.OwnNumberCalls++
		} else {
			sum.StateNumberCalls++
		}
		sum.NumberTypes[role]++
		if r.IsConnected() {
			sum.CompletedCalls++
		}
		if !r.StartTime.IsZero() {
			sum.CallsByDay[DayKey(r.StartTime, s.settings.Zone)]++
		}
	}

	// Second pass: rates, durations, and booking attribution per user.
	report := UserReport{
		Period:  PeriodLabel(windowDays),
		Setters: make([]UserSummary, 0, len(order)),
	}
	for _, uid := range order {
		sum := stats[uid]
		sum.AnswerRate = roundRate(sum.CompletedCalls, sum.TotalCalls)

		durationSum, connected := 0, 0
		destinations := map[string]struct{}{}
		for _, r := range records {
			if resolve(r) != uid {
				continue
			}
			if r.IsConnected() {
				durationSum += r.DurationSeconds
				connected++
			}
			if to := calls.NormalizePhone(r.To); to != "" {
				destinations[to] = struct{}{}
			}
		}
		sum.AvgDuration = roundMean(durationSum, connected)

		for _, opp := range opps {
			phone := calls.NormalizePhone(opp.ContactPhone)
			if phone == "" {
				continue
			}
			if _, ok := destinations[phone]; ok {
				sum.Bookings++
			}
		}
		sum.ConversionRate = roundRate(sum.Bookings, sum.CompletedCalls)

		report.Setters = append(report.Setters, *sum)
	}

	sort.SliceStable(report.Setters, func(i, j int) bool {
		return report.Setters[i].TotalCalls > report.Setters[j].TotalCalls
	})

	for _, sum := range report.Setters {
		report.Summary.TotalCalls += sum.TotalCalls
	}
	report.Summary.TotalSetters = len(report.Setters)
	report.Summary.AvgCallsPerSetter = roundMean(report.Summary.TotalCalls, len(report.Setters))
	report.Summary.UnmappedCalls = unmapped
	report.Summary.Degraded = degraded
	report.Summary.Truncated = truncated

	if unmapped > 0 {
		s.log.Info("calls not attributed to any active staff member",
			"unmapped", unmapped, "window_days", windowDays)
	}

	s.cacheSet(ctx, cacheKey, report)
	return report, nil
}

// maxDetailCalls bounds the raw records returned by NumberDetail.
const maxDetailCalls = 50

// NumberStats drills into one number: aggregate stats plus the most
// recent records for the detail view. Not cached; the per-number view is
// rarely polled.
func (s *Service) NumberStats(ctx context.Context, phoneNumber string, windowDays int) (NumberDetail, error) {
	if windowDays < 1 {
		return NumberDetail{}, ErrInvalidWindow
	}
	if phoneNumber == "" {
		return NumberDetail{}, errors.New("analytics: phone number is required")
	}

	since := WindowStart(s.clock(), windowDays, s.settings.Zone)
	records, err := s.callLog.ListCalls(ctx, since, s.settings.FetchLimit)
	if err != nil {
		return NumberDetail{}, fmt.Errorf("%w: %v", ErrCollaboratorUnavailable, err)
	}

	detail := NumberDetail{
		PhoneNumber: phoneNumber,
		Period:      PeriodLabel(windowDays),
		Calls:       []calls.Record{},
	}

	durationSum, connected := 0, 0
	for _, r := range records {
		if r.From != phoneNumber {
			continue
		}
		detail.TotalCalls++
		switch {
		case r.IsConnected():
			detail.CompletedCalls++
			connected++
			durationSum += r.DurationSeconds
		case r.Status == calls.StatusNoAnswer:
			detail.NoAnswerCalls++
		case r.Status == calls.StatusFailed, r.Status == calls.StatusBusy:
			detail.FailedCalls++
		case r.Status == calls.StatusCanceled:
			detail.CanceledCalls++
		}
		if len(detail.Calls) < maxDetailCalls {
			detail.Calls = append(detail.Calls, r)
		}
	}

	detail.AnswerRate = roundRate(detail.CompletedCalls, detail.TotalCalls)
	detail.AvgDuration = roundMean(durationSum, connected)
	detail.SpamRisk = ClassifySpamRisk(detail.TotalCalls, detail.AnswerRate)
	return detail, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, out interface{}) bool {
	val, age, ok := s.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		s.log.Warn("cache entry undecodable; recomputing", "key", key, "err", err)
		return false
	}
	ageSecs := int(age.Seconds())
	switch r := out.(type) {
	case *NumberReport:
		r.Cached = true
		r.CacheAge = ageSecs
	case *UserReport:
		r.Cached = true
		r.CacheAge = ageSecs
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, report interface{}) {
	val, err := json.Marshal(report)
	if err != nil {
		s.log.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	s.cache.Set(ctx, key, val)
}
