package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"dialops/internal/calls"
	"dialops/internal/numbers"
)

type fakeCallLog struct {
	records []calls.Record
	err     error
	fetches int
}

func (f *fakeCallLog) ListCalls(_ context.Context, _ time.Time, limit int) ([]calls.Record, error) {
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakeRoster struct {
	owned   []numbers.OwnedNumber
	err     error
	fetches int
}

func (f *fakeRoster) ListOwned(context.Context) ([]numbers.OwnedNumber, error) {
	f.fetches++
	return f.owned, f.err
}

type fakeAssignments struct {
	assignments []numbers.Assignment
	err         error
}

func (f *fakeAssignments) ListAssignments(context.Context) ([]numbers.Assignment, error) {
	return f.assignments, f.err
}

type fakeDirectory struct {
	users []User
	err   error
}

func (f *fakeDirectory) ListUsers(context.Context) ([]User, error) {
	return f.users, f.err
}

type fakeOpps struct {
	opps []Opportunity
	err  error
}

func (f *fakeOpps) ListOpportunities(context.Context, time.Time) ([]Opportunity, error) {
	return f.opps, f.err
}

type testEnv struct {
	callLog     *fakeCallLog
	roster      *fakeRoster
	assignments *fakeAssignments
	directory   *fakeDirectory
	opps        *fakeOpps
	svc         *Service
}

func newTestEnv(t *testing.T, cache Cache) *testEnv {
	t.Helper()
	env := &testEnv{
		callLog:     &fakeCallLog{},
		roster:      &fakeRoster{},
		assignments: &fakeAssignments{},
		directory:   &fakeDirectory{},
		opps:        &fakeOpps{},
	}
	env.svc = NewService(env.callLog, env.roster, env.assignments, env.directory, env.opps, cache, Settings{
		Zone:       testZone,
		FetchLimit: 100,
	}, nil)
	env.svc.clock = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return env
}

func connectedCall(from, to string, duration int) calls.Record {
	return calls.Record{
		From:            from,
		To:              to,
		Status:          calls.StatusCompleted,
		DurationSeconds: duration,
		StartTime:       time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func missedCall(from, to string, status calls.Status) calls.Record {
	return calls.Record{
		From:      from,
		To:        to,
		Status:    status,
		StartTime: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
	}
}

func TestAggregateByNumberCounts(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.roster.owned = []numbers.OwnedNumber{
		{SID: "PN1", PhoneNumber: "+14155551001", FriendlyName: "Main"},
	}
	env.callLog.records = []calls.Record{
		connectedCall("+14155551001", "+19995550001", 60),
		connectedCall("+14155551001", "+19995550002", 120),
		// Completed but zero duration counts as not connected.
		{From: "+14155551001", To: "+19995550003", Status: calls.StatusCompleted},
		missedCall("+14155551001", "+19995550004", calls.StatusNoAnswer),
		missedCall("+14155551001", "+19995550005", calls.StatusFailed),
		missedCall("+14155551001", "+19995550006", calls.StatusBusy),
		missedCall("+14155551001", "+19995550007", calls.StatusCanceled),
		// Another number's traffic must not bleed in.
		connectedCall("+14155559999", "+19995550008", 30),
	}

	report, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByNumber: %v", err)
	}
	if len(report.Numbers) != 1 {
		t.Fatalf("got %d numbers, want 1", len(report.Numbers))
	}
	n := report.Numbers[0]
	if n.TotalCalls != 7 {
		t.Errorf("TotalCalls = %d, want 7", n.TotalCalls)
	}
	if n.CompletedCalls != 2 {
		t.Errorf("CompletedCalls = %d, want 2", n.CompletedCalls)
	}
	if n.NoAnswerCalls != 1 {
		t.Errorf("NoAnswerCalls = %d, want 1", n.NoAnswerCalls)
	}
	if n.FailedCalls != 2 {
		t.Errorf("FailedCalls = %d, want 2 (failed+busy)", n.FailedCalls)
	}
	if n.CanceledCalls != 1 {
		t.Errorf("CanceledCalls = %d, want 1", n.CanceledCalls)
	}
	if n.AnswerRate != 29 {
		t.Errorf("AnswerRate = %d, want 29 (2/7 rounded)", n.AnswerRate)
	}
	if n.AvgDuration != 90 {
		t.Errorf("AvgDuration = %d, want 90 (connected calls only)", n.AvgDuration)
	}
	if report.Summary.TotalCalls != 7 {
		t.Errorf("Summary.TotalCalls = %d, want 7", report.Summary.TotalCalls)
	}
	if report.Period != "7 days" {
		t.Errorf("Period = %q", report.Period)
	}
}

func TestAggregateByNumberRateExamples(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.roster.owned = []numbers.OwnedNumber{
		{PhoneNumber: "+15105551000"},
		{PhoneNumber: "+15105552000"},
	}
	env.callLog.records = []calls.Record{
		connectedCall("+15105551000", "+19995550001", 42),
		missedCall("+15105551000", "+19995550002", calls.StatusNoAnswer),
		connectedCall("+15105551000", "+19995550003", 58),
	}
	for i := 0; i < 3; i++ {
		env.callLog.records = append(env.callLog.records, connectedCall("+15105552000", "+19995550004", 10))
	}
	for i := 0; i < 12; i++ {
		env.callLog.records = append(env.callLog.records, missedCall("+15105552000", "+19995550005", calls.StatusNoAnswer))
	}

	report, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByNumber: %v", err)
	}
	byNumber := map[string]NumberSummary{}
	for _, n := range report.Numbers {
		byNumber[n.PhoneNumber] = n
	}

	low := byNumber["+15105551000"]
	if low.AnswerRate != 67 {
		t.Errorf("answer rate = %d, want 67 (2/3)", low.AnswerRate)
	}
	if low.AvgDuration != 50 {
		t.Errorf("avg duration = %d, want 50 ((42+58)/2)", low.AvgDuration)
	}
	if low.SpamRisk != SpamRiskGood {
		t.Errorf("3-call number risk = %s, want good regardless of rate", low.SpamRisk)
	}

	busy := byNumber["+15105552000"]
	if busy.TotalCalls != 15 || busy.AnswerRate != 20 {
		t.Errorf("busy number = %d calls at %d%%, want 15 at 20", busy.TotalCalls, busy.AnswerRate)
	}
	if busy.SpamRisk != SpamRiskHigh {
		t.Errorf("busy number risk = %s, want high", busy.SpamRisk)
	}
}

func TestAggregateByNumberSpamRisk(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	mk := func(number string, total, completed int) {
		for i := 0; i < completed; i++ {
			env.callLog.records = append(env.callLog.records, connectedCall(number, "+19995550000", 10))
		}
		for i := completed; i < total; i++ {
			env.callLog.records = append(env.callLog.records, missedCall(number, "+19995550000", calls.StatusNoAnswer))
		}
		env.roster.owned = append(env.roster.owned, numbers.OwnedNumber{PhoneNumber: number})
	}
	mk("+14155550001", 20, 2)  // 10% answered: high
	mk("+14155550002", 20, 8)  // 40%: medium
	mk("+14155550003", 20, 15) // 75%: good
	mk("+14155550004", 10, 0)  // volume not strictly over 10: good
	env.roster.owned = append(env.roster.owned, numbers.OwnedNumber{PhoneNumber: "+14155550005"}) // no calls

	report, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByNumber: %v", err)
	}
	byNumber := map[string]SpamRisk{}
	for _, n := range report.Numbers {
		byNumber[n.PhoneNumber] = n.SpamRisk
	}
	want := map[string]SpamRisk{
		"+14155550001": SpamRiskHigh,
		"+14155550002": SpamRiskMedium,
		"+14155550003": SpamRiskGood,
		"+14155550004": SpamRiskGood,
		"+14155550005": SpamRiskNoData,
	}
	for number, risk := range want {
		if byNumber[number] != risk {
			t.Errorf("%s: risk = %s, want %s", number, byNumber[number], risk)
		}
	}
	s := report.Summary
	if s.HighRiskNumbers != 1 || s.MediumRiskNumbers != 1 || s.GoodNumbers != 2 || s.NoDataNumbers != 1 {
		t.Errorf("rollup = %+v", s)
	}
}

func TestAggregateByNumberRanking(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	mk := func(number string, total, completed int) {
		for i := 0; i < completed; i++ {
			env.callLog.records = append(env.callLog.records, connectedCall(number, "+19995550000", 10))
		}
		for i := completed; i < total; i++ {
			env.callLog.records = append(env.callLog.records, missedCall(number, "+19995550000", calls.StatusNoAnswer))
		}
		env.roster.owned = append(env.roster.owned, numbers.OwnedNumber{PhoneNumber: number})
	}
	mk("+14155550001", 5, 5)   // low volume
	mk("+14155550002", 20, 15) // high volume, good
	mk("+14155550003", 20, 2)  // high volume, high risk: ahead of 0002
	mk("+14155550004", 20, 8)  // high volume, medium, 40% rate

	report, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByNumber: %v", err)
	}
	got := make([]string, 0, len(report.Numbers))
	for _, n := range report.Numbers {
		got = append(got, n.PhoneNumber)
	}
	want := []string{"+14155550003", "+14155550004", "+14155550002", "+14155550001"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAggregateByNumberCaching(t *testing.T) {
	cache := NewMemoryCache(3 * time.Minute)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	env := newTestEnv(t, cache)
	env.roster.owned = []numbers.OwnedNumber{{PhoneNumber: "+14155551001"}}
	env.callLog.records = []calls.Record{connectedCall("+14155551001", "+19995550001", 60)}

	first, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Cached {
		t.Error("first result should not be cached")
	}

	now = now.Add(time.Minute)
	second, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Cached {
		t.Error("second result should be served from cache")
	}
	if second.CacheAge != 60 {
		t.Errorf("CacheAge = %d, want 60", second.CacheAge)
	}
	if env.callLog.fetches != 1 || env.roster.fetches != 1 {
		t.Errorf("collaborators hit again: callLog=%d roster=%d", env.callLog.fetches, env.roster.fetches)
	}
	if second.Summary.TotalCalls != first.Summary.TotalCalls {
		t.Errorf("cached payload differs: %d vs %d", second.Summary.TotalCalls, first.Summary.TotalCalls)
	}

	// A different window is a separate cache entry.
	if _, err := env.svc.AggregateByNumber(context.Background(), 30); err != nil {
		t.Fatalf("different window: %v", err)
	}
	if env.callLog.fetches != 2 {
		t.Errorf("window 30 should recompute, fetches = %d", env.callLog.fetches)
	}

	// Past the TTL the entry expires and the report is recomputed.
	now = now.Add(3 * time.Minute)
	expired, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("after expiry: %v", err)
	}
	if expired.Cached {
		t.Error("expired entry should recompute")
	}
	if env.callLog.fetches != 3 {
		t.Errorf("fetches = %d, want 3", env.callLog.fetches)
	}
}

func TestAggregateByNumberTruncated(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.roster.owned = []numbers.OwnedNumber{{PhoneNumber: "+14155551001"}}
	for i := 0; i < 150; i++ {
		env.callLog.records = append(env.callLog.records, connectedCall("+14155551001", "+19995550001", 10))
	}

	report, err := env.svc.AggregateByNumber(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByNumber: %v", err)
	}
	if !report.Summary.Truncated {
		t.Error("Truncated should be set when the fetch limit is hit")
	}
	if report.Summary.TotalCalls != 100 {
		t.Errorf("TotalCalls = %d, want capped 100", report.Summary.TotalCalls)
	}
}

func TestAggregateByNumberCallLogFailure(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.roster.owned = []numbers.OwnedNumber{{PhoneNumber: "+14155551001"}}
	env.callLog.err = errors.New("provider 503")

	_, err := env.svc.AggregateByNumber(context.Background(), 7)
	if !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
}

func TestAggregateByNumberRejectsBadWindow(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	if _, err := env.svc.AggregateByNumber(context.Background(), 0); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("err = %v, want ErrInvalidWindow", err)
	}
}

func TestAggregateByUserAttribution(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.assignments.assignments = []numbers.Assignment{
		{PhoneNumber: "+15105550001", LinkedUserID: "u1"},
		{PhoneNumber: "+16505550002", LinkedUserID: "u2"},
	}
	env.directory.users = []User{
		{ID: "u1", Name: "Ana Lee", Email: "ana@example.com"},
		{ID: "u2", Name: "Bo Chen", Email: "bo@example.com"},
	}
	env.callLog.records = []calls.Record{
		// u1 via mapped number (setter area code: personal).
		connectedCall("+15105550001", "+19995550001", 60),
		missedCall("+15105550001", "+19995550002", calls.StatusNoAnswer),
		// u1 via softphone from a state number.
		connectedCall("client:u1-loc1", "+19995550003", 30),
		// u2 via mapped number.
		connectedCall("+16505550002", "+19995550004", 90),
		// Softphone caller for a user who owns no number: excluded.
		connectedCall("client:ghost-loc1", "+19995550005", 15),
		// No attribution at all.
		connectedCall("+17075550009", "+19995550006", 15),
	}

	report, err := env.svc.AggregateByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByUser: %v", err)
	}
	if len(report.Setters) != 2 {
		t.Fatalf("got %d setters, want 2", len(report.Setters))
	}

	byID := map[string]UserSummary{}
	for _, u := range report.Setters {
		byID[u.UserID] = u
	}
	u1 := byID["u1"]
	if u1.UserName != "Ana Lee" {
		t.Errorf("u1 name = %q", u1.UserName)
	}
	if u1.TotalCalls != 3 || u1.CompletedCalls != 2 {
		t.Errorf("u1 calls = %d/%d, want 3 total 2 completed", u1.TotalCalls, u1.CompletedCalls)
	}
	if u1.OwnNumberCalls != 2 {
		t.Errorf("u1 OwnNumberCalls = %d, want 2", u1.OwnNumberCalls)
	}
	if u1.StateNumberCalls != 1 {
		t.Errorf("u1 StateNumberCalls = %d, want 1", u1.StateNumberCalls)
	}
	if u1.AnswerRate != 67 {
		t.Errorf("u1 AnswerRate = %d, want 67", u1.AnswerRate)
	}
	if u1.AvgDuration != 45 {
		t.Errorf("u1 AvgDuration = %d, want 45", u1.AvgDuration)
	}
	if u1.CallsByDay["2026-03-10"] != 3 {
		t.Errorf("u1 CallsByDay = %v", u1.CallsByDay)
	}

	if report.Summary.UnmappedCalls != 2 {
		t.Errorf("UnmappedCalls = %d, want 2", report.Summary.UnmappedCalls)
	}
	if report.Summary.Degraded {
		t.Error("report should not be degraded")
	}
	if report.Summary.TotalSetters != 2 {
		t.Errorf("TotalSetters = %d", report.Summary.TotalSetters)
	}
	if report.Summary.AvgCallsPerSetter != 2 {
		t.Errorf("AvgCallsPerSetter = %d, want 2 (4/2)", report.Summary.AvgCallsPerSetter)
	}
}

func TestAggregateByUserBookings(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.assignments.assignments = []numbers.Assignment{
		{PhoneNumber: "+15105550001", LinkedUserID: "u1"},
	}
	env.directory.users = []User{{ID: "u1", Name: "Ana Lee"}}
	env.callLog.records = []calls.Record{
		connectedCall("+15105550001", "+1 (999) 555-0001", 60),
		connectedCall("+15105550001", "+19995550002", 30),
	}
	env.opps.opps = []Opportunity{
		{ContactPhone: "+1 999-555-0001"}, // matches after normalization
		{ContactPhone: "+18885550000"},    // never called
		{ContactPhone: ""},
	}

	report, err := env.svc.AggregateByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByUser: %v", err)
	}
	u1 := report.Setters[0]
	if u1.Bookings != 1 {
		t.Errorf("Bookings = %d, want 1", u1.Bookings)
	}
	if u1.ConversionRate != 50 {
		t.Errorf("ConversionRate = %d, want 50 (1 booking / 2 completed)", u1.ConversionRate)
	}
}

func TestAggregateByUserDegraded(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.assignments.err = errors.New("crm down")
	env.directory.err = errors.New("crm down")
	env.opps.err = errors.New("crm down")
	env.callLog.records = []calls.Record{
		connectedCall("+15105550001", "+19995550001", 60),
	}

	report, err := env.svc.AggregateByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("degraded aggregation should not fail: %v", err)
	}
	if !report.Summary.Degraded {
		t.Error("Degraded flag should be set")
	}
	if len(report.Setters) != 0 {
		t.Errorf("no users can be mapped without assignments, got %d", len(report.Setters))
	}
	if report.Summary.UnmappedCalls != 1 {
		t.Errorf("UnmappedCalls = %d, want 1", report.Summary.UnmappedCalls)
	}
}

func TestAggregateByUserCallLogFailure(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.callLog.err = errors.New("provider 503")
	if _, err := env.svc.AggregateByUser(context.Background(), 7); !errors.Is(err, ErrCollaboratorUnavailable) {
		t.Fatalf("err = %v, want ErrCollaboratorUnavailable", err)
	}
}

func TestAggregateByUserUnknownName(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.assignments.assignments = []numbers.Assignment{
		{PhoneNumber: "+15105550001", LinkedUserID: "u9"},
	}
	// Directory has no entry for u9.
	env.callLog.records = []calls.Record{connectedCall("+15105550001", "+19995550001", 60)}

	report, err := env.svc.AggregateByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("AggregateByUser: %v", err)
	}
	if got := report.Setters[0].UserName; got != "Unknown User" {
		t.Errorf("UserName = %q, want Unknown User", got)
	}
}

func TestAggregateByUserCaching(t *testing.T) {
	cache := NewMemoryCache(3 * time.Minute)
	env := newTestEnv(t, cache)
	env.assignments.assignments = []numbers.Assignment{
		{PhoneNumber: "+15105550001", LinkedUserID: "u1"},
	}
	env.directory.users = []User{{ID: "u1", Name: "Ana Lee"}}
	env.callLog.records = []calls.Record{connectedCall("+15105550001", "+19995550001", 60)}

	if _, err := env.svc.AggregateByUser(context.Background(), 7); err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := env.svc.AggregateByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Cached {
		t.Error("second result should be cached")
	}
	if env.callLog.fetches != 1 {
		t.Errorf("fetches = %d, want 1", env.callLog.fetches)
	}

	// The by-number report for the same window is a distinct key.
	env.roster.owned = []numbers.OwnedNumber{{PhoneNumber: "+15105550001"}}
	if _, err := env.svc.AggregateByNumber(context.Background(), 7); err != nil {
		t.Fatalf("by-number: %v", err)
	}
	if env.callLog.fetches != 2 {
		t.Errorf("by-number must not reuse the by-user entry, fetches = %d", env.callLog.fetches)
	}
}

func TestNumberStats(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	env.callLog.records = []calls.Record{
		connectedCall("+14155551001", "+19995550001", 60),
		missedCall("+14155551001", "+19995550002", calls.StatusNoAnswer),
		connectedCall("+14155559999", "+19995550003", 30),
	}

	detail, err := env.svc.NumberStats(context.Background(), "+14155551001", 7)
	if err != nil {
		t.Fatalf("NumberStats: %v", err)
	}
	if detail.TotalCalls != 2 || detail.CompletedCalls != 1 {
		t.Errorf("totals = %d/%d, want 2/1", detail.TotalCalls, detail.CompletedCalls)
	}
	if len(detail.Calls) != 2 {
		t.Errorf("detail records = %d, want 2", len(detail.Calls))
	}
	if detail.SpamRisk != SpamRiskGood {
		t.Errorf("SpamRisk = %s", detail.SpamRisk)
	}
}

func TestNumberStatsCapsRecords(t *testing.T) {
	env := newTestEnv(t, NopCache{})
	for i := 0; i < 80; i++ {
		env.callLog.records = append(env.callLog.records, connectedCall("+14155551001", "+19995550001", 10))
	}
	detail, err := env.svc.NumberStats(context.Background(), "+14155551001", 7)
	if err != nil {
		t.Fatalf("NumberStats: %v", err)
	}
	if detail.TotalCalls != 80 {
		t.Errorf("TotalCalls = %d, want 80", detail.TotalCalls)
	}
	if len(detail.Calls) != maxDetailCalls {
		t.Errorf("detail records = %d, want %d", len(detail.Calls), maxDetailCalls)
	}
}
