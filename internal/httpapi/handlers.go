package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"dialops/internal/analytics"
	"dialops/internal/audit"
	"dialops/internal/auth"
	"dialops/internal/calls"
	"dialops/internal/directory"
	"dialops/internal/numbers"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Analytics *analytics.Service
	Numbers   *numbers.Service
	Directory *directory.Service

	// CallLog backs the raw call-log route directly; everything aggregated
	// goes through Analytics.
	CallLog analytics.CallLog

	// Zone is the reporting timezone used to convert explicit date ranges
	// into trailing-day windows.
	Zone *time.Location
}

const (
	defaultWindowDays = 7
	maxWindowDays     = 365

	defaultRawCallLimit = 200
	maxRawCallLimit     = 1000
)

func ok(c *gin.Context, body gin.H) {
	body["success"] = true
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// windowDays resolves the reporting window from either ?days=N or an
// explicit ?start_date/?end_date pair (dates, reference timezone).
func (h Handlers) windowDays(c *gin.Context) (int, bool) {
	if start := c.Query("start_date"); start != "" {
		end := c.Query("end_date")
		if end == "" {
			fail(c, http.StatusBadRequest, "end_date required with start_date")
			return 0, false
		}
		loc := h.Zone
		if loc == nil {
			loc = time.UTC
		}
		startT, err := time.ParseInLocation("2006-01-02", start, loc)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid start_date")
			return 0, false
		}
		endT, err := time.ParseInLocation("2006-01-02", end, loc)
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid end_date")
			return 0, false
		}
		if endT.Before(startT) {
			fail(c, http.StatusBadRequest, "end_date before start_date")
			return 0, false
		}
		// The range is inclusive of the end date.
		return analytics.DaysFromRange(startT, endT.Add(24*time.Hour)), true
	}

	days := defaultWindowDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxWindowDays {
			fail(c, http.StatusBadRequest, "days must be between 1 and 365")
			return 0, false
		}
		days = parsed
	}
	return days, true
}

func actorFromContext(c *gin.Context) audit.Actor {
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: userID, Role: role}
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		fail(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID == "" || req.Role == "" {
		fail(c, http.StatusBadRequest, "user_id and role required")
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		fail(c, http.StatusInternalServerError, "token issuance failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Analytics ---

// AnalyticsOverview serves the per-number aggregation.
func (h Handlers) AnalyticsOverview(c *gin.Context) {
	days, okDays := h.windowDays(c)
	if !okDays {
		return
	}
	report, err := h.Analytics.AggregateByNumber(c.Request.Context(), days)
	if err != nil {
		h.analyticsError(c, err)
		return
	}
	ok(c, gin.H{"data": report})
}

// AnalyticsSetters serves the per-user aggregation.
func (h Handlers) AnalyticsSetters(c *gin.Context) {
	days, okDays := h.windowDays(c)
	if !okDays {
		return
	}
	report, err := h.Analytics.AggregateByUser(c.Request.Context(), days)
	if err != nil {
		h.analyticsError(c, err)
		return
	}
	ok(c, gin.H{"data": report})
}

// AnalyticsNumberDetail drills into a single number.
func (h Handlers) AnalyticsNumberDetail(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		fail(c, http.StatusBadRequest, "number required")
		return
	}
	days, okDays := h.windowDays(c)
	if !okDays {
		return
	}
	detail, err := h.Analytics.NumberStats(c.Request.Context(), number, days)
	if err != nil {
		h.analyticsError(c, err)
		return
	}
	ok(c, gin.H{"data": detail})
}

// AnalyticsCalls serves the raw call log with optional filters.
func (h Handlers) AnalyticsCalls(c *gin.Context) {
	days, okDays := h.windowDays(c)
	if !okDays {
		return
	}
	limit := defaultRawCallLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxRawCallLimit {
			fail(c, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	loc := h.Zone
	if loc == nil {
		loc = time.UTC
	}
	since := analytics.WindowStart(time.Now(), days, loc)
	records, err := h.CallLog.ListCalls(c.Request.Context(), since, maxRawCallLimit)
	if err != nil {
		fail(c, http.StatusBadGateway, "call log unavailable")
		return
	}

	number := c.Query("number")
	status := calls.Status(c.Query("status"))
	filtered := make([]calls.Record, 0, limit)
	for _, r := range records {
		if number != "" && r.From != number {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		filtered = append(filtered, r)
		if len(filtered) >= limit {
			break
		}
	}
	ok(c, gin.H{"data": filtered, "count": len(filtered)})
}

func (h Handlers) analyticsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, analytics.ErrInvalidWindow):
		fail(c, http.StatusBadRequest, "invalid window")
	case errors.Is(err, analytics.ErrCollaboratorUnavailable):
		fail(c, http.StatusInternalServerError, "call data unavailable")
	default:
		fail(c, http.StatusInternalServerError, "aggregation failed")
	}
}

// --- Numbers ---

// ListNumbers returns the owned roster.
func (h Handlers) ListNumbers(c *gin.Context) {
	owned, err := h.Numbers.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "roster unavailable")
		return
	}
	ok(c, gin.H{"data": owned, "count": len(owned)})
}

// SearchNumbers finds purchasable numbers in an area code.
func (h Handlers) SearchNumbers(c *gin.Context) {
	areaCode := c.Query("area_code")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			fail(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	found, err := h.Numbers.Search(c.Request.Context(), areaCode, limit)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": found, "count": len(found)})
}

type purchaseRequest struct {
	PhoneNumber  string `json:"phoneNumber"`
	FriendlyName string `json:"friendlyName"`
}

// PurchaseNumber buys a specific number.
func (h Handlers) PurchaseNumber(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	bought, err := h.Numbers.Purchase(c.Request.Context(), actorFromContext(c), req.PhoneNumber, req.FriendlyName)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": bought})
}

type quickPurchaseRequest struct {
	AreaCode     string `json:"areaCode"`
	FriendlyName string `json:"friendlyName"`
}

// QuickPurchaseNumber buys the first available number in an area code.
func (h Handlers) QuickPurchaseNumber(c *gin.Context) {
	var req quickPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	bought, err := h.Numbers.QuickPurchase(c.Request.Context(), actorFromContext(c), req.AreaCode, req.FriendlyName)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": bought})
}

type updateNumberRequest struct {
	FriendlyName string `json:"friendlyName"`
}

// UpdateNumber renames an owned number.
func (h Handlers) UpdateNumber(c *gin.Context) {
	var req updateNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	updated, err := h.Numbers.UpdateFriendlyName(c.Request.Context(), actorFromContext(c), c.Param("sid"), req.FriendlyName)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": updated})
}

// ReleaseNumber returns a number to the provider pool.
func (h Handlers) ReleaseNumber(c *gin.Context) {
	if err := h.Numbers.Release(c.Request.Context(), actorFromContext(c), c.Param("sid")); err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"message": "number released"})
}

type bulkPurchaseRequest struct {
	Users []numbers.BulkUser `json:"users"`
}

// BulkPurchaseSetters buys one setter line per CRM user.
func (h Handlers) BulkPurchaseSetters(c *gin.Context) {
	var req bulkPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	result, err := h.Numbers.BulkPurchaseSetters(c.Request.Context(), actorFromContext(c), req.Users)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": result})
}

// NumbersCRMStatus reconciles the roster against CRM assignments.
func (h Handlers) NumbersCRMStatus(c *gin.Context) {
	cmp, err := h.Numbers.CompareWithCRM(c.Request.Context())
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": cmp})
}

// ListStates returns the supported states and their area codes.
func (h Handlers) ListStates(c *gin.Context) {
	states := numbers.AllStates()
	ok(c, gin.H{"data": states, "count": len(states)})
}

type stateSearchRequest struct {
	States []string `json:"states"`
}

// SearchStateNumbers finds one purchasable number per requested state.
func (h Handlers) SearchStateNumbers(c *gin.Context) {
	var req stateSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.States) == 0 {
		fail(c, http.StatusBadRequest, "states required")
		return
	}
	outcome, err := h.Numbers.SearchNumbersForStates(c.Request.Context(), req.States)
	if err != nil {
		h.numbersError(c, err)
		return
	}
	ok(c, gin.H{"data": outcome})
}

func (h Handlers) numbersError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, numbers.ErrInvalidRequest):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, numbers.ErrUnknownState):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, numbers.ErrNoInventory):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, numbers.ErrBulkInProgress):
		fail(c, http.StatusConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, "number operation failed")
	}
}

// --- Directory ---

// DirectoryUsers serves the staff directory.
func (h Handlers) DirectoryUsers(c *gin.Context) {
	users, source, err := h.Directory.Users(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "directory unavailable")
		return
	}
	ok(c, gin.H{"users": users, "source": source})
}

// DirectorySync pulls the CRM staff list into the local store.
func (h Handlers) DirectorySync(c *gin.Context) {
	res, err := h.Directory.SyncUsers(c.Request.Context(), actorFromContext(c))
	if err != nil {
		fail(c, http.StatusBadGateway, "crm sync failed")
		return
	}
	ok(c, gin.H{"message": "staff directory synced", "totals": res})
}
