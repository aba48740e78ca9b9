// Package ghl is the GoHighLevel CRM adapter: staff directory, phone
// number assignments, and opportunity (booking) lookups, all scoped to a
// single location.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dialops/internal/analytics"
	"dialops/internal/directory"
	"dialops/internal/numbers"
)

const (
	defaultBaseURL = "https://services.leadconnectorhq.com"

	// apiVersion is the dated header every v2 endpoint requires.
	apiVersion = "2021-07-28"

	defaultTimeout = 30 * time.Second

	opportunityPageLimit = 100
)

var ErrUnauthorized = errors.New("ghl: authentication failed")

// Client is a GoHighLevel v2 REST client.
type Client struct {
	apiKey     string
	locationID string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(apiKey, locationID string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		apiKey:     apiKey,
		locationID: locationID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, reqBody, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("ghl: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("ghl: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ghl: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var envelope struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
			return fmt.Errorf("ghl: %s %s: %s", method, path, envelope.Message)
		}
		return fmt.Errorf("ghl: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ghl: decode response: %w", err)
	}
	return nil
}

type userResource struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

func (r userResource) userID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.UserID
}

func (r userResource) displayName() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// ListUsers returns the location's staff directory.
func (c *Client) ListUsers(ctx context.Context) ([]analytics.User, error) {
	query := url.Values{}
	query.Set("locationId", c.locationID)

	var page struct {
		Users []userResource `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/", query, nil, &page); err != nil {
		return nil, err
	}

	users := make([]analytics.User, 0, len(page.Users))
	for _, u := range page.Users {
		users = append(users, analytics.User{
			ID:    u.userID(),
			Name:  u.displayName(),
			Email: u.Email,
		})
	}
	return users, nil
}

// ListStaffUsers is ListUsers with the fields the directory sync persists.
// Users without an ID are skipped.
func (c *Client) ListStaffUsers(ctx context.Context) ([]directory.StaffUser, error) {
	query := url.Values{}
	query.Set("locationId", c.locationID)

	var page struct {
		Users []userResource `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/", query, nil, &page); err != nil {
		return nil, err
	}

	staff := make([]directory.StaffUser, 0, len(page.Users))
	for _, u := range page.Users {
		if u.userID() == "" {
			continue
		}
		name := u.displayName()
		if name == "" {
			name = "Unknown"
		}
		staff = append(staff, directory.StaffUser{
			CRMUserID: u.userID(),
			Name:      name,
			Email:     u.Email,
			Role:      u.Role,
		})
	}
	return staff, nil
}

// phoneResource tolerates the phone-system API's shifting field names.
type phoneResource struct {
	PhoneNumber  string `json:"phoneNumber"`
	Number       string `json:"number"`
	FriendlyName string `json:"friendlyName"`
	Name         string `json:"name"`
	LinkedUser   string `json:"linkedUser"`
}

func (r phoneResource) number() string {
	if r.PhoneNumber != "" {
		return r.PhoneNumber
	}
	return r.Number
}

func (r phoneResource) friendly() string {
	if r.FriendlyName != "" {
		return r.FriendlyName
	}
	return r.Name
}

// ListAssignments returns the CRM phone-system numbers and who each one
// is linked to.
func (c *Client) ListAssignments(ctx context.Context) ([]numbers.Assignment, error) {
	// The endpoint has returned the list under different keys over time.
	var page struct {
		Numbers      []phoneResource `json:"numbers"`
		PhoneNumbers []phoneResource `json:"phoneNumbers"`
		Data         []phoneResource `json:"data"`
	}
	path := "/phone-system/numbers/location/" + c.locationID
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}

	list := page.Numbers
	if list == nil {
		list = page.PhoneNumbers
	}
	if list == nil {
		list = page.Data
	}

	out := make([]numbers.Assignment, 0, len(list))
	for _, r := range list {
		out = append(out, numbers.Assignment{
			PhoneNumber:  r.number(),
			FriendlyName: r.friendly(),
			LinkedUserID: r.LinkedUser,
		})
	}
	return out, nil
}

type opportunityResource struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Contact struct {
		Phone string `json:"phone"`
	} `json:"contact"`
}

// ListOpportunities returns opportunities created at or after since.
func (c *Client) ListOpportunities(ctx context.Context, since time.Time) ([]analytics.Opportunity, error) {
	query := url.Values{}
	query.Set("location_id", c.locationID)
	query.Set("limit", strconv.Itoa(opportunityPageLimit))
	if !since.IsZero() {
		query.Set("startAfter", strconv.FormatInt(since.UnixMilli(), 10))
	}

	var page struct {
		Opportunities []opportunityResource `json:"opportunities"`
	}
	if err := c.do(ctx, http.MethodGet, "/opportunities/search", query, nil, &page); err != nil {
		return nil, err
	}

	out := make([]analytics.Opportunity, 0, len(page.Opportunities))
	for _, o := range page.Opportunities {
		out = append(out, analytics.Opportunity{ContactPhone: o.Contact.Phone})
	}
	return out, nil
}

// AddNumber registers a phone number in the CRM location. name falls back
// to the number itself.
func (c *Client) AddNumber(ctx context.Context, phoneNumber, name string) error {
	if name == "" {
		name = phoneNumber
	}
	body := map[string]string{
		"phoneNumber": phoneNumber,
		"name":        name,
	}
	path := "/locations/" + c.locationID + "/phone-numbers"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return err
	}
	c.log.Info("registered number in crm", "phone_number", phoneNumber)
	return nil
}

// DeleteNumber removes a phone number from the CRM location.
func (c *Client) DeleteNumber(ctx context.Context, numberID string) error {
	path := "/locations/" + c.locationID + "/phone-numbers/" + numberID
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
