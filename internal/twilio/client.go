// Package twilio adapts the Twilio REST API to the provider interfaces
// the rest of the service consumes: the call log, the number roster, and
// number lifecycle operations. No other package talks to Twilio directly.
package twilio

import (
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

	"dialops/internal/calls"
	"dialops/internal/numbers"
)

const (
	defaultBaseURL          = "https://api.twilio.com"
	defaultMessagingBaseURL = "https://messaging.twilio.com"

	// Twilio caps PageSize at 1000; call-log fetches walk pages up to the
	// requested limit.
	callPageSize = 1000

	defaultTimeout = 30 * time.Second

	// Twilio renders timestamps as RFC 1123 with a numeric zone.
	timeLayout = time.RFC1123Z
)

var (
	ErrNotFound     = errors.New("twilio: resource not found")
	ErrUnauthorized = errors.New("twilio: authentication failed")
)

// apiError is Twilio's error envelope.
type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

// Client is a minimal Twilio REST client covering calls, incoming phone
// numbers, and messaging-service membership.
type Client struct {
	accountSID          string
	authToken           string
	messagingServiceSID string

	baseURL          string
	messagingBaseURL string

	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

// WithBaseURL points all API traffic at an alternate host. Tests use this
// with httptest servers.
func WithBaseURL(apiURL, messagingURL string) Option {
	return func(c *Client) {
		if apiURL != "" {
			c.baseURL = strings.TrimRight(apiURL, "/")
		}
		if messagingURL != "" {
			c.messagingBaseURL = strings.TrimRight(messagingURL, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(accountSID, authToken, messagingServiceSID string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		accountSID:          accountSID,
		authToken:           authToken,
		messagingServiceSID: messagingServiceSID,
		baseURL:             defaultBaseURL,
		messagingBaseURL:    defaultMessagingBaseURL,
		httpClient:          &http.Client{Timeout: defaultTimeout},
		log:                 log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) accountURL(resource string) string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s", c.baseURL, c.accountSID, resource)
}

// do issues an authenticated request and decodes the JSON response into
// out (when non-nil). Form params become a URL-encoded body on writes.
func (c *Client) do(ctx context.Context, method, rawURL string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("twilio: decode response: %w", err)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
		}
		return fmt.Errorf("twilio: api error %d: %s", apiErr.Code, apiErr.Message)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return fmt.Errorf("twilio: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// callResource is Twilio's wire shape for one call. Duration arrives as a
// decimal string.
type callResource struct {
	SID       string `json:"sid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Direction string `json:"direction"`
	Price     string `json:"price"`
	PriceUnit string `json:"price_unit"`
}

type callListPage struct {
	Calls       []callResource `json:"calls"`
	NextPageURI string         `json:"next_page_uri"`
}

func (r callResource) toRecord() calls.Record {
	rec := calls.Record{
		SID:       r.SID,
		From:      r.From,
		To:        r.To,
		Status:    calls.Status(r.Status),
		Direction: r.Direction,
		Price:     r.Price,
		PriceUnit: r.PriceUnit,
	}
	if d, err := strconv.Atoi(r.Duration); err == nil {
		rec.DurationSeconds = d
	}
	if t, err := time.Parse(timeLayout, r.StartTime); err == nil {
		rec.StartTime = t
	}
	if t, err := time.Parse(timeLayout, r.EndTime); err == nil {
		rec.EndTime = t
	}
	return rec
}

// ListCalls pages through the account call log starting at since, newest
// first, stopping at limit records or the end of the log.
func (c *Client) ListCalls(ctx context.Context, since time.Time, limit int) ([]calls.Record, error) {
	params := url.Values{}
	params.Set("PageSize", strconv.Itoa(callPageSize))
	params.Set("StartTime>", since.UTC().Format("2006-01-02"))

	next := c.accountURL("Calls.json") + "?" + params.Encode()
	records := make([]calls.Record, 0, callPageSize)

	for next != "" && len(records) < limit {
		var page callListPage
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		for _, res := range page.Calls {
			rec := res.toRecord()
			// The StartTime filter is date-granular; trim same-day records
			// from before the window start.
			if !rec.StartTime.IsZero() && rec.StartTime.Before(since) {
				continue
			}
			records = append(records, rec)
			if len(records) >= limit {
				break
			}
		}
		if page.NextPageURI == "" {
			break
		}
		next = c.baseURL + page.NextPageURI
	}
	return records, nil
}

type numberResource struct {
	SID          string `json:"sid"`
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	DateCreated  string `json:"date_created"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"sms"`
		MMS   bool `json:"mms"`
	} `json:"capabilities"`
}

func (r numberResource) toOwned() numbers.OwnedNumber {
	n := numbers.OwnedNumber{
		SID:          r.SID,
		PhoneNumber:  r.PhoneNumber,
		FriendlyName: r.FriendlyName,
		Capabilities: map[string]bool{
			"voice": r.Capabilities.Voice,
			"sms":   r.Capabilities.SMS,
			"mms":   r.Capabilities.MMS,
		},
	}
	if t, err := time.Parse(timeLayout, r.DateCreated); err == nil {
		n.DateCreated = t
	}
	return n
}

// ListOwned returns every incoming phone number on the account.
func (c *Client) ListOwned(ctx context.Context) ([]numbers.OwnedNumber, error) {
	type page struct {
		IncomingPhoneNumbers []numberResource `json:"incoming_phone_numbers"`
		NextPageURI          string           `json:"next_page_uri"`
	}

	params := url.Values{}
	params.Set("PageSize", strconv.Itoa(callPageSize))
	next := c.accountURL("IncomingPhoneNumbers.json") + "?" + params.Encode()

	var owned []numbers.OwnedNumber
	for next != "" {
		var p page
		if err := c.do(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		for _, res := range p.IncomingPhoneNumbers {
			owned = append(owned, res.toOwned())
		}
		if p.NextPageURI == "" {
			break
		}
		next = c.baseURL + p.NextPageURI
	}
	return owned, nil
}

type availableResource struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`
	Capabilities struct {
		Voice bool `json:"voice"`
		SMS   bool `json:"SMS"`
		MMS   bool `json:"MMS"`
	} `json:"capabilities"`
}

// SearchAvailable finds purchasable US local numbers in an area code.
func (c *Client) SearchAvailable(ctx context.Context, areaCode string, limit int) ([]numbers.AvailableNumber, error) {
	params := url.Values{}
	params.Set("AreaCode", areaCode)
	if limit > 0 {
		params.Set("PageSize", strconv.Itoa(limit))
	}
	u := c.accountURL("AvailablePhoneNumbers/US/Local.json") + "?" + params.Encode()

	var page struct {
		AvailablePhoneNumbers []availableResource `json:"available_phone_numbers"`
	}
	if err := c.do(ctx, http.MethodGet, u, nil, &page); err != nil {
		return nil, err
	}

	out := make([]numbers.AvailableNumber, 0, len(page.AvailablePhoneNumbers))
	for _, res := range page.AvailablePhoneNumbers {
		out = append(out, numbers.AvailableNumber{
			PhoneNumber:  res.PhoneNumber,
			FriendlyName: res.FriendlyName,
			Locality:     res.Locality,
			Region:       res.Region,
			PostalCode:   res.PostalCode,
			Capabilities: map[string]bool{
				"voice": res.Capabilities.Voice,
				"sms":   res.Capabilities.SMS,
				"mms":   res.Capabilities.MMS,
			},
		})
	}
	return out, nil
}

// Purchase buys a number. friendlyName falls back to the number itself.
func (c *Client) Purchase(ctx context.Context, phoneNumber, friendlyName string) (numbers.OwnedNumber, error) {
	if friendlyName == "" {
		friendlyName = phoneNumber
	}
	form := url.Values{}
	form.Set("PhoneNumber", phoneNumber)
	form.Set("FriendlyName", friendlyName)

	var res numberResource
	if err := c.do(ctx, http.MethodPost, c.accountURL("IncomingPhoneNumbers.json"), form, &res); err != nil {
		return numbers.OwnedNumber{}, err
	}
	c.log.Info("purchased number", "phone_number", res.PhoneNumber, "sid", res.SID)
	return res.toOwned(), nil
}

// UpdateFriendlyName renames an owned number.
func (c *Client) UpdateFriendlyName(ctx context.Context, sid, friendlyName string) (numbers.OwnedNumber, error) {
	form := url.Values{}
	form.Set("FriendlyName", friendlyName)

	var res numberResource
	if err := c.do(ctx, http.MethodPost, c.accountURL("IncomingPhoneNumbers/"+sid+".json"), form, &res); err != nil {
		return numbers.OwnedNumber{}, err
	}
	return res.toOwned(), nil
}

// Release returns the number to the provider pool.
func (c *Client) Release(ctx context.Context, sid string) error {
	if err := c.do(ctx, http.MethodDelete, c.accountURL("IncomingPhoneNumbers/"+sid+".json"), nil, nil); err != nil {
		return err
	}
	c.log.Info("released number", "sid", sid)
	return nil
}

// AttachToMessagingService registers a number with the configured A2P
// messaging service.
func (c *Client) AttachToMessagingService(ctx context.Context, sid string) error {
	if c.messagingServiceSID == "" {
		return errors.New("twilio: no messaging service configured")
	}
	form := url.Values{}
	form.Set("PhoneNumberSid", sid)
	u := fmt.Sprintf("%s/v1/Services/%s/PhoneNumbers", c.messagingBaseURL, c.messagingServiceSID)
	return c.do(ctx, http.MethodPost, u, form, nil)
}
