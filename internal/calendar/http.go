package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HTTPCalendar asks a remote calendar service
type HTTPCalendar struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPCalendar creates a client for the calendar service at baseURL
func NewHTTPCalendar(baseURL string, timeout time.Duration) *HTTPCalendar {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCalendar{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type workingInstantResponse struct {
	Working bool `json:"working"`
}

type instantResponse struct {
	Result time.Time `json:"result"`
}

func (c *HTTPCalendar) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call calendar service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calendar service returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode calendar response: %w", err)
	}
	return nil
}

func (c *HTTPCalendar) IsWorkingInstant(ctx context.Context, t time.Time) (bool, error) {
	var out workingInstantResponse
	err := c.get(ctx, "/api/v1/calendar/working-instant", url.Values{"at": {t.Format(time.RFC3339)}}, &out)
	return out.Working, err
}

func (c *HTTPCalendar) AddWorkingHours(ctx context.Context, from time.Time, hours float64) (time.Time, error) {
	var out instantResponse
	err := c.get(ctx, "/api/v1/calendar/add-working-hours", url.Values{
		"from":  {from.Format(time.RFC3339)},
		"hours": {strconv.FormatFloat(hours, 'f', -1, 64)},
	}, &out)
	return out.Result, err
}

func (c *HTTPCalendar) AddWorkingDays(ctx context.Context, from time.Time, days int) (time.Time, error) {
	var out instantResponse
	err := c.get(ctx, "/api/v1/calendar/add-working-days", url.Values{
		"from": {from.Format(time.RFC3339)},
		"days": {strconv.Itoa(days)},
	}, &out)
	return out.Result, err
}
