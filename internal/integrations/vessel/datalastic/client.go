package datalastic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	provider       = "datalastic"
	defaultBaseURL = "https://api.datalastic.com/api/v0"
)

var validate = validator.New()

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	limiter *rate.Limiter
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithRateLimit caps outgoing requests per second. Callers wait for a token,
// bounded by their context deadline.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return c
}

type vesselData struct {
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Speed  *float64 `json:"speed"`
	Course *float64 `json:"course"`
}

type respBody struct {
	Data   *vesselData `json:"data"`
	Vessel *vesselData `json:"vessel"`
}

func (c *Client) FetchLivePosition(ctx context.Context, imo string) (vessel.Position, error) {
	if imo == "" {
		return vessel.Position{}, errors.New("imo is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return vessel.Position{}, integrations.Unavailable(provider, err)
		}
	}

	u, err := url.Parse(c.baseURL + "/vessel")
	if err != nil {
		return vessel.Position{}, errors.Wrap(err, "parse base url")
	}
	q := u.Query()
	q.Set("imo", imo)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return vessel.Position{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return vessel.Position{}, integrations.Unavailable(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return vessel.Position{}, &integrations.HTTPError{Provider: provider, StatusCode: resp.StatusCode}
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return vessel.Position{}, integrations.Malformed(provider, "decode: "+err.Error())
	}
	d := rb.Data
	if d == nil {
		d = rb.Vessel
	}
	if d == nil || d.Lat == nil || d.Lon == nil {
		return vessel.Position{}, integrations.Malformed(provider, "no position in response")
	}

	pos := vessel.Position{Lat: *d.Lat, Lon: *d.Lon}
	if d.Speed != nil {
		pos.SpeedKnots = *d.Speed
	}
	if d.Course != nil {
		pos.CourseDegree = *d.Course
	}
	if err := validate.Struct(pos); err != nil {
		return vessel.Position{}, integrations.Malformed(provider, err.Error())
	}
	return pos, nil
}
