package jsoncargo

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/BearBump/Dekks/internal/integrations/tracking"
	"github.com/pkg/errors"
)

const (
	provider       = "jsoncargo"
	defaultBaseURL = "https://api.jsoncargo.com/api/v1"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
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

// flexString accepts both "9525338" and 9525338: the API is not consistent about IMO numbers.
type flexString struct {
	v *string
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.v = &s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	s := n.String()
	f.v = &s
	return nil
}

type containerData struct {
	ContainerStatus      *string    `json:"container_status"`
	ContainerType        *string    `json:"container_type"`
	ShippedFrom          *string    `json:"shipped_from"`
	ShippedTo            *string    `json:"shipped_to"`
	LastLocation         *string    `json:"last_location"`
	LastLocationTerminal *string    `json:"last_location_terminal"`
	NextLocation         *string    `json:"next_location"`
	NextLocationTerminal *string    `json:"next_location_terminal"`
	CurrentVesselName    *string    `json:"current_vessel_name"`
	CurrentVoyageNumber  *string    `json:"current_voyage_number"`
	IMO                  flexString `json:"imo"`
	EtaFinalDestination  *string    `json:"eta_final_destination"`
	LastMovementAt       *string    `json:"last_movement_timestamp"`
}

type respBody struct {
	Data  *containerData  `json:"data"`
	Error json.RawMessage `json:"error,omitempty"`
}

func (c *Client) FetchTracking(ctx context.Context, containerID, carrierName string, carrierLineID *string) (tracking.Snapshot, error) {
	u, err := url.Parse(c.baseURL + "/containers/" + url.PathEscape(containerID))
	if err != nil {
		return tracking.Snapshot{}, errors.Wrap(err, "parse base url")
	}
	q := u.Query()
	q.Set("shipping_line", carrierName)
	if carrierLineID != nil && *carrierLineID != "" {
		q.Set("shipping_line_id", *carrierLineID)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return tracking.Snapshot{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return tracking.Snapshot{}, integrations.Unavailable(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return tracking.Snapshot{}, &integrations.HTTPError{Provider: provider, StatusCode: resp.StatusCode}
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return tracking.Snapshot{}, integrations.Malformed(provider, "decode: "+err.Error())
	}
	if rb.Data == nil {
		if len(rb.Error) > 0 {
			return tracking.Snapshot{}, integrations.Malformed(provider, "error payload: "+string(rb.Error))
		}
		return tracking.Snapshot{}, integrations.Malformed(provider, "missing data object")
	}

	d := rb.Data
	return tracking.Snapshot{
		Status:               clean(d.ContainerStatus),
		ContainerType:        clean(d.ContainerType),
		ShippedFrom:          clean(d.ShippedFrom),
		ShippedTo:            clean(d.ShippedTo),
		LastLocation:         clean(d.LastLocation),
		LastLocationTerminal: clean(d.LastLocationTerminal),
		NextLocation:         clean(d.NextLocation),
		NextLocationTerminal: clean(d.NextLocationTerminal),
		CurrentVesselName:    clean(d.CurrentVesselName),
		CurrentVoyageNumber:  clean(d.CurrentVoyageNumber),
		VesselIMO:            clean(d.IMO.v),
		EtaFinalDestination:  parseTime(d.EtaFinalDestination),
		LastMovementAt:       parseTime(d.LastMovementAt),
	}, nil
}

// clean turns blank strings into "absent".
func clean(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime is lenient: an unparseable timestamp is treated as absent, not as a malformed payload.
func parseTime(s *string) *time.Time {
	v := clean(s)
	if v == nil {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, *v, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
