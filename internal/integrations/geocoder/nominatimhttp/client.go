package nominatimhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/TrackIt/internal/integrations/geocoder"
	"github.com/pkg/errors"
)

// Nominatim usage policy: identify the application and keep at most one
// request per second. The per-second budget is enforced by the caller
// (see services/locations), this client only sets the user agent.
const defaultUserAgent = "TrackIt Package Tracker"

type Client struct {
	baseURL   string
	userAgent string
	httpc     *http.Client
}

func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: defaultUserAgent,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Address     struct {
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

func (c *Client) Geocode(ctx context.Context, address string) (geocoder.Result, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return geocoder.Result{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/search"

	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("addressdetails", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return geocoder.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return geocoder.Result{}, errors.Wrap(geocoder.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return geocoder.Result{}, errors.Wrapf(geocoder.ErrUnavailable, "http %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geocoder.Result{}, errors.Wrap(geocoder.ErrUnavailable, "decode response")
	}
	if len(results) == 0 {
		return geocoder.Result{}, geocoder.ErrNoMatch
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return geocoder.Result{}, errors.Wrap(geocoder.ErrUnavailable, "parse lat")
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return geocoder.Result{}, errors.Wrap(geocoder.ErrUnavailable, "parse lon")
	}

	return geocoder.Result{
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: r.DisplayName,
		CountryCode: strings.ToUpper(r.Address.CountryCode),
	}, nil
}
