package ship24http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/TrackIt/internal/integrations/provider"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.ship24.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type trackRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	CourierCode    string `json:"courierCode,omitempty"`
}

type ship24Resp struct {
	Data struct {
		Tracker struct {
			TrackerID      string `json:"trackerId"`
			TrackingNumber string `json:"trackingNumber"`
			CourierCode    string `json:"courierCode"`
			Shipment       struct {
				StatusMilestone    string  `json:"statusMilestone"`
				OriginCountryCode  string  `json:"originCountryCode"`
				DestinationCountry string  `json:"destinationCountryCode"`
				EstimatedDelivery  string  `json:"estimatedDeliveryDate"`
				Events             []struct {
					Datetime          string `json:"datetime"`
					StatusMilestone   string `json:"statusMilestone"`
					StatusDescription string `json:"statusDescription"`
					EventCode         string `json:"eventCode"`
					CourierCode       string `json:"courierCode"`
					Location          string `json:"location"`
				} `json:"events"`
			} `json:"shipment"`
		} `json:"tracker"`
	} `json:"data"`
}

func (c *Client) Track(ctx context.Context, trackingNumber, courierHint, trackerID string) (provider.Result, error) {
	// A cached tracker id saves the provider from re-detecting the courier.
	// If the tracker has expired upstream, fall back to a fresh track call.
	if trackerID != "" {
		res, err := c.trackerResults(ctx, trackerID)
		if err == nil || !errors.Is(err, provider.ErrNotFound) {
			return res, err
		}
	}
	return c.trackPackage(ctx, trackingNumber, courierHint)
}

func (c *Client) trackPackage(ctx context.Context, trackingNumber, courierHint string) (provider.Result, error) {
	body, err := json.Marshal(trackRequest{TrackingNumber: trackingNumber, CourierCode: courierHint})
	if err != nil {
		return provider.Result{}, errors.Wrap(err, "marshal track request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/public/v1/trackers/track", bytes.NewReader(body))
	if err != nil {
		return provider.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) trackerResults(ctx context.Context, trackerID string) (provider.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/public/v1/trackers/%s/results", c.baseURL, trackerID), nil)
	if err != nil {
		return provider.Result{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (provider.Result, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return provider.Result{}, errors.Wrap(provider.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.Result{}, provider.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return provider.Result{}, provider.ErrNotFound
	case resp.StatusCode/100 != 2:
		return provider.Result{}, errors.Wrapf(provider.ErrUnavailable, "http %d", resp.StatusCode)
	}

	var r ship24Resp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return provider.Result{}, errors.Wrap(provider.ErrUnavailable, "decode response")
	}

	tr := r.Data.Tracker
	out := provider.Result{
		DetectedCourier:    tr.CourierCode,
		OriginCountry:      tr.Shipment.OriginCountryCode,
		DestinationCountry: tr.Shipment.DestinationCountry,
		TrackerID:          tr.TrackerID,
	}
	if tr.Shipment.EstimatedDelivery != "" {
		if t, err := time.Parse(time.RFC3339, tr.Shipment.EstimatedDelivery); err == nil {
			utc := t.UTC()
			out.EstimatedDelivery = &utc
		}
	}
	for _, e := range tr.Shipment.Events {
		out.Events = append(out.Events, provider.RawEvent{
			StatusMilestone:  e.StatusMilestone,
			Location:         e.Location,
			Timestamp:        e.Datetime,
			Description:      e.StatusDescription,
			CourierEventCode: e.EventCode,
			CourierCode:      e.CourierCode,
		})
	}
	return out, nil
}
