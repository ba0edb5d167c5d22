package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/BearBump/TrackIt/internal/integrations/provider"
)

// Client is a deterministic stand-in for the real multi-courier provider.
// The event history depends only on the tracking number, so repeated calls
// return the same feed and a re-sync is a no-op.
type Client struct{}

func New() *Client { return &Client{} }

func (f *Client) Track(ctx context.Context, trackingNumber, courierHint, trackerID string) (provider.Result, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(trackingNumber))
	v := h.Sum32()

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(v%72) * time.Hour)

	events := []provider.RawEvent{
		{
			StatusMilestone:  "info_received",
			Timestamp:        base.Format(time.RFC3339),
			Description:      "Shipment information received",
			CourierEventCode: "IR",
		},
		{
			StatusMilestone:  "in_transit",
			Location:         "Birmingham Mail Centre",
			Timestamp:        base.Add(18 * time.Hour).Format(time.RFC3339),
			Description:      "Item in transit",
			CourierEventCode: "IT",
		},
	}

	// A fifth of the numbers end up delivered.
	if v%5 == 0 {
		events = append(events, provider.RawEvent{
			StatusMilestone:  "delivered",
			Location:         "London, UK",
			Timestamp:        base.Add(40 * time.Hour).Format(time.RFC3339),
			Description:      "Delivered to recipient",
			CourierEventCode: "DL",
		})
	}

	courier := courierHint
	if courier == "" {
		courier = "fake-post"
	}

	return provider.Result{
		Events:             events,
		DetectedCourier:    courier,
		OriginCountry:      "DE",
		DestinationCountry: "GB",
		TrackerID:          fmt.Sprintf("fake-%08x", v),
	}, nil
}
