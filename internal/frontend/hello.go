package frontend

import (
	"encoding/json"

	"github.com/jroosing/chaingate/internal/dispatch"
	"github.com/jroosing/chaingate/internal/session"
)

// helloRateLimits is the rateLimits block of the connection hello frame.
type helloRateLimits struct {
	RequestsPerMinute      int  `json:"requestsPerMinute"`
	SubscriptionsUnlimited bool `json:"subscriptionsUnlimited"`
}

// helloFrame is the frame sent immediately on accept, before any client
// request, advertising what the connection can do.
type helloFrame struct {
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	Message          string          `json:"message"`
	AvailableAPIs    []string        `json:"availableApis"`
	SubscriptionAPIs []session.Feed  `json:"subscriptionApis"`
	RateLimits       helloRateLimits `json:"rateLimits"`
}

// buildHello renders the connection hello frame for a newly accepted
// session whose rate limit allows requestsPerMinute requests per minute.
func buildHello(requestsPerMinute int) []byte {
	frame := helloFrame{
		Type:             "connection",
		Status:           "connected",
		Message:          "connected to chaingate",
		AvailableAPIs:    dispatch.AllBareMethods(),
		SubscriptionAPIs: session.AllFeeds(),
		RateLimits: helloRateLimits{
			RequestsPerMinute:      requestsPerMinute,
			SubscriptionsUnlimited: true,
		},
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	return b
}
