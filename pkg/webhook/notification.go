package webhook

import (
	"encoding/json"
	"net/http"
)

// Notification is a Google Calendar push notification. Google delivers the
// fields as X-Goog-* headers with an empty body; the JSON form is accepted as
// well so the endpoint can be exercised by hand.
type Notification struct {
	ChannelId     string `json:"channelId"`
	ResourceId    string `json:"resourceId"`
	ResourceState string `json:"resourceState"`
	ResourceUri   string `json:"resourceUri"`
	MessageNumber string `json:"messageNumber"`
}

// IsEmpty reports a notification without channel or state, which Google sends
// as a connectivity test.
func (n Notification) IsEmpty() bool {
	return n.ChannelId == "" && n.ResourceState == ""
}

// ParseNotification reads the push notification headers, falling back to a
// JSON body when no headers are present.
func ParseNotification(r *http.Request) Notification {
	n := Notification{
		ChannelId:     r.Header.Get("X-Goog-Channel-ID"),
		ResourceId:    r.Header.Get("X-Goog-Resource-ID"),
		ResourceState: r.Header.Get("X-Goog-Resource-State"),
		ResourceUri:   r.Header.Get("X-Goog-Resource-URI"),
		MessageNumber: r.Header.Get("X-Goog-Message-Number"),
	}
	if !n.IsEmpty() {
		return n
	}

	var body Notification
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		return body
	}
	return n
}
