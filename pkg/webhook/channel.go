package webhook

import "time"

// Channel is a registered Google Calendar push notification channel. Google
// expires channels after at most 7 days, so channels are replaced on a
// schedule before they lapse.
type Channel struct {
	ChannelId  string
	ResourceId string
	CalendarId string
	Expiration time.Time
	CreatedAt  time.Time
}
