package feed

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pmwedding/invitation/internal/wishes"
)

const (
	AnonymousName      = "Anonymous Guest"
	PlaceholderMessage = "(no message)"
)

var ageMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "just now", DivBy: time.Second},
	{D: time.Hour, Format: "%dm %s", DivBy: time.Minute},
	{D: 24 * time.Hour, Format: "%dh %s", DivBy: time.Hour},
	{D: math.MaxInt64, Format: "%dd %s", DivBy: 24 * time.Hour},
}

// Entry is one wish as shown in the feed.
type Entry struct {
	ID        int64     `json:"id"`
	GuestID   int64     `json:"guest_id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Guests    int       `json:"number_of_guests"`
	Attending bool      `json:"will_attend"`
	Timestamp time.Time `json:"created_at"`
	Age       string    `json:"age"`
}

// MapWish converts a stored wish into a feed entry, filling partially written fields.
func MapWish(wish wishes.Wish, now time.Time) Entry {
	name := strings.TrimSpace(wish.Name)
	if name == "" {
		name = AnonymousName
	}
	message := strings.TrimSpace(wish.Message)
	if message == "" {
		message = PlaceholderMessage
	}
	timestamp := wish.CreatedAt
	if timestamp.IsZero() {
		timestamp = now
	}
	return Entry{
		ID:        wish.ID,
		GuestID:   wish.GuestID,
		Name:      name,
		Message:   message,
		Guests:    wish.NumberOfGuests,
		Attending: wish.WillAttend,
		Timestamp: timestamp.UTC(),
		Age:       FormatAge(timestamp, now),
	}
}

// MapWishes maps records in order. The result is never nil.
func MapWishes(records []wishes.Wish, now time.Time) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, MapWish(record, now))
	}
	return entries
}

// FormatAge renders the compact relative time shown next to a wish: "just now", "5m ago", "3h ago", "2d ago".
// Timestamps ahead of now are treated as now.
func FormatAge(then, now time.Time) string {
	if then.After(now) {
		then = now
	}
	return humanize.CustomRelTime(then, now, "ago", "ago", ageMagnitudes)
}
