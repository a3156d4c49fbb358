package feed

import (
	"strings"
	"time"
)

// Filter values accepted by View.Filter.
const (
	FilterAll       = "all"
	FilterAttending = "attending"
)

// Stats summarises the whole feed regardless of the active filter.
type Stats struct {
	TotalWishes    int `json:"total_wishes"`
	AttendingCount int `json:"attending_count"`
	TotalGuests    int `json:"total_guests"`
}

// ComputeStats counts wishes, attending wishes, and the party sizes of attending wishes.
func ComputeStats(entries []Entry) Stats {
	stats := Stats{TotalWishes: len(entries)}
	for _, entry := range entries {
		if !entry.Attending {
			continue
		}
		stats.AttendingCount++
		stats.TotalGuests += entry.Guests
	}
	return stats
}

// View is one published snapshot of the feed. Sequence increases with every refresh of a synchronizer.
type View struct {
	Sequence    uint64    `json:"sequence"`
	Entries     []Entry   `json:"wishes"`
	Stats       Stats     `json:"stats"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// NormalizeFilter maps user input onto a known filter, defaulting to FilterAll.
func NormalizeFilter(filter string) string {
	if strings.EqualFold(strings.TrimSpace(filter), FilterAttending) {
		return FilterAttending
	}
	return FilterAll
}

// Filter narrows the entries. Stats keep describing the unfiltered feed.
func (v View) Filter(filter string) View {
	if NormalizeFilter(filter) != FilterAttending {
		return v
	}
	filtered := make([]Entry, 0, len(v.Entries))
	for _, entry := range v.Entries {
		if entry.Attending {
			filtered = append(filtered, entry)
		}
	}
	v.Entries = filtered
	return v
}

// Prepend returns a copy of the view with entry at the head, replacing any entry with the same id.
func (v View) Prepend(entry Entry) View {
	entries := make([]Entry, 0, len(v.Entries)+1)
	entries = append(entries, entry)
	for _, existing := range v.Entries {
		if entry.ID != 0 && existing.ID == entry.ID {
			continue
		}
		entries = append(entries, existing)
	}
	v.Entries = entries
	v.Stats = ComputeStats(entries)
	return v
}
