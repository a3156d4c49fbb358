package wedding

import "time"

// Remaining is the time left until the ceremony, split for display.
type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Passed  bool  `json:"passed"`
}

// Countdown splits the time between now and target. Once target is reached every field is zero.
func Countdown(target, now time.Time) Remaining {
	difference := target.Sub(now)
	if difference <= 0 {
		return Remaining{Passed: true}
	}
	total := int64(difference / time.Second)
	return Remaining{
		Days:    total / 86400,
		Hours:   total / 3600 % 24,
		Minutes: total / 60 % 60,
		Seconds: total % 60,
	}
}
