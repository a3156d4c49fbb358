package wedding

import "time"

// ScheduleItem is one line of the day's programme.
type ScheduleItem struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// Photo is one frame of the gallery timeline. Year is empty for collage photos.
type Photo struct {
	Year  string `json:"year,omitempty"`
	Src   string `json:"src"`
	Title string `json:"title"`
}

// Gallery groups the year-by-year timeline and the collage.
type Gallery struct {
	Timeline []Photo `json:"timeline"`
	Collage  []Photo `json:"collage"`
}

// Details describes the event shown on the landing page.
type Details struct {
	Couple   string         `json:"couple"`
	Venue    string         `json:"venue"`
	Date     time.Time      `json:"date"`
	Schedule []ScheduleItem `json:"schedule"`
}

// DefaultSchedule returns the programme of the evening.
func DefaultSchedule() []ScheduleItem {
	return []ScheduleItem{
		{Time: "5:00 PM", Event: "Guests Arrival & Reception"},
		{Time: "5:30 PM", Event: "Ceremony Begins"},
		{Time: "6:00 PM", Event: "Cocktail Hour"},
		{Time: "7:00 PM", Event: "Dinner Service"},
		{Time: "8:30 PM", Event: "Toasts & Cake Cutting"},
		{Time: "9:00 PM", Event: "Dance & Celebration"},
	}
}

// DefaultGallery returns the photo timeline and collage served from static assets.
func DefaultGallery() Gallery {
	return Gallery{
		Timeline: []Photo{
			{Year: "2022", Src: "/pic1.jpeg", Title: "When We Met"},
			{Year: "2023", Src: "/pic2.jpeg", Title: "Our Journey Begins"},
			{Year: "2024", Src: "/pic3.jpeg", Title: "Growing Together"},
			{Year: "2025", Src: "/pic4.jpeg", Title: "Almost Here!"},
		},
		Collage: []Photo{
			{Src: "/pic1.jpeg", Title: "Laughter & Love"},
			{Src: "/pic2.jpeg", Title: "Cherished Moments"},
			{Src: "/pic3.jpeg", Title: "Together Forever"},
			{Src: "/pic4.jpeg", Title: "Beautiful Memories"},
			{Src: "/pic1.jpeg", Title: "Happiness"},
			{Src: "/pic2.jpeg", Title: "Our Story"},
			{Src: "/pic3.jpeg", Title: "Timeless Moments"},
		},
	}
}

// NewDetails builds the event details with the default schedule.
func NewDetails(couple, venue string, date time.Time) Details {
	return Details{
		Couple:   couple,
		Venue:    venue,
		Date:     date,
		Schedule: DefaultSchedule(),
	}
}
