package wishes

import (
	"time"

	"github.com/pmwedding/invitation/internal/guests"
)

// TableName is the table backing the wish store; change subscriptions are keyed by it.
const TableName = "wishes"

// Party sizes offered by the RSVP form.
const (
	MinPartySize = 1
	MaxPartySize = 6
)

// Wish is a guest's message plus RSVP metadata. At most one row exists per guest, and
// the guest must exist.
type Wish struct {
	ID             int64        `gorm:"column:id;primaryKey;autoIncrement"`
	GuestID        int64        `gorm:"column:guest_id;not null;uniqueIndex:idx_wishes_guest_id"`
	Guest          guests.Guest `gorm:"foreignKey:GuestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Name           string       `gorm:"column:name;size:320;not null"`
	Message        string       `gorm:"column:message;type:text;not null"`
	NumberOfGuests int          `gorm:"column:number_of_guests;not null"`
	WillAttend     bool         `gorm:"column:will_attend;not null"`
	CreatedAt      time.Time    `gorm:"column:created_at;not null;index:idx_wishes_created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Wish) TableName() string {
	return TableName
}

// ValidPartySize reports whether size is one of the selectable party sizes.
func ValidPartySize(size int) bool {
	return size >= MinPartySize && size <= MaxPartySize
}
