package guests

import (
	"strings"
	"time"
)

// Guest is an invited guest. Rows are created by the admin CLI and are read-only to the web flow.
type Guest struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:320;not null"`
	LinkToken string    `gorm:"column:link_token;size:190;not null;uniqueIndex:idx_guests_link_token"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing the guest directory.
func (Guest) TableName() string {
	return "guests"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
