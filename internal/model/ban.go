package model

import (
	"strconv"
	"time"

	"github.com/iliyamo/forum-core/internal/audit"
)

// Ban mirrors the `bans` table.  A user has at most one ban; the unique
// index on user_id enforces it.
type Ban struct {
	ID         uint64    `json:"id"`
	UserID     uint64    `json:"user_id"`
	Reason     string    `json:"reason"`
	BanEndDate time.Time `json:"ban_end_date"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Version    uint64    `json:"-"`
}

// Expired reports whether the ban ended before now.
func (b *Ban) Expired(now time.Time) bool { return b.BanEndDate.Before(now) }

// Snapshot returns the audited fields of the ban.
func (b Ban) Snapshot() audit.Snapshot {
	return audit.Snapshot{
		Type: "Ban",
		ID:   strconv.FormatUint(b.ID, 10),
		Fields: []audit.Field{
			{Name: "UserId", Value: strconv.FormatUint(b.UserID, 10)},
			{Name: "Reason", Value: b.Reason},
			{Name: "BanEndDate", Value: FormatTime(b.BanEndDate)},
		},
	}
}

// FormatTime renders timestamps in audit rows and API payloads.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
