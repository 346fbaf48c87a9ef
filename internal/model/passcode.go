package model

import (
	"time"
)

// Passcode is a single-use numeric code bound to an owner address and a purpose.
type Passcode struct {
	ID        string          `db:"id" json:"id"`
	Owner     string          `db:"owner" json:"owner"`
	Code      string          `db:"code" json:"-"`
	Purpose   PasscodePurpose `db:"purpose" json:"purpose"`
	ExpiresAt time.Time       `db:"expires_at" json:"expiresAt"`
	UsedAt    *time.Time      `db:"used_at" json:"usedAt,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

type CreatePasscodeParams struct {
	Owner     string
	Code      string
	Purpose   PasscodePurpose
	ExpiresAt time.Time
}

// IsExpiredAt reports whether the code is past its expiry at now.
func (p *Passcode) IsExpiredAt(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (p *Passcode) IsUsed() bool {
	return p.UsedAt != nil
}
