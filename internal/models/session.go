package models

import (
	"time"
)

// StoredSession is the persisted form of a signed-in user's session.
// The bearer token itself is kept so the BFF can call the backend on the
// user's behalf; TokenDigest is the lookup key.
type StoredSession struct {
	BaseModel
	TokenDigest string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Token       string    `gorm:"type:text;not null" json:"-"`
	UserID      string    `gorm:"size:64;index;not null" json:"userId"`
	Role        Role      `gorm:"size:20;not null" json:"role"`
	DisplayName string    `gorm:"size:255" json:"displayName"`
	Email       string    `gorm:"size:255" json:"email"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
