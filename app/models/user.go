package models

import "time"

// BeforeCreate sets the creation time if it is not already set.
func (u *User) BeforeCreate(now time.Time) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
}
