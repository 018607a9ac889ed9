package models

import "time"

// BeforeCreate stamps both timestamps for a post about to be stored.
func (p *Post) BeforeCreate(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// BeforeSave refreshes UpdatedAt. CreatedAt is left untouched.
func (p *Post) BeforeSave(now time.Time) {
	p.UpdatedAt = now
}

// OwnedBy reports whether user is the author of the post.
func (p *Post) OwnedBy(user *User) bool {
	if p == nil || user == nil {
		return false
	}
	return p.UserID == user.ID
}
