package domain

import "time"

// User is a registered account.
type User struct {
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash,omitempty"`
}

// Identity returns the authenticated identity for u.
func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Email: u.Email, Username: u.Username}
}

// Identity is the authenticated caller the messaging operations act on behalf of.
// Membership is checked by Email; reactions are keyed by UserID; messages record
// Username as the sender.
type Identity struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}
