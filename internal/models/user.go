package models

import "time"

// User roles reported by the backend
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the account behind the current browser session
type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Role        string    `json:"role"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IsAdmin reports whether the user may delete records and submit images
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
