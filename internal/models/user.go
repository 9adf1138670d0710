package models

import "time"

// Role values recognised by the portal.
const (
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

// User is a portal account, either an instructor or a student.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:32;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsInstructor reports whether the user holds the instructor role.
func (u User) IsInstructor() bool {
	return u.Role == RoleInstructor
}
