package models

import "time"

// Roles recognised by the permission policy.
const (
	RoleAdmin   = "admin"
	RoleFaculty = "faculty"
	RoleStudent = "student"
)

// User represents an account that can act on the API: an administrator,
// a faculty member, or a student.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Role      string    `gorm:"size:32;not null;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFaculty reports whether the user can own assignments.
func (u User) IsFaculty() bool {
	return u.Role == RoleFaculty
}
