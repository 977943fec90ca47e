package models

import "time"

// Course groups assignments under an owning faculty member.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:32;not null;uniqueIndex" json:"code"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	FacultyID uint      `gorm:"not null;index" json:"faculty_id"`
	Semester  string    `gorm:"size:32" json:"semester"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Faculty User `gorm:"constraint:OnUpdate:CASCADE" json:"faculty"`
}
