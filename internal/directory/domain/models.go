package domain

import "time"

// User is the roster mirror this subsystem reads for audience resolution and
// channel addressing. IDs come from the upstream identity system, so they are
// plain integers rather than locally generated.
type User struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	SchoolID    int64     `gorm:"not null;index" json:"school_id"`
	Role        string    `gorm:"not null;index" json:"role"`
	ClassroomID *int64    `gorm:"index" json:"classroom_id,omitempty"`
	FullName    string    `gorm:"not null" json:"full_name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	PushToken   string    `json:"-"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Guardianship links a parent user to a student user.
type Guardianship struct {
	ParentUserID  int64 `gorm:"primaryKey;autoIncrement:false" json:"parent_user_id"`
	StudentUserID int64 `gorm:"primaryKey;autoIncrement:false" json:"student_user_id"`
}

// Contact is the delivery-address view of a user.
type Contact struct {
	UserID    int64
	FullName  string
	Email     string
	Phone     string
	PushToken string
}
