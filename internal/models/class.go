package models

import "errors"

// ErrInvalidToken is returned by identity providers for tokens that will
// never authenticate. Any other provider error is an outage.
var ErrInvalidToken = errors.New("invalid token")

// Role is the platform role carried by an authenticated identity.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Identity is the authenticated caller as reported by the identity provider.
type Identity struct {
	ID          int64  `json:"id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	ExternalRef string `json:"external_ref,omitempty"`
}

// EnrollmentApproved is the only enrollment status that grants chat access.
const EnrollmentApproved = "approved"

// Class is the subset of a class record the chat needs for ownership checks.
type Class struct {
	ID           int64  `db:"id" json:"id"`
	UniversityID int64  `db:"university_id" json:"university_id"`
	Name         string `db:"name" json:"name"`
	TeacherID    int64  `db:"teacher_id" json:"teacher_id"`
}
