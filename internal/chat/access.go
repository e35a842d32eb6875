package chat

import (
	"context"
	"fmt"

	"class-chat-service/internal/models"
)

// ClassDirectory resolves classes for ownership checks.
type ClassDirectory interface {
	GetClass(ctx context.Context, classID int64) (models.Class, error)
}

// EnrollmentProvider reports whether a student currently holds an approved
// enrollment in a class.
type EnrollmentProvider interface {
	IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error)
}

// Gate decides whether an identity may use a class chat. It keeps no state
// between calls.
type Gate struct {
	classes     ClassDirectory
	enrollments EnrollmentProvider
}

// NewGate constructs a Gate.
func NewGate(classes ClassDirectory, enrollments EnrollmentProvider) *Gate {
	return &Gate{classes: classes, enrollments: enrollments}
}

// CanAccessClassChat returns nil when the identity is the class teacher or an
// enrolled student, ErrNotFound for an unknown class and ErrForbidden otherwise.
func (g *Gate) CanAccessClassChat(ctx context.Context, identity models.Identity, classID int64) error {
	if classID <= 0 {
		return fmt.Errorf("%w: class_id must be positive", ErrValidation)
	}

	class, err := g.classes.GetClass(ctx, classID)
	if err != nil {
		return mapRepoErr(err)
	}

	switch identity.Role {
	case models.RoleTeacher:
		if identity.ID == class.TeacherID {
			return nil
		}
	case models.RoleStudent:
		enrolled, err := g.enrollments.IsEnrolled(ctx, classID, identity.ID)
		if err != nil {
			return mapRepoErr(err)
		}
		if enrolled {
			return nil
		}
	}
	return fmt.Errorf("%w: no access to class %d", ErrForbidden, classID)
}
