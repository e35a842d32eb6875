package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"class-chat-service/internal/models"
)

var ErrClassNotFound = errors.New("class not found")

// ClassRepository abstracts class and enrollment lookups. The platform owns
// the classes and enrollments tables; the chat service only reads them.
type ClassRepository interface {
	GetClass(ctx context.Context, classID int64) (models.Class, error)
	IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error)

	// Seeding helpers for standalone deployments and tests. Nothing on the
	// request path writes classes or enrollments.
	CreateClass(ctx context.Context, universityID int64, name string, teacherID int64, studentIDs []int64) (models.Class, error)
	SetEnrollmentStatus(ctx context.Context, classID, studentID int64, status string) error
}

// ClassRepo is a sqlx implementation of ClassRepository.
type ClassRepo struct {
	db *sqlx.DB
}

// NewClassRepo constructs a ClassRepo.
func NewClassRepo(db *sqlx.DB) *ClassRepo {
	return &ClassRepo{db: db}
}

// GetClass fetches a single class.
func (r *ClassRepo) GetClass(ctx context.Context, classID int64) (models.Class, error) {
	var class models.Class
	err := r.db.GetContext(ctx, &class, r.db.Rebind(`SELECT id, university_id, name, teacher_id FROM classes WHERE id=?`), classID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Class{}, ErrClassNotFound
	}
	return class, err
}

// IsEnrolled checks for an approved enrollment.
func (r *ClassRepo) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		r.db.Rebind(`SELECT EXISTS(SELECT 1 FROM enrollments WHERE class_id=? AND student_id=? AND status=?)`),
		classID, studentID, models.EnrollmentApproved)
	return exists, err
}

// CreateClass creates a class and approves the given students atomically.
// Duplicate student IDs are enrolled once. It seeds standalone databases; the
// platform owns class rows in production.
func (r *ClassRepo) CreateClass(ctx context.Context, universityID int64, name string, teacherID int64, studentIDs []int64) (models.Class, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Class{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	class := models.Class{UniversityID: universityID, Name: name, TeacherID: teacherID}
	if err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO classes (university_id, name, teacher_id) VALUES (?, ?, ?) RETURNING id`),
		universityID, name, teacherID).Scan(&class.ID); err != nil {
		return models.Class{}, err
	}

	for _, id := range lo.Uniq(studentIDs) {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO enrollments (class_id, student_id, status) VALUES (?, ?, ?)`),
			class.ID, id, models.EnrollmentApproved); err != nil {
			return models.Class{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Class{}, err
	}
	return class, nil
}

// SetEnrollmentStatus creates or updates an enrollment. Like CreateClass it
// is a seeding helper and is never called from the request path.
func (r *ClassRepo) SetEnrollmentStatus(ctx context.Context, classID, studentID int64, status string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO enrollments (class_id, student_id, status) VALUES (?, ?, ?)
        ON CONFLICT (class_id, student_id) DO UPDATE SET status = EXCLUDED.status`), classID, studentID, status)
	return err
}
