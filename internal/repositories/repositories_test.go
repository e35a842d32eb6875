package repositories

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"class-chat-service/internal/db"
	"class-chat-service/internal/models"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

var alice = models.Sender{ID: 10, Role: models.RoleStudent, DisplayName: "Alice"}

func seedMessage(t *testing.T, repo *MessageRepo, classID int64, sender models.Sender, body string, at time.Time) models.Message {
	t.Helper()
	msg, err := repo.CreateMessage(context.Background(), models.Message{
		ClassID:   classID,
		Sender:    sender,
		Body:      body,
		Kind:      models.KindText,
		CreatedAt: at,
	})
	require.NoError(t, err)
	return msg
}

func TestCreateAndGetMessage(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	created := seedMessage(t, repo, 1, alice, "hello", at)
	require.NotZero(t, created.ID)

	got, err := repo.GetMessage(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, alice, got.Sender)
	assert.Equal(t, models.KindText, got.Kind)
	assert.False(t, got.Deleted)
	assert.Nil(t, got.EditedAt)
	assert.Empty(t, got.ReadMarks)
	assert.True(t, at.Equal(got.CreatedAt))

	_, err = repo.GetMessage(context.Background(), 999)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestListPageNewestFirst(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 120; i++ {
		seedMessage(t, repo, 1, alice, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Second))
	}
	seedMessage(t, repo, 2, alice, "other class", base)

	page, total, err := repo.ListPage(context.Background(), 1, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 120, total)
	require.Len(t, page, 50)
	assert.Equal(t, "m120", page[0].Body)
	assert.Equal(t, "m71", page[49].Body)

	page, _, err = repo.ListPage(context.Background(), 1, 50, 100)
	require.NoError(t, err)
	require.Len(t, page, 20)
	assert.Equal(t, "m20", page[0].Body)
	assert.Equal(t, "m1", page[19].Body)

	page, total, err = repo.ListPage(context.Background(), 3, 50, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestListPageTieBreaksOnID(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := seedMessage(t, repo, 1, alice, "first", at)
	second := seedMessage(t, repo, 1, alice, "second", at)

	page, _, err := repo.ListPage(context.Background(), 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, second.ID, page[0].ID)
	assert.Equal(t, first.ID, page[1].ID)
}

func TestUpdateBody(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	ctx := context.Background()
	msg := seedMessage(t, repo, 1, alice, "hello", time.Now().UTC())
	editedAt := time.Now().UTC().Add(time.Minute)

	updated, err := repo.UpdateBody(ctx, msg.ID, alice.ID, "hello again", editedAt)
	require.NoError(t, err)
	assert.Equal(t, "hello again", updated.Body)
	require.NotNil(t, updated.EditedAt)
	assert.True(t, editedAt.Equal(*updated.EditedAt))

	_, err = repo.UpdateBody(ctx, msg.ID, 99, "hijack", editedAt)
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	_, err = repo.UpdateBody(ctx, 12345, alice.ID, "missing", editedAt)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, _, err = repo.SoftDelete(ctx, msg.ID, alice.ID, models.DeletedPlaceholder)
	require.NoError(t, err)
	_, err = repo.UpdateBody(ctx, msg.ID, alice.ID, "after delete", editedAt)
	assert.ErrorIs(t, err, ErrMessageDeleted)
}

func TestSoftDelete(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	ctx := context.Background()
	msg, err := repo.CreateMessage(ctx, models.Message{
		ClassID:        1,
		Sender:         alice,
		Body:           "see attached",
		Kind:           models.KindFile,
		AttachmentURL:  "https://files.example.com/a.pdf",
		AttachmentName: "a.pdf",
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	_, _, err = repo.SoftDelete(ctx, msg.ID, 99, models.DeletedPlaceholder)
	assert.ErrorIs(t, err, ErrNotMessageOwner)

	deleted, changed, err := repo.SoftDelete(ctx, msg.ID, alice.ID, models.DeletedPlaceholder)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, models.DeletedPlaceholder, deleted.Body)
	assert.Equal(t, "a.pdf", deleted.AttachmentName)

	again, changed, err := repo.SoftDelete(ctx, msg.ID, alice.ID, models.DeletedPlaceholder)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, again.Deleted)

	_, _, err = repo.SoftDelete(ctx, 4242, alice.ID, models.DeletedPlaceholder)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	page, total, err := repo.ListPage(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.True(t, page[0].Deleted)
}

func TestUpsertReadMark(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	ctx := context.Background()
	msg := seedMessage(t, repo, 1, alice, "read me", time.Now().UTC())
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	require.NoError(t, repo.UpsertReadMark(ctx, msg.ID, 20, first))
	require.NoError(t, repo.UpsertReadMark(ctx, msg.ID, 21, first))
	require.NoError(t, repo.UpsertReadMark(ctx, msg.ID, 20, later))

	got, err := repo.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, got.ReadMarks, 2)
	marks := map[int64]time.Time{}
	for _, m := range got.ReadMarks {
		marks[m.ReaderID] = m.ReadAt
	}
	assert.True(t, later.Equal(marks[20]))
	assert.True(t, first.Equal(marks[21]))

	page, _, err := repo.ListPage(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Len(t, page[0].ReadMarks, 2)
}

func TestStats(t *testing.T) {
	repo := NewMessageRepo(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	bob := models.Sender{ID: 11, Role: models.RoleStudent, DisplayName: "Bob"}
	teacher := models.Sender{ID: 1, Role: models.RoleTeacher, DisplayName: "Ms T"}

	seedMessage(t, repo, 1, alice, "old", now.AddDate(0, 0, -30))
	seedMessage(t, repo, 1, alice, "recent", now.AddDate(0, 0, -1))
	seedMessage(t, repo, 1, bob, "recent too", now.AddDate(0, 0, -2))
	gone := seedMessage(t, repo, 1, teacher, "removed", now.AddDate(0, 0, -1))
	seedMessage(t, repo, 2, bob, "other class", now)

	_, _, err := repo.SoftDelete(ctx, gone.ID, teacher.ID, models.DeletedPlaceholder)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, 1, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, models.ActivityStats{TotalMessages: 3, MessagesThisWeek: 2, ActiveUsersThisWeek: 2}, stats)

	empty, err := repo.Stats(ctx, 9, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, models.ActivityStats{}, empty)
}

func TestClassRepo(t *testing.T) {
	repo := NewClassRepo(newTestDB(t))
	ctx := context.Background()

	class, err := repo.CreateClass(ctx, 3, "Physics", 1, []int64{10, 11, 10})
	require.NoError(t, err)
	require.NotZero(t, class.ID)

	got, err := repo.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, class, got)

	_, err = repo.GetClass(ctx, 999)
	assert.ErrorIs(t, err, ErrClassNotFound)

	enrolled, err := repo.IsEnrolled(ctx, class.ID, 10)
	require.NoError(t, err)
	assert.True(t, enrolled)

	enrolled, err = repo.IsEnrolled(ctx, class.ID, 12)
	require.NoError(t, err)
	assert.False(t, enrolled)

	require.NoError(t, repo.SetEnrollmentStatus(ctx, class.ID, 12, "pending"))
	enrolled, err = repo.IsEnrolled(ctx, class.ID, 12)
	require.NoError(t, err)
	assert.False(t, enrolled)

	require.NoError(t, repo.SetEnrollmentStatus(ctx, class.ID, 12, models.EnrollmentApproved))
	enrolled, err = repo.IsEnrolled(ctx, class.ID, 12)
	require.NoError(t, err)
	assert.True(t, enrolled)
}

func TestCreateClassEnrollsDuplicateStudentsOnce(t *testing.T) {
	conn := newTestDB(t)
	repo := NewClassRepo(conn)
	ctx := context.Background()

	class, err := repo.CreateClass(ctx, 3, "Physics", 1, []int64{12, 10, 12, 11, 10})
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, conn.SelectContext(ctx, &ids,
		conn.Rebind(`SELECT student_id FROM enrollments WHERE class_id=? ORDER BY student_id`), class.ID))
	assert.Equal(t, []int64{10, 11, 12}, ids)
}
