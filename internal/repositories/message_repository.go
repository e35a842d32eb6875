package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"class-chat-service/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMessageOwner = errors.New("not the message sender")
	ErrMessageDeleted  = errors.New("message already deleted")
)

// MessageRepository defines persistence for class chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	UpdateBody(ctx context.Context, messageID, senderID int64, body string, editedAt time.Time) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, senderID int64, placeholder string) (models.Message, bool, error)
	UpsertReadMark(ctx context.Context, messageID, readerID int64, readAt time.Time) error
	ListPage(ctx context.Context, classID int64, limit, offset int) ([]models.Message, int, error)
	Stats(ctx context.Context, classID int64, since time.Time) (models.ActivityStats, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID             int64      `db:"id"`
	ClassID        int64      `db:"class_id"`
	SenderID       int64      `db:"sender_id"`
	SenderRole     string     `db:"sender_role"`
	SenderName     string     `db:"sender_name"`
	SenderRef      string     `db:"sender_ref"`
	Body           string     `db:"body"`
	Kind           string     `db:"kind"`
	AttachmentURL  string     `db:"attachment_url"`
	AttachmentName string     `db:"attachment_name"`
	Deleted        bool       `db:"deleted"`
	EditedAt       *time.Time `db:"edited_at"`
	CreatedAt      time.Time  `db:"created_at"`
}

func (r messageRow) toModel() models.Message {
	return models.Message{
		ID:      r.ID,
		ClassID: r.ClassID,
		Sender: models.Sender{
			ID:          r.SenderID,
			Role:        models.Role(r.SenderRole),
			DisplayName: r.SenderName,
			ExternalRef: r.SenderRef,
		},
		Body:           r.Body,
		Kind:           models.Kind(r.Kind),
		AttachmentURL:  r.AttachmentURL,
		AttachmentName: r.AttachmentName,
		Deleted:        r.Deleted,
		EditedAt:       r.EditedAt,
		ReadMarks:      []models.ReadMark{},
		CreatedAt:      r.CreatedAt,
	}
}

const messageColumns = `id, class_id, sender_id, sender_role, sender_name, sender_ref, body, kind,
        attachment_url, attachment_name, deleted, edited_at, created_at`

// CreateMessage inserts a message; the database assigns the id.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	query := r.db.Rebind(`INSERT INTO messages (class_id, sender_id, sender_role, sender_name, sender_ref, body, kind,
        attachment_url, attachment_name, deleted, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?) RETURNING id`)
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		msg.ClassID, msg.Sender.ID, string(msg.Sender.Role), msg.Sender.DisplayName, msg.Sender.ExternalRef,
		msg.Body, string(msg.Kind), msg.AttachmentURL, msg.AttachmentName, msg.CreatedAt).Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	msg.ID = id
	msg.Deleted = false
	msg.EditedAt = nil
	msg.ReadMarks = []models.ReadMark{}
	return msg, nil
}

// GetMessage retrieves a single message with its read marks.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return r.getMessage(ctx, r.db, messageID)
}

func (r *MessageRepo) getMessage(ctx context.Context, q sqlx.QueryerContext, messageID int64) (models.Message, error) {
	var row messageRow
	err := sqlx.GetContext(ctx, q, &row, r.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id=?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	msgs, err := r.attachReadMarks(ctx, q, []models.Message{row.toModel()})
	if err != nil {
		return models.Message{}, err
	}
	return msgs[0], nil
}

// UpdateBody replaces the body of a live message owned by senderID.
func (r *MessageRepo) UpdateBody(ctx context.Context, messageID, senderID int64, body string, editedAt time.Time) (models.Message, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE messages SET body=?, edited_at=? WHERE id=? AND sender_id=? AND deleted = FALSE`),
		body, editedAt, messageID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}

	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		if msg.Sender.ID != senderID {
			return models.Message{}, ErrNotMessageOwner
		}
		return models.Message{}, ErrMessageDeleted
	}
	return msg, nil
}

// SoftDelete marks a message deleted and replaces its body. It reports
// false when the message was already deleted.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, senderID int64, placeholder string) (models.Message, bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE messages SET deleted = TRUE, body=? WHERE id=? AND sender_id=? AND deleted = FALSE`),
		placeholder, messageID, senderID)
	if err != nil {
		return models.Message{}, false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, false, err
	}

	msg, err := r.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, false, err
	}
	if msg.Sender.ID != senderID {
		return models.Message{}, false, ErrNotMessageOwner
	}
	return msg, count > 0, nil
}

// UpsertReadMark records readAt for the reader, replacing any earlier mark.
func (r *MessageRepo) UpsertReadMark(ctx context.Context, messageID, readerID int64, readAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO message_reads (message_id, reader_id, read_at) VALUES (?, ?, ?)
        ON CONFLICT (message_id, reader_id) DO UPDATE SET read_at = EXCLUDED.read_at`), messageID, readerID, readAt)
	return err
}

// ListPage returns one page of a class log ordered newest first, and the
// total number of messages in the class. Deleted messages are included.
func (r *MessageRepo) ListPage(ctx context.Context, classID int64, limit, offset int) ([]models.Message, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM messages WHERE class_id=?`), classID); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.Message{}, 0, nil
	}

	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE class_id=?
        ORDER BY created_at DESC, id DESC
        LIMIT ? OFFSET ?`), classID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	msgs := lo.Map(rows, func(row messageRow, _ int) models.Message { return row.toModel() })
	msgs, err = r.attachReadMarks(ctx, r.db, msgs)
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// Stats counts non-deleted messages overall and since the given instant,
// and the distinct senders since that instant.
func (r *MessageRepo) Stats(ctx context.Context, classID int64, since time.Time) (models.ActivityStats, error) {
	var stats models.ActivityStats
	query := r.db.Rebind(`SELECT
            COUNT(*) AS total_messages,
            COUNT(CASE WHEN created_at >= ? THEN 1 END) AS messages_this_week,
            COUNT(DISTINCT CASE WHEN created_at >= ? THEN sender_id END) AS active_users_this_week
        FROM messages
        WHERE class_id=? AND deleted = FALSE`)
	err := r.db.GetContext(ctx, &stats, query, since, since, classID)
	return stats, err
}

type readRow struct {
	MessageID int64     `db:"message_id"`
	ReaderID  int64     `db:"reader_id"`
	ReadAt    time.Time `db:"read_at"`
}

func (r *MessageRepo) attachReadMarks(ctx context.Context, q sqlx.QueryerContext, msgs []models.Message) ([]models.Message, error) {
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := lo.Map(msgs, func(m models.Message, _ int) int64 { return m.ID })
	query, args, err := sqlx.In(`SELECT message_id, reader_id, read_at FROM message_reads WHERE message_id IN (?) ORDER BY read_at ASC`, ids)
	if err != nil {
		return nil, err
	}

	var reads []readRow
	if err := sqlx.SelectContext(ctx, q, &reads, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byMessage := lo.GroupBy(reads, func(rr readRow) int64 { return rr.MessageID })
	for i := range msgs {
		for _, rr := range byMessage[msgs[i].ID] {
			msgs[i].ReadMarks = append(msgs[i].ReadMarks, models.ReadMark{ReaderID: rr.ReaderID, ReadAt: rr.ReadAt})
		}
	}
	return msgs, nil
}
