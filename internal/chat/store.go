package chat

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"class-chat-service/internal/models"
	"class-chat-service/internal/repositories"
)

// Store applies the message rules on top of the repository.
type Store struct {
	repo repositories.MessageRepository
	gate *Gate
	now  func() time.Time
}

// NewStore constructs a Store. The gate is consulted for read marks.
func NewStore(repo repositories.MessageRepository, gate *Gate, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, gate: gate, now: now}
}

// Append validates and persists a new message authored by sender.
func (s *Store) Append(ctx context.Context, sender models.Identity, classID int64, draft models.Draft) (models.Message, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.repo.CreateMessage(ctx, models.Message{
		ClassID:        classID,
		Sender:         models.SenderFromIdentity(sender),
		Body:           draft.Body,
		Kind:           draft.Kind,
		AttachmentURL:  draft.AttachmentURL,
		AttachmentName: draft.AttachmentName,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return models.Message{}, mapRepoErr(err)
	}
	return msg, nil
}

// Edit replaces the body of a live message owned by requesterID.
func (s *Store) Edit(ctx context.Context, messageID, requesterID int64, newBody string) (models.Message, error) {
	if err := validateBody(newBody, true); err != nil {
		return models.Message{}, err
	}
	msg, err := s.repo.UpdateBody(ctx, messageID, requesterID, newBody, s.now().UTC())
	if err != nil {
		return models.Message{}, mapRepoErr(err)
	}
	return msg, nil
}

// Delete soft-deletes a message owned by requesterID. changed is false when
// the message was already deleted.
func (s *Store) Delete(ctx context.Context, messageID, requesterID int64) (msg models.Message, changed bool, err error) {
	msg, changed, err = s.repo.SoftDelete(ctx, messageID, requesterID, models.DeletedPlaceholder)
	if err != nil {
		return models.Message{}, false, mapRepoErr(err)
	}
	return msg, changed, nil
}

// MarkRead records that reader has read the message. The reader must have
// access to the message's class.
func (s *Store) MarkRead(ctx context.Context, reader models.Identity, messageID int64) (models.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, mapRepoErr(err)
	}
	if err := s.gate.CanAccessClassChat(ctx, reader, msg.ClassID); err != nil {
		return models.Message{}, err
	}
	if err := s.repo.UpsertReadMark(ctx, messageID, reader.ID, s.now().UTC()); err != nil {
		return models.Message{}, mapRepoErr(err)
	}
	return msg, nil
}

// ClassOf returns the class a message belongs to. A message never moves
// between classes.
func (s *Store) ClassOf(ctx context.Context, messageID int64) (int64, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return 0, mapRepoErr(err)
	}
	return msg.ClassID, nil
}

// Page returns one page of a class log, newest first. Deleted messages are
// included with their placeholder body.
func (s *Store) Page(ctx context.Context, classID int64, page, pageSize int) (models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	offset, err := pageOffset(page, pageSize)
	if err != nil {
		return models.MessagePage{}, err
	}

	msgs, total, err := s.repo.ListPage(ctx, classID, pageSize, offset)
	if err != nil {
		return models.MessagePage{}, mapRepoErr(err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return models.MessagePage{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

// pageOffset rejects pages whose offset, plus one page, would not fit in an int.
func pageOffset(page, pageSize int) (int, error) {
	if page-1 > (math.MaxInt-pageSize)/pageSize {
		return 0, fmt.Errorf("%w: page %d is out of range", ErrValidation, page)
	}
	return (page - 1) * pageSize, nil
}

func normalizeDraft(draft models.Draft) (models.Draft, error) {
	if draft.Kind == "" {
		draft.Kind = models.KindText
	}
	if !draft.Kind.Valid() {
		return draft, fmt.Errorf("%w: unknown message kind %q", ErrValidation, draft.Kind)
	}

	if draft.Kind == models.KindText {
		draft.AttachmentURL = ""
		draft.AttachmentName = ""
		return draft, validateBody(draft.Body, true)
	}

	if strings.TrimSpace(draft.AttachmentURL) == "" {
		return draft, fmt.Errorf("%w: %s messages need an attachment_url", ErrValidation, draft.Kind)
	}
	return draft, validateBody(draft.Body, false)
}

func validateBody(body string, required bool) error {
	if required && strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: message is not valid UTF-8", ErrValidation)
	}
	if utf8.RuneCountInString(body) > models.MaxBodyLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, models.MaxBodyLength)
	}
	return nil
}
