package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"class-chat-service/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateBody(ctx context.Context, messageID, senderID int64, body string, editedAt time.Time) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, body, editedAt)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID, senderID int64, placeholder string) (models.Message, bool, error) {
	args := m.Called(ctx, messageID, senderID, placeholder)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *MessageRepositoryMock) UpsertReadMark(ctx context.Context, messageID, readerID int64, readAt time.Time) error {
	args := m.Called(ctx, messageID, readerID, readAt)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, classID int64, limit, offset int) ([]models.Message, int, error) {
	args := m.Called(ctx, classID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) Stats(ctx context.Context, classID int64, since time.Time) (models.ActivityStats, error) {
	args := m.Called(ctx, classID, since)
	var stats models.ActivityStats
	if val := args.Get(0); val != nil {
		stats = val.(models.ActivityStats)
	}
	return stats, args.Error(1)
}

type ClassRepositoryMock struct {
	mock.Mock
}

func (m *ClassRepositoryMock) GetClass(ctx context.Context, classID int64) (models.Class, error) {
	args := m.Called(ctx, classID)
	var class models.Class
	if val := args.Get(0); val != nil {
		class = val.(models.Class)
	}
	return class, args.Error(1)
}

func (m *ClassRepositoryMock) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	args := m.Called(ctx, classID, studentID)
	return args.Bool(0), args.Error(1)
}

func (m *ClassRepositoryMock) CreateClass(ctx context.Context, universityID int64, name string, teacherID int64, studentIDs []int64) (models.Class, error) {
	args := m.Called(ctx, universityID, name, teacherID, studentIDs)
	var class models.Class
	if val := args.Get(0); val != nil {
		class = val.(models.Class)
	}
	return class, args.Error(1)
}

func (m *ClassRepositoryMock) SetEnrollmentStatus(ctx context.Context, classID, studentID int64, status string) error {
	args := m.Called(ctx, classID, studentID, status)
	return args.Error(0)
}

// ChatServiceMock covers the chat operations used by the live channel and
// REST handlers.
type ChatServiceMock struct {
	mock.Mock
}

func (m *ChatServiceMock) CanAccessClassChat(ctx context.Context, identity models.Identity, classID int64) error {
	args := m.Called(ctx, identity, classID)
	return args.Error(0)
}

func (m *ChatServiceMock) Append(ctx context.Context, sender models.Identity, classID int64, draft models.Draft) (models.Message, error) {
	args := m.Called(ctx, sender, classID, draft)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) Edit(ctx context.Context, editor models.Identity, messageID int64, body string) (models.Message, error) {
	args := m.Called(ctx, editor, messageID, body)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) Delete(ctx context.Context, requester models.Identity, messageID int64) (models.Message, bool, error) {
	args := m.Called(ctx, requester, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ChatServiceMock) MarkRead(ctx context.Context, reader models.Identity, messageID int64) (models.Message, error) {
	args := m.Called(ctx, reader, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) MessageClass(ctx context.Context, messageID int64) (int64, error) {
	args := m.Called(ctx, messageID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ChatServiceMock) History(ctx context.Context, identity models.Identity, classID int64, page, limit int) (models.HistoryPage, error) {
	args := m.Called(ctx, identity, classID, page, limit)
	var out models.HistoryPage
	if val := args.Get(0); val != nil {
		out = val.(models.HistoryPage)
	}
	return out, args.Error(1)
}

func (m *ChatServiceMock) Stats(ctx context.Context, identity models.Identity, classID int64) (models.ActivityStats, error) {
	args := m.Called(ctx, identity, classID)
	var out models.ActivityStats
	if val := args.Get(0); val != nil {
		out = val.(models.ActivityStats)
	}
	return out, args.Error(1)
}

type IdentityProviderMock struct {
	mock.Mock
}

func (m *IdentityProviderMock) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	var identity models.Identity
	if val := args.Get(0); val != nil {
		identity = val.(models.Identity)
	}
	return identity, args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) Joined(ctx context.Context, classID, userID int64) error {
	args := m.Called(ctx, classID, userID)
	return args.Error(0)
}

func (m *PresenceMock) Left(ctx context.Context, classID, userID int64) error {
	args := m.Called(ctx, classID, userID)
	return args.Error(0)
}

func (m *PresenceMock) Online(ctx context.Context, classID int64) ([]int64, error) {
	args := m.Called(ctx, classID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}
