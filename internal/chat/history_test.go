package chat

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"class-chat-service/internal/mocks"
	"class-chat-service/internal/models"
)

func newTestHistory() (*History, *mocks.MessageRepositoryMock, *mocks.ClassRepositoryMock) {
	repo := new(mocks.MessageRepositoryMock)
	classes := new(mocks.ClassRepositoryMock)
	gate := NewGate(classes, classes)
	return NewHistory(gate, NewStore(repo, gate, clock)), repo, classes
}

func TestHistoryDeniedNeverReadsStore(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	classes.On("IsEnrolled", mock.Anything, int64(7), outsider.ID).Return(false, nil)

	_, err := history.Get(context.Background(), outsider, 7, 1, 50)
	assert.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryReversesPage(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	newestFirst := []models.Message{{ID: 3}, {ID: 2}, {ID: 1}}
	repo.On("ListPage", mock.Anything, int64(7), 50, 0).Return(newestFirst, 3, nil).Once()

	page, err := history.Get(context.Background(), teacher, 7, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, int64(1), page.Messages[0].ID)
	assert.Equal(t, int64(3), page.Messages[2].ID)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 50, page.Limit)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Pages)
	assert.Equal(t, int64(3), newestFirst[0].ID, "store page must not be reordered in place")
}

func TestHistoryClampsPaging(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	repo.On("ListPage", mock.Anything, int64(7), MaxPageSize, 0).Return([]models.Message{}, 450, nil).Once()

	page, err := history.Get(context.Background(), teacher, 7, -4, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, MaxPageSize, page.Limit)
	assert.Equal(t, 3, page.Pages)
	repo.AssertExpectations(t)
}

func TestHistoryRejectsOverflowingPage(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)

	_, err := history.Get(context.Background(), teacher, 7, math.MaxInt/50+2, 50)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = history.Get(context.Background(), teacher, 7, math.MaxInt, MaxPageSize)
	assert.ErrorIs(t, err, ErrValidation)
	repo.AssertNotCalled(t, "ListPage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryPageBeyondEndIsEmpty(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	repo.On("ListPage", mock.Anything, int64(7), 50, 49_999_950).Return([]models.Message{}, 3, nil).Once()

	page, err := history.Get(context.Background(), teacher, 7, 1_000_000, 50)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, 1_000_000, page.Page)
	assert.Equal(t, 1, page.Pages)
	repo.AssertExpectations(t)
}

func TestHistoryEmptyClass(t *testing.T) {
	history, repo, classes := newTestHistory()
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	repo.On("ListPage", mock.Anything, int64(7), 50, 0).Return([]models.Message{}, 0, nil).Once()

	page, err := history.Get(context.Background(), teacher, 7, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.NotNil(t, page.Messages)
	assert.Equal(t, 0, page.Pages)
}

func TestStatsUsesTrailingWeek(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	classes := new(mocks.ClassRepositoryMock)
	stats := NewStats(NewGate(classes, classes), repo, clock)
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	want := models.ActivityStats{TotalMessages: 12, MessagesThisWeek: 4, ActiveUsersThisWeek: 2}
	repo.On("Stats", mock.Anything, int64(7), fixedNow.Add(-StatsWindow)).Return(want, nil).Once()

	got, err := stats.Get(context.Background(), teacher, 7)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestStatsGated(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	classes := new(mocks.ClassRepositoryMock)
	stats := NewStats(NewGate(classes, classes), repo, clock)
	classes.On("GetClass", mock.Anything, int64(7)).Return(physics, nil)
	classes.On("IsEnrolled", mock.Anything, int64(7), outsider.ID).Return(false, nil)

	_, err := stats.Get(context.Background(), outsider, 7)
	assert.ErrorIs(t, err, ErrForbidden)
	repo.AssertNotCalled(t, "Stats", mock.Anything, mock.Anything, mock.Anything)
}
