package ws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"class-chat-service/internal/chat"
	"class-chat-service/internal/mocks"
	"class-chat-service/internal/models"
)

func startLiveServer(t *testing.T, svc *mocks.ChatServiceMock, auth *mocks.IdentityProviderMock) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := startHub(t, svc, DefaultConfig())
	r := gin.New()
	r.GET("/ws", NewChatWebSocketHandler(hub, auth, nil, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestLiveChannelRejectsMissingToken(t *testing.T) {
	url := startLiveServer(t, new(mocks.ChatServiceMock), new(mocks.IdentityProviderMock))

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLiveChannelRejectsInvalidToken(t *testing.T) {
	auth := new(mocks.IdentityProviderMock)
	auth.On("Authenticate", mock.Anything, "bad").Return(nil, fmt.Errorf("%w: expired", models.ErrInvalidToken))
	url := startLiveServer(t, new(mocks.ChatServiceMock), auth)

	header := http.Header{}
	header.Set("Authorization", "Bearer bad")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLiveChannelIdentityOutage(t *testing.T) {
	auth := new(mocks.IdentityProviderMock)
	auth.On("Authenticate", mock.Anything, "good").Return(nil, fmt.Errorf("identity service: %w", assert.AnError))
	url := startLiveServer(t, new(mocks.ChatServiceMock), auth)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=good", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLiveChannelJoinAndSend(t *testing.T) {
	svc := new(mocks.ChatServiceMock)
	auth := new(mocks.IdentityProviderMock)
	auth.On("Authenticate", mock.Anything, "good").Return(student, nil)
	svc.On("CanAccessClassChat", mock.Anything, student, int64(7)).Return(nil)
	svc.On("CanAccessClassChat", mock.Anything, student, int64(8)).Return(chat.ErrForbidden)
	svc.On("Append", mock.Anything, student, int64(7), models.Draft{Body: "hello"}).Return(models.Message{
		ID: 1, ClassID: 7, Sender: models.SenderFromIdentity(student), Body: "hello", Kind: models.KindText,
	}, nil).Once()
	url := startLiveServer(t, svc, auth)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send-message", "data": map[string]any{"class_id": 7, "message": "early"}}))
	env := readEnvelope(t, conn)
	assert.Equal(t, models.EventError, env.Event)
	assert.Contains(t, string(env.Data), `"code":"not_joined"`)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "join-class-chat", "data": map[string]any{"class_id": 8}}))
	env = readEnvelope(t, conn)
	assert.Equal(t, models.EventError, env.Event)
	assert.Contains(t, string(env.Data), `"code":"forbidden"`)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "join-class-chat", "data": map[string]any{"class_id": 7}}))
	assert.Equal(t, models.EventJoinedClassChat, readEnvelope(t, conn).Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "send-message", "data": map[string]any{"class_id": 7, "message": "hello"}}))
	env = readEnvelope(t, conn)
	require.Equal(t, models.EventNewMessage, env.Event)
	assert.Equal(t, "hello", messageOf(t, env).Body)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env = readEnvelope(t, conn)
	assert.Equal(t, models.EventError, env.Event)
	assert.Contains(t, string(env.Data), `"code":"validation"`)

	svc.AssertExpectations(t)
}
