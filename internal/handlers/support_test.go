package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat/internal/auth"
	"support-chat/internal/middleware"
	"support-chat/internal/mocks"
	"support-chat/internal/models"
	"support-chat/internal/presence"
	"support-chat/internal/repositories"
	"support-chat/internal/ws"
)

var testUser = auth.Principal{UserID: "u1", Role: models.RoleUser, Name: "Ursula", Email: "Ursula@Example.com"}

func withPrincipal(p auth.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetPrincipal(c, p)
		c.Next()
	}
}

func newTestHub() *ws.Hub {
	return ws.NewHub(presence.NewRegistry(), ws.NewBuffer(10, time.Hour), nil, nil)
}

func setupSupportRouter(handler *SupportHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withPrincipal(testUser))
	r.GET("/messages", handler.GetMessages)
	r.POST("/messages", handler.PostMessage)
	r.GET("/messages/unread", handler.GetUnread)
	r.GET("/messages/broadcasts", handler.GetBroadcasts)
	return r
}

func strPtr(s string) *string { return &s }

func TestGetMessagesWithoutConversation(t *testing.T) {
	threads := new(mocks.ThreadRepositoryMock)
	handler := NewSupportHandler(threads, new(mocks.ConversationRepositoryMock), nil, nil)
	router := setupSupportRouter(handler)

	identity := models.Identity{UserID: "u1", Email: "ursula@example.com"}
	threads.On("ConsumeUserThread", mock.Anything, identity).Return(models.ConversationThread{Messages: []models.Message{}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversation *models.Conversation `json:"conversation"`
		Messages     []models.Message     `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Nil(t, resp.Conversation)
	assert.NotNil(t, resp.Messages)
	assert.Empty(t, resp.Messages)
	threads.AssertExpectations(t)
}

func TestGetMessagesStorageError(t *testing.T) {
	threads := new(mocks.ThreadRepositoryMock)
	handler := NewSupportHandler(threads, nil, nil, nil)
	router := setupSupportRouter(handler)

	threads.On("ConsumeUserThread", mock.Anything, mock.Anything).Return(nil, &repositories.StorageError{Op: "consume", Err: assert.AnError}).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	threads.AssertExpectations(t)
}

func TestPostMessageSuccess(t *testing.T) {
	threads := new(mocks.ThreadRepositoryMock)
	hub := newTestHub()
	handler := NewSupportHandler(threads, nil, nil, hub)
	router := setupSupportRouter(handler)

	conv := models.Conversation{ID: "conv1", UserID: strPtr("u1")}
	msg := models.Message{ID: "m1", ConversationID: strPtr("conv1"), SenderRole: models.RoleUser, Body: "Hello"}
	threads.On("SendFromUser", mock.Anything, mock.AnythingOfType("models.Identity"), "Hello").
		Return(repositories.SendResult{Conversation: conv, Message: msg, Created: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"message":"Hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Message             models.Message `json:"message"`
		ConversationCreated bool           `json:"conversationCreated"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "m1", resp.Message.ID)
	assert.Equal(t, models.RoleUser, resp.Message.SenderRole)
	assert.True(t, resp.ConversationCreated)
	threads.AssertExpectations(t)
}

func TestPostMessageValidation(t *testing.T) {
	threads := new(mocks.ThreadRepositoryMock)
	handler := NewSupportHandler(threads, nil, nil, nil)
	router := setupSupportRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	threads.On("SendFromUser", mock.Anything, mock.Anything, "   ").Return(nil, repositories.ErrEmptyBody).Once()

	req = httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"message":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	threads.AssertExpectations(t)
}

func TestGetUnread(t *testing.T) {
	convs := new(mocks.ConversationRepositoryMock)
	handler := NewSupportHandler(nil, convs, nil, nil)
	router := setupSupportRouter(handler)

	convs.On("FindByIdentity", mock.Anything, mock.Anything).Return(models.Conversation{ID: "conv1", UnreadCount: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 1, resp["unreadCount"])
	convs.AssertExpectations(t)
}

func TestGetUnreadWithoutConversation(t *testing.T) {
	convs := new(mocks.ConversationRepositoryMock)
	handler := NewSupportHandler(nil, convs, nil, nil)
	router := setupSupportRouter(handler)

	convs.On("FindByIdentity", mock.Anything, mock.Anything).Return(nil, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/unread", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unreadCount":0}`, rec.Body.String())
}

func TestGetBroadcasts(t *testing.T) {
	msgs := new(mocks.MessageRepositoryMock)
	handler := NewSupportHandler(nil, nil, msgs, nil)
	router := setupSupportRouter(handler)

	msgs.On("ListBroadcasts", mock.Anything, 10).Return([]models.Message{{ID: "b1", IsBroadcast: true}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/broadcasts?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Broadcasts []models.Message `json:"broadcasts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Broadcasts, 1)
	msgs.AssertExpectations(t)

	req = httptest.NewRequest(http.MethodGet, "/messages/broadcasts?limit=abc", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
