package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-chat/internal/mocks"
	"support-chat/internal/telemetry"
	"support-chat/internal/ws"
)

type statsStub struct{ stats ws.Stats }

func (s statsStub) Stats() ws.Stats { return s.stats }

func TestDebugRealtimeStats(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.support", mock.Anything, mock.Anything).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.support", "support-chat", "test")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withPrincipal(testAdmin))
	RegisterDebugRoutes(r, statsStub{stats: ws.Stats{
		Online:    map[string]int{"admin": 1, "user": 2},
		Rooms:     map[ws.Room]int{ws.AdminRoom: 1},
		Buffered:  map[ws.Room]int{ws.AdminRoom: 3},
		Published: 3,
	}}, emitter, true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/realtime", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online":{"admin":1,"user":2},"rooms":{"admin-room":1},"buffered":{"admin-room":3},"publishedIds":3}`, rec.Body.String())
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, statsStub{}, nil, false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/realtime", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
