package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/telemetry"
)

type presenceStub struct {
	users    []int64
	sessions int
}

func (p presenceStub) Count() int { return p.sessions }

func (p presenceStub) OnlineCount() int { return len(p.users) }

func (p presenceStub) OnlineUsers() []int64 { return p.users }

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, presenceStub{}, false)

	assert.Equal(t, http.StatusNotFound, serve(r, "/debug/audit-test").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, "/debug/presence").Code)
}

func TestDebugAuditTestEmitsCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(publisher, "audit.logs", "messenger-service", "test", zerolog.Nop())
	publisher.On("Publish", mock.Anything, "audit.logs", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID != nil && *env.UserID == 5
	}), mock.Anything).Return(nil).Once()

	r := gin.New()
	authenticated := func(c *gin.Context) {
		c.Set("userID", int64(5))
		c.Next()
	}
	RegisterDebugRoutes(r, emitter, nil, true, authenticated)

	assert.Equal(t, http.StatusOK, serve(r, "/debug/audit-test").Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesRunMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deny := func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
	}
	RegisterDebugRoutes(r, nil, presenceStub{}, true, deny)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/debug/audit-test").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/debug/presence").Code)
}

func TestDebugPresenceSnapshot(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, presenceStub{users: []int64{1, 4}, sessions: 3}, true)

	rec := serve(r, "/debug/presence")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OnlineUsers []int64 `json:"online_users"`
		Sessions    int     `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []int64{1, 4}, body.OnlineUsers)
	assert.Equal(t, 3, body.Sessions)
}

func TestDebugPresenceEmpty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, presenceStub{}, true)

	rec := serve(r, "/debug/presence")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online_users":[],"sessions":0}`, rec.Body.String())
}
