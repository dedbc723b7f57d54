package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type fixedCounts struct{ sessions, online int }

func (f fixedCounts) Count() int { return f.sessions }
func (f fixedCounts) OnlineCount() int { return f.online }

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := gin.New()
	ok.GET("/healthz", Health(pingFunc(func(context.Context) error { return nil }), fixedCounts{3, 2}))
	rec := serve(ok, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":3,"online_users":2}`, rec.Body.String())

	down := gin.New()
	down.GET("/healthz", Health(pingFunc(func(context.Context) error { return assert.AnError }), fixedCounts{}))
	rec = serve(down, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}
