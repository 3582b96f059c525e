package middleware

import (
	"github.com/gin-gonic/gin"

	"swapdesk/internal/handler/ping"
)

// Middleware 全局中间件，作为第一个Router装载
type Middleware struct{}

func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Load(g *gin.Engine) {
	g.Use(gin.Recovery())
	g.Use(RequestId())
	g.Use(Logger)
	g.Use(NoCache())
	g.Use(Options())
	g.Use(Secure())

	// health check
	g.GET("/ping", ping.Ping())
}
