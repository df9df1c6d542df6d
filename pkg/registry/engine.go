package registry

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the per-request id, generated when the client sends none.
const RequestIDHeader = "X-Request-ID"

// NewEngine returns a gin engine with panic recovery, zerolog request logging and a JSON
// 404 for unknown routes.
func NewEngine(logger zerolog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger.With().Str("component", "RegistryHTTP").Logger()))
	engine.NoRoute(func(ctx *gin.Context) {
		abortWithError(ctx, http.StatusNotFound, "route not found")
	})
	return engine
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Header(RequestIDHeader, requestID)

		ctx.Next()

		logger.Info().
			Str("request_id", requestID).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Handled request.")
	}
}
