package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/illmade-knight/go-sensorflow/pkg/cache"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/rs/zerolog"
)

// RegisterInput is the body of POST /register/:feature.
type RegisterInput struct {
	UUID           string `json:"uuid" binding:"required"`
	Mac            string `json:"mac"`
	Manufacturer   string `json:"manufacturer"`
	Model          string `json:"model"`
	ProfileOwnerID string `json:"profileOwnerId"`
	APIToken       string `json:"apiToken" binding:"required"`
}

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Controller serves sensor registration and value lookup.
type Controller struct {
	store  sensorstore.Store
	values cache.Fetcher[string, float64]
	router *sensors.Router
	logger zerolog.Logger
}

// NewController builds a Controller. values is the lookup chain for GET
// /sensors/:feature/:uuid; pass NewValueSource(store) to read the store directly.
func NewController(store sensorstore.Store, values cache.Fetcher[string, float64], router *sensors.Router, logger zerolog.Logger) *Controller {
	if values == nil {
		values = NewValueSource(store)
	}
	if router == nil {
		router = sensors.DefaultRouter()
	}
	return &Controller{
		store:  store,
		values: values,
		router: router,
		logger: logger.With().Str("component", "RegistryController").Logger(),
	}
}

// RegisterRoutes registers the registry routes with Gin.
func (c *Controller) RegisterRoutes(router *gin.Engine) {
	router.GET("/keepalive", c.KeepAlive)
	router.POST("/register/:feature", c.Register)
	router.GET("/sensors/:feature/:uuid", c.Value)
}

// KeepAlive answers liveness probes from devices.
func (c *Controller) KeepAlive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"alive": true})
}

// Register inserts a new sensor record for the path's feature.
func (c *Controller) Register(ctx *gin.Context) {
	feature := ctx.Param("feature")
	if _, err := c.router.Route(feature); err != nil {
		abortWithError(ctx, http.StatusBadRequest, "unknown feature "+feature)
		return
	}

	var input RegisterInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		c.logger.Debug().Err(err).Str("feature", feature).Msg("Rejecting registration body.")
		abortWithError(ctx, http.StatusBadRequest, "invalid input")
		return
	}

	record, err := c.store.Register(ctx.Request.Context(), feature, sensorstore.SensorRecord{
		UUID:           input.UUID,
		Mac:            input.Mac,
		Manufacturer:   input.Manufacturer,
		Model:          input.Model,
		ProfileOwnerID: input.ProfileOwnerID,
		APIToken:       input.APIToken,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("feature", feature).Str("uuid", input.UUID).Msg("Failed to register sensor.")
		abortWithError(ctx, http.StatusInternalServerError, "cannot register sensor")
		return
	}

	c.logger.Info().Str("feature", feature).Str("uuid", record.UUID).Str("id", record.ID).Msg("Sensor registered.")
	ctx.JSON(http.StatusOK, gin.H{"id": record.ID})
}

// Value returns the latest stored value of a sensor.
func (c *Controller) Value(ctx *gin.Context) {
	feature := ctx.Param("feature")
	if _, err := c.router.Route(feature); err != nil {
		abortWithError(ctx, http.StatusBadRequest, "unknown feature "+feature)
		return
	}

	value, err := c.values.Fetch(ctx.Request.Context(), ValueKey(feature, ctx.Param("uuid")))
	switch {
	case errors.Is(err, sensors.ErrNotFound):
		abortWithError(ctx, http.StatusNotFound, "sensor not found")
		return
	case err != nil:
		c.logger.Error().Err(err).Str("feature", feature).Msg("Failed to read sensor value.")
		abortWithError(ctx, http.StatusInternalServerError, "cannot read sensor value")
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"value": value})
}

func abortWithError(ctx *gin.Context, code int, message string) {
	ctx.AbortWithStatusJSON(code, APIError{Message: message, Code: code})
}

// ValueKey is the cache key for a sensor's value.
func ValueKey(feature, uuid string) string {
	return feature + "/" + uuid
}

// NewValueSource reads values straight from the store. It is the bottom of the lookup
// chain.
func NewValueSource(store sensorstore.Store) cache.Fetcher[string, float64] {
	return cache.FetcherFunc[string, float64](func(ctx context.Context, key string) (float64, error) {
		feature, uuid, ok := strings.Cut(key, "/")
		if !ok {
			return 0, fmt.Errorf("%w: malformed value key %q", sensors.ErrNotFound, key)
		}
		record, err := store.Get(ctx, feature, uuid)
		if err != nil {
			return 0, err
		}
		return record.Value, nil
	})
}
