package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"loanflow-server/internal/infrastructure/apiclients"
	"loanflow-server/internal/infrastructure/storage"
)

// HealthHandler reports downstream API and storage health.
type HealthHandler struct {
	apis    *apiclients.Clients
	storage *storage.LocalStorage
	log     zerolog.Logger
}

func NewHealthHandler(apis *apiclients.Clients, store *storage.LocalStorage, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		apis:    apis,
		storage: store,
		log:     log.With().Str("component", "health-handler").Logger(),
	}
}

// APIs checks every downstream dependency and reports circuit breaker
// state alongside.
func (h *HealthHandler) APIs(c *gin.Context) {
	ctx := c.Request.Context()

	apiHealth := h.apis.HealthCheck(ctx)
	allHealthy := true
	for _, health := range apiHealth {
		if !health.Healthy {
			allHealthy = false
			break
		}
	}

	storageStatus := "healthy"
	if err := h.storage.Health(ctx); err != nil {
		storageStatus = "unhealthy: " + err.Error()
		allHealthy = false
	}

	status := http.StatusOK
	overall := "healthy"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"success":          true,
		"status":           overall,
		"apis":             apiHealth,
		"storage":          storageStatus,
		"circuit_breakers": h.apis.BreakerMetrics(),
	})
}
