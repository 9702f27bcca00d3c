package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"loanflow-server/internal/domain/history"
	historyrepo "loanflow-server/internal/infrastructure/repository/history"
	"loanflow-server/internal/interfaces/httpserver/responses"
	"loanflow-server/utils/platformerrors"
)

// HistoryHandler exposes processed application reporting.
type HistoryHandler struct {
	store historyrepo.Store
	log   zerolog.Logger
}

func NewHistoryHandler(store historyrepo.Store, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		store: store,
		log:   log.With().Str("component", "history-handler").Logger(),
	}
}

// Applications lists processed applications, newest first.
func (h *HistoryHandler) Applications(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", history.StatusApproved, history.StatusRejected, history.StatusPending:
	default:
		responses.Fail(c, http.StatusBadRequest, responses.CodeInvalidParameter, "status must be approved, rejected or pending")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			responses.Fail(c, http.StatusBadRequest, responses.CodeInvalidParameter, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	apps, err := h.store.List(c.Request.Context(), status, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list applications")
		responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to list applications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"applications": apps,
		"count":        len(apps),
	})
}

// Application returns one processed application by id.
func (h *HistoryHandler) Application(c *gin.Context) {
	app, err := h.store.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) || strings.Contains(err.Error(), "not found") {
			responses.Fail(c, http.StatusNotFound, responses.CodeInvalidParameter, "application not found")
			return
		}
		h.log.Error().Err(err).Msg("failed to get application")
		responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to get application")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "application": app})
}

// Stats aggregates application outcomes.
func (h *HistoryHandler) Stats(c *gin.Context) {
	summary, err := h.store.Summary(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to summarize applications")
		responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to summarize applications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": summary})
}
