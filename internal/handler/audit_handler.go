package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-academic-api/internal/models"
	"github.com/noah-isme/uni-academic-api/pkg/response"
)

type auditLister interface {
	ListRecent(ctx context.Context, entity string, limit int) ([]models.AuditLog, error)
}

// AuditHandler exposes the audit trail for administrative review.
type AuditHandler struct {
	logs auditLister
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(logs auditLister) *AuditHandler {
	return &AuditHandler{logs: logs}
}

// List godoc
// @Summary Recent audit entries, newest first
// @Tags Reference
// @Produce json
// @Param entity query string false "Filter by entity"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}
	logs, err := h.logs.ListRecent(c.Request.Context(), c.Query("entity"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
