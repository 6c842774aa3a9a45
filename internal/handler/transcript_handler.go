package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-academic-api/internal/service"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
	"github.com/noah-isme/uni-academic-api/pkg/response"
)

// TranscriptHandler exposes the derived statistics snapshot.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Get godoc
// @Summary Transcript snapshot for a student and academic year
// @Tags Transcripts
// @Produce json
// @Param id path string true "Student ID"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	academicYearID := c.Query("academicYearId")
	if academicYearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academicYearId is required"))
		return
	}
	transcript, err := h.transcripts.GetTranscript(c.Request.Context(), c.Param("id"), academicYearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}
