package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-academic-api/internal/models"
	"github.com/noah-isme/uni-academic-api/internal/service"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
	"github.com/noah-isme/uni-academic-api/pkg/response"
)

// GradeHandler exposes the grade ledger endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// retakeRequest is the body for a retake submission.
type retakeRequest struct {
	Grade float64 `json:"grade"`
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param unitId query string false "Filter by teaching unit"
// @Param academicYearId query string false "Filter by academic year"
// @Param semester query string false "Filter by semester"
// @Param session query string false "Filter by session"
// @Param activeOnly query bool false "Only authoritative rows"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter := models.GradeFilter{
		StudentID:      c.Query("studentId"),
		UnitID:         c.Query("unitId"),
		AcademicYearID: c.Query("academicYearId"),
		Semester:       strings.ToUpper(c.Query("semester")),
		Session:        models.GradeSession(strings.ToUpper(c.Query("session"))),
		ActiveOnly:     c.Query("activeOnly") == "true",
	}
	grades, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Submit godoc
// @Summary Submit a normal-session grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.SubmitGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	var req service.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// BulkSubmit godoc
// @Summary Submit multiple grades, isolating per-item failures
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body []service.SubmitGradeRequest true "Grade entries"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkSubmit(c *gin.Context) {
	var items []service.SubmitGradeRequest
	if err := c.ShouldBindJSON(&items); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.grades.BulkSubmit(c.Request.Context(), items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Retake godoc
// @Summary Record a retake for a retake-eligible grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Prior grade ID"
// @Param payload body retakeRequest true "New score"
// @Success 201 {object} response.Envelope
// @Router /grades/{id}/retake [post]
func (h *GradeHandler) Retake(c *gin.Context) {
	var req retakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.RecordRetake(c.Request.Context(), c.Param("id"), req.Grade)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// History godoc
// @Summary Grade history for one ledger key, most recent first
// @Tags Grades
// @Produce json
// @Param studentId query string true "Student ID"
// @Param unitId query string true "Teaching unit ID"
// @Param academicYearId query string true "Academic year ID"
// @Param semester query string true "Semester"
// @Success 200 {object} response.Envelope
// @Router /grades/history [get]
func (h *GradeHandler) History(c *gin.Context) {
	key, ok := gradeKeyFromQuery(c)
	if !ok {
		return
	}
	grades, err := h.grades.History(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Active godoc
// @Summary The authoritative grade for one ledger key
// @Tags Grades
// @Produce json
// @Param studentId query string true "Student ID"
// @Param unitId query string true "Teaching unit ID"
// @Param academicYearId query string true "Academic year ID"
// @Param semester query string true "Semester"
// @Success 200 {object} response.Envelope
// @Router /grades/active [get]
func (h *GradeHandler) Active(c *gin.Context) {
	key, ok := gradeKeyFromQuery(c)
	if !ok {
		return
	}
	grade, err := h.grades.ActiveGrade(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

func gradeKeyFromQuery(c *gin.Context) (models.GradeKey, bool) {
	key := models.GradeKey{
		StudentID:      c.Query("studentId"),
		UnitID:         c.Query("unitId"),
		AcademicYearID: c.Query("academicYearId"),
		Semester:       strings.ToUpper(c.Query("semester")),
	}
	if key.StudentID == "" || key.UnitID == "" || key.AcademicYearID == "" || key.Semester == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId, unitId, academicYearId and semester are required"))
		return models.GradeKey{}, false
	}
	return key, true
}
