package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-academic-api/internal/models"
	"github.com/noah-isme/uni-academic-api/pkg/response"
)

type facultyLister interface {
	List(ctx context.Context) ([]models.Faculty, error)
}

type academicYearLister interface {
	List(ctx context.Context) ([]models.AcademicYear, error)
}

type teachingUnitLister interface {
	List(ctx context.Context) ([]models.TeachingUnit, error)
}

type studentLister interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

// ReferenceHandler exposes read-only lookups for the reference entities the
// enrollment and grade workflows point at. These entities are administered
// elsewhere; this surface only serves pickers and display needs.
type ReferenceHandler struct {
	faculties facultyLister
	years     academicYearLister
	units     teachingUnitLister
	students  studentLister
}

// NewReferenceHandler constructs ReferenceHandler.
func NewReferenceHandler(faculties facultyLister, years academicYearLister, units teachingUnitLister, students studentLister) *ReferenceHandler {
	return &ReferenceHandler{faculties: faculties, years: years, units: units, students: students}
}

// Faculties godoc
// @Summary List faculties
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /faculties [get]
func (h *ReferenceHandler) Faculties(c *gin.Context) {
	faculties, err := h.faculties.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculties, nil)
}

// AcademicYears godoc
// @Summary List academic years
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *ReferenceHandler) AcademicYears(c *gin.Context) {
	years, err := h.years.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// TeachingUnits godoc
// @Summary List teaching units
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /teaching-units [get]
func (h *ReferenceHandler) TeachingUnits(c *gin.Context) {
	units, err := h.units.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, units, nil)
}

// Students godoc
// @Summary List students
// @Tags Reference
// @Produce json
// @Param search query string false "Name or matric number"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *ReferenceHandler) Students(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = c.Query("search")
	filter.Status = models.StudentStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	students, total, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	response.JSON(c, http.StatusOK, students, &models.Pagination{Page: page, PageSize: size, TotalCount: total})
}
