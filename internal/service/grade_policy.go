package service

import (
	"fmt"

	"github.com/noah-isme/uni-academic-api/internal/models"
	appErrors "github.com/noah-isme/uni-academic-api/pkg/errors"
)

// GradePolicy classifies a numeric score against a teaching unit's passing
// threshold. Scores at or above the threshold are VALID; scores at or above
// RetakeRatio times the threshold are RETAKE-eligible; anything lower is
// NON_VALID and the unit must be redone. Both boundaries are inclusive.
type GradePolicy struct {
	DefaultPassingGrade float64
	RetakeRatio         float64
}

// NewGradePolicy constructs a policy, falling back to the institutional
// defaults (60 passing, 0.7 retake ratio) for out-of-range values.
func NewGradePolicy(defaultPassingGrade, retakeRatio float64) GradePolicy {
	if defaultPassingGrade <= 0 || defaultPassingGrade > 100 {
		defaultPassingGrade = 60
	}
	if retakeRatio <= 0 || retakeRatio >= 1 {
		retakeRatio = 0.7
	}
	return GradePolicy{DefaultPassingGrade: defaultPassingGrade, RetakeRatio: retakeRatio}
}

// Classify maps a score to its grade status. Pure and deterministic.
func (p GradePolicy) Classify(score, passingGrade float64) (models.GradeStatus, error) {
	if passingGrade <= 0 {
		return "", appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInvalidScore, fmt.Sprintf("passing grade %.2f must be positive", passingGrade)),
			map[string]interface{}{"passingGrade": passingGrade},
		)
	}
	if score < 0 || score > 100 {
		return "", appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInvalidScore, fmt.Sprintf("score %.2f outside [0,100]", score)),
			map[string]interface{}{"score": score},
		)
	}
	switch {
	case score >= passingGrade:
		return models.GradeStatusValid, nil
	case score >= p.RetakeRatio*passingGrade:
		return models.GradeStatusRetake, nil
	default:
		return models.GradeStatusNonValid, nil
	}
}

// PassingGradeFor resolves the threshold for a unit, using the institutional
// default when the unit does not carry its own.
func (p GradePolicy) PassingGradeFor(unit *models.TeachingUnit) float64 {
	if unit != nil && unit.PassingGrade != nil && *unit.PassingGrade > 0 {
		return *unit.PassingGrade
	}
	return p.DefaultPassingGrade
}
