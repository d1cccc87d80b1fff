package review

import (
	"fmt"
	"math"

	"github.com/internly/internly/core"
)

// ComputeScore maps the weighted mean of the rubric scores onto a 0-100 percentage,
// rounded to one decimal, half to even. Weights are normalised by their total.
func ComputeScore(criteria []Criterion) (float64, error) {
	if len(criteria) == 0 {
		return 0, core.NewValidationError(
			ErrValidationFailed,
			core.FieldError{Field: "criteria", Error: "at least one criterion is required"},
		)
	}

	var (
		flds               []core.FieldError
		totalWeight, total float64
	)
	for i, c := range criteria {
		if !(c.Weight > 0) || math.IsInf(c.Weight, 1) {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("criteria[%d].weight", i),
				Error: "weight must be greater than 0",
			})
		}
		if !(c.Score >= 0 && c.Score <= MaxCriterionScore) {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("criteria[%d].score", i),
				Error: fmt.Sprintf("score must be between 0 and %g", MaxCriterionScore),
			})
		}
		totalWeight += c.Weight
		total += c.Score * c.Weight
	}
	if len(flds) > 0 {
		return 0, core.NewValidationError(ErrValidationFailed, flds...)
	}

	pct := total / totalWeight / MaxCriterionScore * 100
	if math.IsInf(totalWeight, 0) || math.IsInf(total, 0) || math.IsNaN(pct) {
		return 0, core.NewValidationError(
			ErrValidationFailed,
			core.FieldError{Field: "criteria", Error: "weights are too large to be combined"},
		)
	}
	return math.RoundToEven(pct*10) / 10, nil
}
