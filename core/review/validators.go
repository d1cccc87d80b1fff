package review

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/internly/internly/core"
)

var (
	kindTag  = "submissionkind"
	kindText = "invalid submission kind"

	subtypeTag  = "submissionsubtype"
	subtypeText = "invalid subtype for this kind"

	decisionTag  = "decision"
	decisionText = "decision must be approved or rejected"

	stateTag  = "submissionstate"
	stateText = "invalid submission state"
)

func init() {
	InitValidators(core.Validate, core.Translator)
}

// InitValidators registers the submission validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(kindTag, func(fl validator.FieldLevel) bool {
		return Kind(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, kindTag, kindText)

	_ = validate.RegisterValidation(decisionTag, func(fl validator.FieldLevel) bool {
		return State(fl.Field().String()).Terminal()
	})
	core.RegisterCustomTranslation(validate, translator, decisionTag, decisionText)

	_ = validate.RegisterValidation(stateTag, func(fl validator.FieldLevel) bool {
		return State(fl.Field().String()).Valid()
	})
	core.RegisterCustomTranslation(validate, translator, stateTag, stateText)

	validate.RegisterStructValidation(newSubmissionValidation, NewSubmission{})
	core.RegisterCustomTranslation(validate, translator, subtypeTag, subtypeText)
}

// newSubmissionValidation checks that the subtype belongs to the kind.
func newSubmissionValidation(sl validator.StructLevel) {
	ns, ok := sl.Current().Interface().(NewSubmission)
	if !ok || !ns.Kind.Valid() {
		return
	}
	if !SubtypeOf(ns.Kind, ns.Subtype) {
		sl.ReportError(ns.Subtype, "subtype", "Subtype", subtypeTag, "")
	}
}
