package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	lessonKindTag    = "lessonkind"
	lessonKindText   = "invalid lesson kind"
	activityKindTag  = "activitykind"
	activityKindText = "invalid activity kind"
	genStatusTag     = "genstatus"
	genStatusText    = "invalid generation status"
)

// InitValidators registers the course validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(lessonKindTag, core.OneOfValidation(AllLessonKinds...))
	core.RegisterCustomTranslation(validate, translator, lessonKindTag, lessonKindText)

	_ = validate.RegisterValidation(activityKindTag, core.OneOfValidation(AllActivityKinds...))
	core.RegisterCustomTranslation(validate, translator, activityKindTag, activityKindText)

	_ = validate.RegisterValidation(genStatusTag, core.OneOfValidation(AllStatuses...))
	core.RegisterCustomTranslation(validate, translator, genStatusTag, genStatusText)
}
