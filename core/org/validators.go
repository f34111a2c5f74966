package org

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darasa/core"
)

var (
	orgRoleTag  = "orgrole"
	orgRoleText = "invalid role"

	orgKindTag  = "orgkind"
	orgKindText = "invalid organization kind"
)

// InitValidators registers the organization validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(orgRoleTag, core.OneOfValidation(AllRoles...))
	core.RegisterCustomTranslation(validate, translator, orgRoleTag, orgRoleText)

	_ = validate.RegisterValidation(orgKindTag, core.OneOfValidation(AllKinds...))
	core.RegisterCustomTranslation(validate, translator, orgKindTag, orgKindText)
}
