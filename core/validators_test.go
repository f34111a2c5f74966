package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func newTestValidator(t *testing.T) (*validator.Validate, ut.Translator) {
	t.Helper()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)
	return validate, translator
}

func TestSlugValidation(t *testing.T) {
	validate, translator := newTestValidator(t)

	type payload struct {
		Slug string `json:"slug" validate:"required,slug"`
	}
	tests := []struct {
		slug    string
		wantErr string
	}{
		{slug: "intro-to-go"},
		{slug: "go2"},
		{slug: "", wantErr: "this field is required"},
		{slug: "Intro", wantErr: slugText},
		{slug: "intro--go", wantErr: slugText},
		{slug: "-intro", wantErr: slugText},
	}
	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			err := validate.Struct(payload{Slug: tt.slug})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if assert.True(t, ok, "want validator.ValidationErrors, got %v", err) {
				assert.Equal(t, tt.wantErr, vErrs[0].Translate(translator))
			}
		})
	}
}

func TestOneOfValidation(t *testing.T) {
	validate, _ := newTestValidator(t)
	_ = validate.RegisterValidation("color", OneOfValidation("red", "blue"))

	type payload struct {
		Color  string   `json:"color" validate:"omitempty,color"`
		Colors []string `json:"colors" validate:"omitempty,color"`
	}
	assert.NoError(t, validate.Struct(payload{Color: "red", Colors: []string{"blue", "red"}}))
	assert.Error(t, validate.Struct(payload{Color: "green"}))
	assert.Error(t, validate.Struct(payload{Colors: []string{"blue", "green"}}))
}
