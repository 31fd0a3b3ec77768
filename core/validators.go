package core

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator
	initOnce   sync.Once

	// custom validation tags & texts
	slugTag   = "slug"
	slugText  = "{0} may only contain lowercase letters, digits, hyphens and underscores"
	slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)

	requiredTag  = "required"
	requiredText = "this field is required"
)

// NewValidator returns the shared validator, initialising it with english translations on first use.
func NewValidator() (*validator.Validate, ut.Translator) {
	initOnce.Do(func() {
		_en := en.New()
		uni := ut.New(_en, _en)
		translator, _ := uni.GetTranslator("en")
		validate := validator.New()
		InitValidators(validate, translator)
		Validate, Translator = validate, translator
	})
	return Validate, Translator
}

// InitValidators registers the translations, tag name func and global custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(slugTag, slugValidation)
	RegisterCustomTranslation(validate, translator, slugTag, slugText)
	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// slugValidation allows empty values; combine with "required" when needed.
func slugValidation(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || slugRegex.MatchString(s)
}
