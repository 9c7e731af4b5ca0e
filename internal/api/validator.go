package api

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var usernameRegex = regexp.MustCompile(`^[а-яА-Яa-zA-Z0-9_-]+$`)

type Validator struct {
	validate *validator.Validate
}

// MustNewValidator returns the echo validator with the custom "username"
// rule. It panics if the rule cannot be registered.
func MustNewValidator() *Validator {
	v := validator.New()
	if err := v.RegisterValidation("username", validUsername); err != nil {
		panic("register username validation: " + err.Error())
	}
	return &Validator{validate: v}
}

func validUsername(fl validator.FieldLevel) bool {
	return usernameRegex.MatchString(fl.Field().String())
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}
