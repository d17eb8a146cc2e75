package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/task-manager/internal/apperror"
)

// Field rules for user accounts.
const (
	MinPasswordLength = 7
	// MaxPasswordBytes matches bcrypt's input limit.
	MaxPasswordBytes = 72
	MaxNameLength    = 100
)

// inputFields holds normalized client-supplied fields. Validation rules
// live in the struct tags; field names in errors come from the json tags.
type inputFields struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"min=7,bcryptsize,nopassword"`
	Age      int    `json:"age" validate:"gte=0"`
	Desc     string `json:"description" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	// bcrypt silently truncates longer input, so the limit is in bytes.
	mustRegister(v, "bcryptsize", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPasswordBytes
	})
	mustRegister(v, "nopassword", func(fl validator.FieldLevel) bool {
		return !strings.Contains(strings.ToLower(fl.Field().String()), "password")
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// checkFields validates only the named struct fields of f.
func checkFields(f *inputFields, fields ...string) error {
	err := validate.StructPartial(f, fields...)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.Internal("Unable to validate input", err)
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() + ":" + fe.Tag() {
	case "name:required":
		return "Name is required"
	case "name:max":
		return fmt.Sprintf("Name must be %d characters or less", MaxNameLength)
	case "email:required":
		return "Email is required"
	case "email:email":
		return "Email is invalid"
	case "password:min":
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	case "password:bcryptsize":
		return fmt.Sprintf("Password must be %d bytes or fewer", MaxPasswordBytes)
	case "password:nopassword":
		return `Password cannot contain "password"`
	case "age:gte":
		return "Age must be a positive number"
	case "description:required":
		return "Description is required"
	}
	return fe.Field() + " is invalid"
}

// normalizeName trims and checks a display name.
func normalizeName(name string) (string, error) {
	f := inputFields{Name: strings.TrimSpace(name)}
	return f.Name, checkFields(&f, "Name")
}

// normalizeEmail trims and lower-cases an address. Only a bare addr-spec
// with a dotted domain passes ("Dakota <d@x.com>" and "d@localhost" fail).
func normalizeEmail(email string) (string, error) {
	f := inputFields{Email: strings.ToLower(strings.TrimSpace(email))}
	return f.Email, checkFields(&f, "Email")
}

// normalizePassword trims the password and enforces the strength rules.
func normalizePassword(password string) (string, error) {
	f := inputFields{Password: strings.TrimSpace(password)}
	return f.Password, checkFields(&f, "Password")
}

func validateAge(age int) error {
	return checkFields(&inputFields{Age: age}, "Age")
}

func normalizeDescription(desc string) (string, error) {
	f := inputFields{Desc: strings.TrimSpace(desc)}
	return f.Desc, checkFields(&f, "Desc")
}
