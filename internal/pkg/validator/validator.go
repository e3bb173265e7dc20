package validator

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("rut", func(fl validator.FieldLevel) bool {
		return ValidRUT(fl.Field().String())
	})
}

// Validate struct fields
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errors["_"] = err.Error()
		return errors
	}
	for _, err := range verrs {
		errors[err.Field()] = err.Tag()
	}
	return errors
}

// NormalizeRUT strips dots, dashes and spaces and upper-cases the check digit.
func NormalizeRUT(s string) string {
	r := strings.NewReplacer(".", "", "-", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

// CanonicalRUT formats a RUT as digits, dash, check digit ("12345678-5").
func CanonicalRUT(s string) string {
	n := NormalizeRUT(s)
	if len(n) < 2 {
		return n
	}
	return n[:len(n)-1] + "-" + n[len(n)-1:]
}

// ValidRUT checks a Chilean national id (RUT) using the modulo-11 check digit.
func ValidRUT(s string) bool {
	n := NormalizeRUT(s)
	if len(n) < 2 {
		return false
	}
	body, dv := n[:len(n)-1], n[len(n)-1]
	if _, err := strconv.Atoi(body); err != nil {
		return false
	}

	sum, factor := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	var want byte
	switch rest := 11 - sum%11; rest {
	case 11:
		want = '0'
	case 10:
		want = 'K'
	default:
		want = byte('0' + rest)
	}
	return dv == want
}
