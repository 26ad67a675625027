package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrInvalidForm struct {
	error
}

func NewErrInvalidForm(format string, args ...any) *ErrInvalidForm {
	return &ErrInvalidForm{fmt.Errorf(format, args...)}
}

var tagMessages = map[string]string{
	"required":    "is required",
	"upload_path": "must be a path under uploads/",
	"language":    "must be a language code such as en or pt-BR",
	"job_status":  "must be one of pending, processing, completed, failed, cancelled",
	"max":         "is too long",
	"min":         "must not be empty",
	"nefield":     "must differ from the other source",
	"gte":         "must not be negative",
	"lte":         "is too large",
}

// describe turns the first failed rule into a message that names the json field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	msg, ok := tagMessages[fe.Tag()]
	if !ok {
		msg = fmt.Sprintf("failed the %s rule", fe.Tag())
	}
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return NewErrInvalidForm("%s %s", field, msg)
}
