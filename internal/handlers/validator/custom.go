package validator

import (
	"path"
	"regexp"
	"strings"

	"github.com/chaptermaker/chaptermaker/internal/storage"
	"github.com/chaptermaker/chaptermaker/internal/store/model"
	"github.com/go-playground/validator/v10"
)

var languageRegex = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

// uploadPathValidator accepts clean object keys under the uploads prefix.
func uploadPathValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	if !strings.HasPrefix(val, storage.UploadsPrefix) || len(val) == len(storage.UploadsPrefix) {
		return false
	}
	return path.Clean(val) == val
}

func languageValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return languageRegex.MatchString(val)
}

func jobStatusValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return model.JobStatus(val).Valid()
}
