package validator

import (
	"bytes"
	"encoding/json"
	"net/url"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)
	aspectRatios = map[string]struct{}{"9:16": {}, "16:9": {}, "1:1": {}}
	energyLevels = map[string]struct{}{"low": {}, "medium": {}, "high": {}}
)

func mediaURLValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	u, err := url.Parse(val)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func oneOfSet(set map[string]struct{}) func(fl validator.FieldLevel) bool {
	return func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		_, found := set[val]
		return found
	}
}

func jobIDValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	return ok && jobIDPattern.MatchString(val)
}

func jsonObjectValidator(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice || field.Type().Elem().Kind() != reflect.Uint8 {
		return false
	}

	data := bytes.TrimSpace(field.Bytes())
	if len(data) == 0 || data[0] != '{' {
		return false
	}
	return json.Valid(data)
}
