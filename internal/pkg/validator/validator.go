package validator

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(jsonName)
}

// Validate checks s against its validate tags
func Validate(s interface{}) error {
	return validate.Struct(s)
}

// GetValidator exposes the shared instance for custom rules
func GetValidator() *validator.Validate {
	return validate
}

// Details maps each failing field, by its JSON name, to the rule it broke.
func Details(err error) map[string]interface{} {
	details := map[string]interface{}{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["reason"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fieldPath(fe.Namespace())] = rule
	}
	return details
}

// fieldPath drops the struct name from a namespace such as DataRequest.osm_types[0].
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
