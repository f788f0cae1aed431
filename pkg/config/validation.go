package config

import (
	"reflect"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond `required` tags. Validate runs after all required fields are
// present. A returned *sserr.Error is passed through unchanged; any other
// error is wrapped with [sserr.CodeValidation].
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", "", func(f leaf) error {
		if f.field.Tag.Get("required") == "true" && f.value.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", f.path).
				WithDetail("env", f.envKey)
		}
		return nil
	})
	if err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, coded := sserr.AsError(err); coded {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: validation failed")
	}
	return nil
}
