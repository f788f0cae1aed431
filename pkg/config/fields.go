package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var durationType = reflect.TypeOf(time.Duration(0))

// leaf is a settable, non-struct field reached by walk.
type leaf struct {
	value  reflect.Value
	field  reflect.StructField
	path   string // dotted Go field path, e.g. "Auth.Audience"
	envKey string // fully prefixed env var name, "" if untagged
	def    string
}

// walk visits every settable leaf field of rv depth-first. Nested struct
// fields extend the env prefix with their own env tag.
func walk(rv reflect.Value, envPrefix, path string, fn func(leaf) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		fv, sf := rv.Field(i), rt.Field(i)
		if !fv.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		envTag := sf.Tag.Get("env")

		if fv.Kind() == reflect.Struct {
			if err := walk(fv, joinEnv(envPrefix, envTag), fieldPath, fn); err != nil {
				return err
			}
			continue
		}

		f := leaf{value: fv, field: sf, path: fieldPath, def: sf.Tag.Get("envDefault")}
		if envTag != "" {
			f.envKey = joinEnv(envPrefix, envTag)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case name == "":
		return prefix
	case prefix == "":
		return name
	default:
		return prefix + "_" + name
	}
}

// setField parses value into field. Supported kinds are strings (including
// named string types such as Secret), bools, signed and unsigned integers,
// floats, time.Duration, and string slices given as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", value, err)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", value, err)
		}
		field.SetFloat(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		// MakeSlice keeps named slice types assignable.
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
