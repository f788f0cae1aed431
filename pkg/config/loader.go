// Package config loads gateway configuration into tagged structs from three
// layers, lowest priority first:
//
//	envDefault struct tags
//	YAML/JSON config file
//	Environment variables
//
// Defaults live next to the field they configure, a file provides
// per-environment overrides, and env vars (typically injected from a
// Secret) win.
//
// # Struct Tags
//
//   - `env:"VAR_NAME"`: the environment variable for the field. On a nested
//     struct field the tag becomes a prefix for the child fields.
//   - `envDefault:"value"`: the value used when the field is still zero.
//   - `required:"true"`: loading fails if the field is zero after all layers.
//
// File loading uses the `yaml` and `json` tags of the target struct.
//
// # Usage
//
//	type Config struct {
//	    Auth auth.ProviderConfig `env:"AUTH" yaml:"auth"`
//	    Addr string              `env:"ADDR" envDefault:":8080" yaml:"addr"`
//	}
//
//	cfg := config.MustLoad[Config](config.New().WithEnvPrefix("ACCESSGATE"))
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/accessgate/pkg/errors"
)

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// Loader resolves configuration layers into a struct. A Loader is not safe
// for concurrent use; build one per Load call.
type Loader struct {
	envPrefix string
	filePath  string
	lookup    LookupFunc
}

// New returns a Loader that reads process environment variables only.
func New() *Loader {
	return &Loader{lookup: os.LookupEnv}
}

// WithEnvPrefix prepends prefix and an underscore to every environment
// variable name. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a YAML (.yaml, .yml) or JSON (.json) file to load between
// defaults and environment variables. A missing file is not an error.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment source. Tests use it to supply
// variables without touching the process environment.
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct, and then
// validates it: `required` fields must be non-zero and, if cfg implements
// [Validator], its Validate method must succeed.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	err := walk(rv, "", "", func(f leaf) error {
		if f.def == "" || !f.value.IsZero() {
			return nil
		}
		if err := setField(f.value, f.def); err != nil {
			return sserr.Wrapf(err, sserr.CodeConfiguration,
				"config: invalid default for field %q", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	err = walk(rv, l.envPrefix, "", func(f leaf) error {
		if f.envKey == "" {
			return nil
		}
		val, ok := l.lookup(f.envKey)
		if !ok {
			return nil
		}
		if err := setField(f.value, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeConfiguration,
				"config: invalid value for %s", f.envKey)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Use it in main, where a broken
// configuration must stop the process.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeConfiguration,
			"config: file path must not contain \"..\"")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeConfiguration,
			"config: failed to read %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}
