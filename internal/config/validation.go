package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError is a single problem found in a configuration document.
type ValidationError struct {
	Path    []string
	Message string
}

func (e ValidationError) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return strings.Join(e.Path, ".") + ": " + e.Message
}

// ValidationErrors collects every problem in a document rather than stopping
// at the first one.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

type shape int

const (
	shapeString shape = iota
	shapeBool
	shapeScalarMap
)

func (s shape) String() string {
	switch s {
	case shapeString:
		return "string"
	case shapeBool:
		return "boolean"
	case shapeScalarMap:
		return "mapping of strings"
	}
	return "unknown"
}

var schema = map[string]shape{
	"manage_hls":               shapeString,
	"ghcup_executable_path":    shapeString,
	"server_executable_path":   shapeString,
	"compiler_executable_path": shapeString,
	"server_environment":       shapeScalarMap,
	"release_metadata_url":     shapeString,
	"storage_path":             shapeString,
	"upgrade_ghcup":            shapeBool,
	"prompt_before_downloads":  shapeBool,
	"toolchain":                shapeScalarMap,
	"log_level":                shapeString,
}

// CheckShape verifies that a generically decoded document only holds known
// keys with values of the expected type.
func CheckShape(raw map[string]any) ValidationErrors {
	var errs ValidationErrors
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		want, ok := schema[key]
		if !ok {
			errs = append(errs, ValidationError{Path: []string{key}, Message: "unknown field"})
			continue
		}
		if value == nil {
			continue
		}
		switch want {
		case shapeString:
			if _, ok := value.(string); !ok {
				errs = append(errs, mismatch([]string{key}, want, value))
			}
		case shapeBool:
			if _, ok := value.(bool); !ok {
				errs = append(errs, mismatch([]string{key}, want, value))
			}
		case shapeScalarMap:
			m, ok := value.(map[string]any)
			if !ok {
				errs = append(errs, mismatch([]string{key}, want, value))
				continue
			}
			inner := make([]string, 0, len(m))
			for k := range m {
				inner = append(inner, k)
			}
			sort.Strings(inner)
			for _, k := range inner {
				switch m[k].(type) {
				case string, int, int64, uint64, float64:
				default:
					errs = append(errs, mismatch([]string{key, k}, shapeString, m[k]))
				}
			}
		}
	}
	return errs
}

func mismatch(path []string, want shape, got any) ValidationError {
	return ValidationError{Path: path, Message: fmt.Sprintf("expected %s, got %s", want, describe(got))}
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int64, uint64:
		return "integer"
	case float64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "mapping"
	}
	return fmt.Sprintf("%T", v)
}

var configValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks value rules: known modes, URLs and toolchain kinds.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate config: %w", err)
	}
	var errs ValidationErrors
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{Path: fieldPath(fe.Namespace()), Message: describeRule(fe)})
	}
	return errs
}

// fieldPath turns "Config.toolchain[ghcx]" into ["toolchain", "ghcx"].
func fieldPath(namespace string) []string {
	_, rest, found := strings.Cut(namespace, ".")
	if !found {
		rest = namespace
	}
	var path []string
	for _, part := range strings.Split(rest, ".") {
		name, key, hasKey := strings.Cut(part, "[")
		path = append(path, name)
		if hasKey {
			path = append(path, strings.TrimSuffix(key, "]"))
		}
	}
	return path
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fmt.Sprint(fe.Value()))
	case "required":
		return "must not be empty"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
