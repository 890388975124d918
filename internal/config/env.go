package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every configuration environment variable
const EnvPrefix = "SHORTENER"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadEnv overrides cfg from environment variables. Names are the upper-cased
// yaml path joined by underscores, e.g. SHORTENER_SERVER_PORT or
// SHORTENER_STORAGE_REDIS_HOST. Durations use Go syntax ("250ms", "1h") and
// string lists are comma separated.
func LoadEnv(cfg *Config) error {
	return loadEnvStruct(reflect.ValueOf(cfg).Elem(), EnvPrefix)
}

func loadEnvStruct(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		key, ok := envKey(prefix, t.Field(i))
		field := v.Field(i)
		if !ok || !field.CanSet() {
			continue
		}

		switch {
		case field.Kind() == reflect.Struct:
			if err := loadEnvStruct(field, key); err != nil {
				return err
			}

		case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
			// Optional sections are only allocated when something sets them
			if field.IsNil() {
				if !hasEnvVarsWithPrefix(key) {
					continue
				}
				field.Set(reflect.New(field.Type().Elem()))
			}
			if err := loadEnvStruct(field.Elem(), key); err != nil {
				return err
			}

		default:
			raw, set := os.LookupEnv(key)
			if !set || raw == "" {
				continue
			}
			parsed, err := parseEnv(raw, field.Type())
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if parsed.IsValid() {
				field.Set(parsed)
			}
		}
	}
	return nil
}

// envKey derives the variable name of a struct field from its yaml tag
func envKey(prefix string, f reflect.StructField) (string, bool) {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if name == "" || name == "-" {
		return "", false
	}
	return prefix + "_" + strings.ToUpper(name), true
}

// parseEnv converts raw to a value of type t. Types that cannot be set from
// a single variable, such as rule lists and maps, yield an invalid Value.
func parseEnv(raw string, t reflect.Type) (reflect.Value, error) {
	if t == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		v.SetBool(b)
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return reflect.Value{}, nil
		}
		parts := strings.Split(raw, ",")
		list := reflect.MakeSlice(t, len(parts), len(parts))
		for i, part := range parts {
			list.Index(i).SetString(strings.TrimSpace(part))
		}
		return list, nil
	default:
		return reflect.Value{}, nil
	}
	return v, nil
}

// hasEnvVarsWithPrefix reports whether any variable lives under prefix
func hasEnvVarsWithPrefix(prefix string) bool {
	prefix += "_"
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, prefix) {
			return true
		}
	}
	return false
}

// EnvExample lists every variable LoadEnv understands as NAME=value, using
// the values in cfg where they are set and a placeholder otherwise.
func EnvExample(cfg *Config) []string {
	var lines []string
	envExamples(reflect.ValueOf(cfg).Elem(), reflect.TypeOf(cfg).Elem(), EnvPrefix, &lines)
	return lines
}

// envExamples walks t; v is the matching value, or invalid inside a section
// that is not set.
func envExamples(v reflect.Value, t reflect.Type, prefix string, lines *[]string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key, ok := envKey(prefix, f)
		if !ok {
			continue
		}
		var field reflect.Value
		if v.IsValid() {
			field = v.Field(i)
		}

		switch {
		case f.Type.Kind() == reflect.Struct:
			envExamples(field, f.Type, key, lines)

		case f.Type.Kind() == reflect.Ptr && f.Type.Elem().Kind() == reflect.Struct:
			var elem reflect.Value
			if field.IsValid() && !field.IsNil() {
				elem = field.Elem()
			}
			envExamples(elem, f.Type.Elem(), key, lines)

		default:
			if example, ok := exampleValue(field, f.Type); ok {
				*lines = append(*lines, key+"="+example)
			}
		}
	}
}

func exampleValue(v reflect.Value, t reflect.Type) (string, bool) {
	set := v.IsValid() && !v.IsZero()

	if t == durationType {
		if set {
			return time.Duration(v.Int()).String(), true
		}
		return "30s", true
	}

	switch t.Kind() {
	case reflect.String:
		if set {
			return v.String(), true
		}
		return "value", true
	case reflect.Int, reflect.Int64:
		if set {
			return strconv.FormatInt(v.Int(), 10), true
		}
		return "123", true
	case reflect.Float64:
		if set {
			return strconv.FormatFloat(v.Float(), 'g', -1, 64), true
		}
		return "1.5", true
	case reflect.Bool:
		if set {
			return "true", true
		}
		return "false", true
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return "", false
		}
		if set && v.Len() > 0 {
			parts := make([]string, v.Len())
			for i := range parts {
				parts[i] = v.Index(i).String()
			}
			return strings.Join(parts, ","), true
		}
		return "value1,value2", true
	}
	return "", false
}
