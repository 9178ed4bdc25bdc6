// SPDX-License-Identifier: MIT

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/ManuGH/streamrelay/internal/core/urlutil"
)

// sensitiveKeywords mark keys whose values must not reach the logs.
var sensitiveKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"credential",
	"auth",
	"destination",
	"streamkey",
}

// isSensitiveKey reports whether key contains a sensitive keyword, ignoring case.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MaskURL masks credentials and the stream key of a destination URL.
func MaskURL(rawURL string) string {
	return urlutil.RedactStreamKey(rawURL)
}

// MaskSecrets renders v as nested maps for logging. Struct fields are keyed
// by their yaml names and fields tagged "-" are skipped. Sensitive URL values
// keep scheme and host; any other sensitive value becomes "***".
func MaskSecrets(v any) any {
	if v == nil {
		return nil
	}
	return maskValue(reflect.ValueOf(v))
}

func maskValue(val reflect.Value) any {
	for val.Kind() == reflect.Pointer || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return nil
		}
		val = val.Elem()
	}
	if d, ok := val.Interface().(time.Duration); ok {
		return d.String()
	}

	switch val.Kind() {
	case reflect.Struct:
		out := make(map[string]any, val.NumField())
		typ := val.Type()
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			name := yamlName(f)
			if !f.IsExported() || name == "-" {
				continue
			}
			out[name] = maskField(name, val.Field(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			name := iter.Key().String()
			out[name] = maskField(name, iter.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, val.Len())
		for i := range out {
			out[i] = maskValue(val.Index(i))
		}
		return out
	default:
		return val.Interface()
	}
}

func maskField(name string, val reflect.Value) any {
	if !isSensitiveKey(name) {
		return maskValue(val)
	}
	for val.Kind() == reflect.Interface && !val.IsNil() {
		val = val.Elem()
	}
	if val.Kind() == reflect.String && strings.Contains(val.String(), "://") {
		return MaskURL(val.String())
	}
	return "***"
}

func yamlName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if tag == "" {
		return f.Name
	}
	return tag
}
