package utils

import (
	"fmt"
	"slices"
	"strings"
)

// EnumValueError reports a value outside the allowed set
type EnumValueError struct {
	Value string
}

func (e *EnumValueError) Error() string {
	return fmt.Sprintf("unknown value %q", e.Value)
}

// ParseEnumList parses a comma separated list of enum values, e.g. a
// `?status=pending,approved` query parameter. Values are trimmed, blanks
// skipped and duplicates dropped while keeping first-seen order. An empty
// input yields a nil slice, meaning "no filter".
func ParseEnumList[T ~string](raw string, allowed []T) ([]T, error) {
	var out []T
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value := T(part)
		if !slices.Contains(allowed, value) {
			return nil, &EnumValueError{Value: part}
		}
		if !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out, nil
}
