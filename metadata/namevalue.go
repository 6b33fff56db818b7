// Package metadata holds free-form name/value pairs describing a run, such
// as the antenna or the distance between the radios.
package metadata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid is returned for a malformed name/value definition.
var ErrInvalid = errors.New("metadata: invalid definition")

// NameValue is a single "name"/"value" pair.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// reservedRe matches names reserved for values linkbench records itself.
var reservedRe = regexp.MustCompile("^linkbench_")

// Parse parses NAME=VALUE definitions. The order of defs is kept.
func Parse(defs []string) ([]NameValue, error) {
	var nvs []NameValue
	for _, def := range defs {
		name, value, found := strings.Cut(def, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalid, def)
		}
		if reservedRe.MatchString(name) {
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalid, name)
		}
		nvs = append(nvs, NameValue{Name: name, Value: value})
	}
	return nvs, nil
}
