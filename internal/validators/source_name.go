// Package validators provides validation functions for gateway identifiers.
package validators

import (
	"fmt"
	"regexp"
	"strings"
)

const maxSourceNameLength = 64

// lowercase alphanumerics with single inner hyphens
var sourceNamePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateSourceName validates a source name. Source names are path segments of
// /api/source/{name}, so they are restricted to URL-safe slugs.
// Returns the validated name (trimmed) and an error if validation fails.
//
// Examples of valid names:
//   - probuild
//   - lolalytics
//   - probuild-eu
//
// Examples of invalid names:
//   - Probuild (uppercase)
//   - pro_build (underscore)
//   - -probuild (leading hyphen)
//   - pro--build (repeated hyphen)
func ValidateSourceName(name string) (string, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		return "", fmt.Errorf("source name cannot be empty")
	}
	if len(name) > maxSourceNameLength {
		return "", fmt.Errorf("source name exceeds maximum length of %d characters", maxSourceNameLength)
	}
	if !sourceNamePattern.MatchString(name) {
		return "", fmt.Errorf(
			"source name '%s' is invalid. Names may contain lowercase letters, digits "+
				"and single hyphens between them",
			name,
		)
	}

	return name, nil
}

// IsValidSourceName is the boolean form of ValidateSourceName
func IsValidSourceName(name string) bool {
	_, err := ValidateSourceName(name)
	return err == nil
}
