package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

// MaxURLParamLength bounds decoded path parameters
const MaxURLParamLength = 64

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// Surrounding whitespace is trimmed. Inner spaces are kept so display names like
// "Miss Fortune" resolve; control characters and overlong values are rejected.
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, paramName))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	decoded = strings.TrimSpace(decoded)
	if decoded == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}
	if len(decoded) > MaxURLParamLength {
		return "", fmt.Errorf("%s exceeds %d characters", paramName, MaxURLParamLength)
	}
	if strings.ContainsFunc(decoded, unicode.IsControl) {
		return "", fmt.Errorf("%s cannot contain control characters", paramName)
	}

	return decoded, nil
}
