package prompt

import (
	"errors"
	"strings"
)

// ErrMissingMarker is returned when decoded output does not contain the
// closing instruction marker, so the generation cannot be located.
var ErrMissingMarker = errors.New("model output is missing the " + ClosingMark + " marker")

// ExtractSQL returns the text after the first closing marker, trimmed.
func ExtractSQL(raw string) (string, error) {
	_, after, found := strings.Cut(raw, ClosingMark)
	if !found {
		return "", ErrMissingMarker
	}
	return strings.TrimSpace(after), nil
}
