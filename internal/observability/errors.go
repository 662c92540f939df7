package observability

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// AggregateErrors joins multiple errors, emits a structured log entry, and returns an aggregated error.
func AggregateErrors(logger zerolog.Logger, operation string, errs []error) error {
	filtered := make([]error, 0, len(errs))
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		filtered = append(filtered, err)
		messages = append(messages, err.Error())
	}
	if len(filtered) == 0 {
		return nil
	}
	logger.Error().
		Str("operation", operation).
		Int("error_count", len(filtered)).
		Strs("errors", messages).
		Msg("operation errors")
	return fmt.Errorf("%s failed: %w", operation, errors.Join(filtered...))
}
