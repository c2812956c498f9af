package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/rest"
)

// HandleError renders an error with suggestions for the terminal.
func HandleError(err error) string {
	if err == nil {
		return ""
	}

	var msg strings.Builder
	var apiErr *rest.APIError
	var decodeErr *rest.DecodeError
	var failure *requestFailure

	switch {
	case errors.Is(err, config.ErrNotConfigured):
		fmt.Fprintf(&msg, "Error: %s\n\n", err)
		msg.WriteString("Suggestions:\n")
		msg.WriteString("  - Run: trest config set-url <base-url>\n")
		msg.WriteString("  - Or export TREST_BASE_URL\n")

	case errors.As(err, &failure) && failure.Status == 0:
		fmt.Fprintf(&msg, "Error: %s\n", failure.Message)

	case errors.As(err, &failure):
		fmt.Fprintf(&msg, "Request failed (HTTP %d)", failure.Status)
		if failure.Message != "" {
			fmt.Fprintf(&msg, ": %s", failure.Message)
		}
		msg.WriteString("\n")
		writeSuggestion(&msg, rest.ErrorCodeFromStatus(failure.Status))

	case errors.As(err, &apiErr):
		fmt.Fprintf(&msg, "%s\n", apiErr.Error())
		writeSuggestion(&msg, rest.ErrorCodeFromStatus(apiErr.Status))

	case errors.As(err, &decodeErr):
		fmt.Fprintf(&msg, "%s\n", decodeErr.Message)
		if decodeErr.SuccessErr != nil {
			fmt.Fprintf(&msg, "  as %s: %v\n", decodeErr.SuccessType, decodeErr.SuccessErr)
		}
		if decodeErr.FailureErr != nil {
			fmt.Fprintf(&msg, "  as %s: %v\n", decodeErr.FailureType, decodeErr.FailureErr)
		}
		writeSuggestion(&msg, rest.ErrDecode)

	case rest.IsTransportError(err):
		fmt.Fprintf(&msg, "Error: %s\n", err)
		writeSuggestion(&msg, rest.StructuredErrorFromError(err).Code)

	default:
		fmt.Fprintf(&msg, "Error: %s\n", err)
	}

	return msg.String()
}

func writeSuggestion(msg *strings.Builder, code rest.ErrorCode) {
	if s := code.Suggestion(); s != "" {
		fmt.Fprintf(msg, "\nSuggestion: %s\n", s)
	}
}
