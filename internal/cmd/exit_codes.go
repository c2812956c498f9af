package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"

	"github.com/typedrest/typedrest/internal/config"
	"github.com/typedrest/typedrest/internal/rest"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
	exitDecode      = 9
	exitConfig      = 10
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	var handled *handledError
	if errors.As(err, &handled) {
		if handled.exitCode != 0 {
			return handled.exitCode
		}
		err = handled.err
	}
	if errors.Is(err, config.ErrNotConfigured) {
		return exitConfig
	}
	if code := exitCodeFromStructured(err); code != 0 {
		return code
	}
	if isUsageError(err) {
		return exitUsage
	}
	return exitGeneric
}

func exitCodeFromStructured(err error) int {
	structured := rest.StructuredErrorFromError(err)
	if structured == nil {
		return 0
	}
	switch structured.Code {
	case rest.ErrUnauthorized:
		return exitAuth
	case rest.ErrForbidden:
		return exitForbidden
	case rest.ErrNotFound, rest.ErrGone:
		return exitNotFound
	case rest.ErrRateLimited:
		return exitRateLimited
	case rest.ErrServerError:
		return exitServer
	case rest.ErrTimeout, rest.ErrNetwork, rest.ErrCanceled:
		return exitNetwork
	case rest.ErrDecode:
		return exitDecode
	case rest.ErrBadRequest, rest.ErrValidation, rest.ErrConflict, rest.ErrMethodNotAllowed,
		rest.ErrPayloadTooLarge, rest.ErrUnsupportedMediaType, rest.ErrInvalidRequest:
		return exitUsage
	default:
		return 0
	}
}

func isUsageError(err error) bool {
	msg := strings.ToLower(err.Error())
	indicators := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid value",
		"must be",
		"is required",
		"cannot be used",
	}
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
