package main

import (
	"errors"
	"os"

	"inliner/inline"
	"inliner/internal/config"
)

// Exit codes follow Unix conventions: 0=success, 1=general, 2=usage.
const (
	ExitSuccess = 0 // document written
	ExitGeneral = 1 // unexpected error
	ExitUsage   = 2 // invalid flags, config or source
	ExitIO      = 3 // resource unavailable or output not writable
	ExitVerify  = 4 // output is not self-contained
)

// exitCodeFor maps an error from run to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil, errors.Is(err, errHelp):
		return ExitSuccess
	case errors.Is(err, ErrNotSelfContained):
		return ExitVerify
	case errors.Is(err, ErrUsage),
		errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, config.ErrConfigParse),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, inline.ErrMalformedReference):
		return ExitUsage
	case errors.Is(err, inline.ErrResourceUnavailable),
		errors.Is(err, ErrWriteOutput),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, os.ErrPermission):
		return ExitIO
	}
	return ExitGeneral
}
