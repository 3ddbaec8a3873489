package main

import (
	"fmt"

	"github.com/seuros/gopher-relay/src/errdefs"
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

func usageErrorf(code int, format string, args ...interface{}) error {
	return &exitError{
		code: code,
		msg:  fmt.Sprintf(format, args...),
	}
}

// exitCode maps a compile failure to a stable process exit status.
func exitCode(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindShapeMismatch, errdefs.KindDTypeMismatch, errdefs.KindRankMismatch:
		return 3
	case errdefs.KindUnsupportedTarget:
		return 4
	case errdefs.KindLoweringFailure:
		return 5
	case errdefs.KindCodegenFailure:
		return 6
	default:
		return 1
	}
}
