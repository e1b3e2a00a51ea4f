package config

import (
	"fmt"
	"io"
	"os"
)

// ExitCodeConfig is returned by entrypoints that could not load configuration.
const ExitCodeConfig = 2

// Exitf writes a formatted error message to stderr and exits with code.
func Exitf(code int, format string, args ...any) {
	fprintExit(os.Stderr, format, args...)
	os.Exit(code)
}

func fprintExit(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
