package config

import (
	"fmt"
	"io"
	"os"
)

// exit is replaced in tests.
var exit = os.Exit

// Exitf prints a fatal message to stderr and terminates with status 1.
func Exitf(format string, args ...any) {
	exitTo(os.Stderr, format, args...)
}

func exitTo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
	exit(1)
}
