// Package cmd implements the sntp subcommands.
package cmd

import (
	"io"
	"os"

	"github.com/GlowingScrewdriver/go-sntp/internal/i18n"
)

// Printer localizes CLI output.
var Printer = i18n.NewCLIPrinter()

// Out receives command output. Tests swap it for a buffer.
var Out io.Writer = os.Stdout
