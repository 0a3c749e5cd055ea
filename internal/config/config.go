// Package config defines the shell's command-line configuration: a plain
// struct with a Flags method that binds it to a cobra command.
package config

import "github.com/spf13/cobra"

// Config holds the flags the shell binary accepts.
type Config struct {
	Verbose  bool // -v: include "Added job ..." notices at each insertion
	NoPrompt bool // -p: suppress the "tsh> " prompt, for automated testing
}

// Flags binds c's fields to cmd's flag set.
func (c *Config) Flags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&c.Verbose, "verbose", "v", false, "enable verbose diagnostics")
	cmd.Flags().BoolVarP(&c.NoPrompt, "no-prompt", "p", false, "suppress the prompt")
}
