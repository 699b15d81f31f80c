package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/findings-relay/findings-relay/internal/config"
	"github.com/findings-relay/findings-relay/internal/connectors/codedx"
	"github.com/findings-relay/findings-relay/internal/connectors/polaris"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readSecret      = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// promptMissingTokens asks for empty vendor tokens when stdin is a terminal. Otherwise the
// tokens are left empty and validation reports them.
func promptMissingTokens(cmd *cobra.Command, cfg config.Config, kinds []string) (config.Config, error) {
	if !stdinIsTerminal() {
		return cfg, nil
	}
	for _, kind := range kinds {
		var (
			target *string
			key    string
		)
		switch kind {
		case polaris.Kind:
			target, key = &cfg.PolarisToken, config.EnvPolarisToken
		case codedx.Kind:
			target, key = &cfg.CodeDxToken, config.EnvCodeDxToken
		default:
			continue
		}
		if *target != "" {
			continue
		}
		cmd.PrintErr(key + ": ")
		value, err := readSecret()
		cmd.PrintErrln()
		if err != nil {
			return cfg, fmt.Errorf("read %s: %w", key, err)
		}
		token := strings.TrimSpace(string(value))
		if token == "" {
			return cfg, errors.New(key + " is empty")
		}
		*target = token
	}
	return cfg, nil
}
