package main

import (
	"context"
	"sync"

	"github.com/findings-relay/findings-relay/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "findings-relay",
	Short:             "findings-relay reports vulnerability findings from Polaris and Code Dx as log lines.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrapCommand,
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.AddCommand(runCmd, polarisCmd, codedxCmd, configCmd)
}

// commandExecutionContext tells the fatal error path how the running command logs.
type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	executionMu      sync.Mutex
	executionContext commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	executionMu.Lock()
	defer executionMu.Unlock()
	executionContext = ctx
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func currentCommandExecutionContext() commandExecutionContext {
	executionMu.Lock()
	defer executionMu.Unlock()
	return executionContext
}

// commandUsesStructuredLogging is false for commands whose output is meant for a terminal.
func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	if cmd == nil || !cmd.HasParent() {
		return false
	}
	switch cmd.Name() {
	case "config", "help", "completion":
		return false
	}
	return true
}

func bootstrapCommand(cmd *cobra.Command, _ []string) error {
	structured := commandUsesStructuredLogging(cmd)
	setCommandExecutionContext(commandExecutionContext{
		CommandPath:       cmd.CommandPath(),
		UsesStructuredLog: structured,
	})
	if !structured {
		return nil
	}
	if _, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: cmd.CommandPath()}); err != nil {
		return configError(err)
	}
	return nil
}
