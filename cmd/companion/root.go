package main

import (
	"fmt"
	"os"

	"companion/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
	bold  = color.New(color.Bold).SprintFunc()
)

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "companion",
		Short: "Run several Claude Code sessions side by side in one terminal",
		Long: fmt.Sprintf(`%s

Starts a local websocket bridge, launches Claude Code in SDK mode for each
session and drives them from a single keyboard-first terminal UI.

%s
  companion                      # Resume saved sessions or start a new one
  companion --cwd ~/src/app      # Start new sessions in another directory
  companion --connect            # Create a session without launching the agent
  companion sessions             # List saved sessions
  companion envs                 # List environment profiles`,
			bold("Claude Code companion"),
			bold("EXAMPLES:")),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if !isTTY() {
				return fmt.Errorf("companion needs an interactive terminal")
			}
			return runCompanion(cmd.Context(), cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.Int("port", config.DefaultPort, "Bridge port the agents connect to")
	flags.String("cwd", "", "Working directory for new sessions")
	flags.String("model", "", "Model passed to new agents")
	flags.String("binary", "", "Claude Code executable")
	flags.String("home", "", "Directory holding sessions/ and envs/")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Log file path")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	flags.BoolP("debug", "d", false, "Debug logging")
	rootCmd.Flags().Bool("connect", false, "Create the first session without launching an agent")

	_ = v.BindPFlags(flags)
	_ = v.BindPFlags(rootCmd.Flags())

	rootCmd.AddCommand(newSessionsCommand(v))
	rootCmd.AddCommand(newEnvsCommand(v))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// loadConfig layers the flags the user actually set over file and
// environment configuration.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (config.RuntimeConfig, error) {
	cfg, _, err := config.Load(config.WithOverrides(flagOverrides(cmd, v)))
	if err != nil {
		return config.RuntimeConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func flagOverrides(cmd *cobra.Command, v *viper.Viper) config.Overrides {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	str := func(name string) *string {
		if !changed(name) {
			return nil
		}
		value := v.GetString(name)
		return &value
	}

	var o config.Overrides
	if changed("port") {
		port := v.GetInt("port")
		o.Port = &port
	}
	o.CWD = str("cwd")
	o.Model = str("model")
	o.BinaryPath = str("binary")
	o.HomeDir = str("home")
	o.LogLevel = str("log-level")
	o.LogFile = str("log-file")
	o.MetricsAddr = str("metrics-addr")
	if changed("connect") {
		connect := v.GetBool("connect")
		o.ConnectOnly = &connect
	}
	if v.GetBool("debug") {
		level := "debug"
		o.LogLevel = &level
	}
	return o
}
