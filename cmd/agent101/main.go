// Command agent101 runs the agents from the command line or as an HTTP
// service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/smallnest/agent101/config"
	"github.com/smallnest/agent101/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFile    string
	settings   config.Settings
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agent101",
		Short:         "Planner/executor, research, web and file agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				s.LogLevel = logLevel
			}
			closer, err := setupLogging(s.LogLevel, logFile)
			if err != nil {
				return err
			}
			cobra.OnFinalize(func() { closer.Close() })
			settings = s
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn, error or none")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append plain-text logs to this file instead of stderr")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(qaCmd())
	cmd.AddCommand(chatCmd())
	cmd.AddCommand(planCmd())
	cmd.AddCommand(researchCmd())
	cmd.AddCommand(webCmd())
	cmd.AddCommand(fileCmd())
	cmd.AddCommand(ragCmd())
	cmd.AddCommand(parallelCmd())
	return cmd
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// setupLogging installs the package logger at levelName. With a path the
// logs are appended to that file as plain text; otherwise golog writes to
// stderr.
func setupLogging(levelName, path string) (io.Closer, error) {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	if path == "" {
		log.SetLevel(level)
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetDefaultLogger(log.NewWriterLogger(f, level))
	return f, nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
