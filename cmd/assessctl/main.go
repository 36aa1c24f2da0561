// Command assessctl runs the assessment pipeline offline: EEG validation,
// questionnaire scoring, heatmaps, reports and review-store maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adhd-assessment-server/internal/config"
	"github.com/adhd-assessment-server/internal/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	logLevel string
}

func (o *rootOptions) logger() *logrus.Logger {
	return config.NewStderrLogger(domain.LoggingConfig{Level: o.logLevel, Format: "text"})
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "assessctl",
		Short:         "Offline tools for the ADHD assessment pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(validateEEGCmd(opts))
	rootCmd.AddCommand(scoreCmd(opts))
	rootCmd.AddCommand(heatmapCmd(opts))
	rootCmd.AddCommand(reportCmd(opts))
	rootCmd.AddCommand(migrateCmd(opts))
	rootCmd.AddCommand(reviewsCmd(opts))
	return rootCmd
}
