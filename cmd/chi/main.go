// Command chi is the command-line front-end of the chigraph compiler: it
// compiles graph modules to LLVM IR, runs and interprets them, and fetches
// remote modules into the workspace.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"chi/report"
)

var (
	flagWorkDir  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "chi",
	Short:         "chi is the chigraph compiler",
	Long:          "chi compiles chigraph graph modules to LLVM IR and drives execution of the result.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch flagLogLevel {
		case "silent":
			report.InitReporter(report.LogLevelSilent)
		case "error":
			report.InitReporter(report.LogLevelError)
		case "warn":
			report.InitReporter(report.LogLevelWarn)
		default:
			report.InitReporter(report.LogLevelVerbose)
		}

		if flagWorkDir != "" {
			if err := os.Chdir(flagWorkDir); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagWorkDir, "workdir", "C", "",
		"set the working directory before running the command")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "loglevel", "verbose",
		"log level: silent, error, warn, or verbose")

	rootCmd.AddCommand(compileCmd, runCmd, interpretCmd, getCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		report.Errorf("%s", err.Error())
		os.Exit(1)
	}
}
