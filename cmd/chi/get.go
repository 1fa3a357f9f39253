package main

import (
	"errors"

	"github.com/spf13/cobra"

	"chi/report"
)

var getCmd = &cobra.Command{
	Use:   "get <module full name>...",
	Short: "Fetch modules and their dependencies into the workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx, err := newContext()
	if err != nil {
		return err
	}

	failed := false
	for _, fullName := range args {
		// loading through the fetcher clones the repository and pulls in
		// dependencies recursively
		_, res := ctx.LoadModule(fullName)
		if report.DisplayResult(res) {
			failed = true
			continue
		}

		report.Infof("fetched %s", fullName)
	}

	if failed {
		return errors.New("failed to fetch one or more modules")
	}
	return nil
}
