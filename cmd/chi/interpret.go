package main

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

var flagInput string

var interpretCmd = &cobra.Command{
	Use:   "interpret [args...]",
	Short: "Interpret LLVM IR from stdin (or -i) with lli",
	RunE:  runInterpret,
}

func init() {
	interpretCmd.Flags().StringVarP(&flagInput, "input", "i", "",
		"read IR from this file instead of stdin")
}

func runInterpret(cmd *cobra.Command, args []string) error {
	irPath := flagInput

	if irPath == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}

		tmpDir, err := os.MkdirTemp("", "chi-interpret")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmpDir)

		irPath = filepath.Join(tmpDir, "module.ll")
		if err := os.WriteFile(irPath, raw, 0o644); err != nil {
			return err
		}
	}

	lli, err := findTool("lli", "CHI_LLI_PATH")
	if err != nil {
		return err
	}

	return forwardExec(exec.Command(lli, append([]string{irPath}, args...)...))
}
