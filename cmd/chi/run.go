package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"chi/codegen"
	"chi/report"
)

var flagNative bool

var runCmd = &cobra.Command{
	Use:   "run <module full name> [args...]",
	Short: "Compile a module and execute its main function",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&flagNative, "native", false,
		"compile to a native binary with clang instead of interpreting with lli")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, err := newContext()
	if err != nil {
		return err
	}

	_, res := ctx.LoadModule(args[0])
	if report.DisplayResult(res) {
		return errors.New("failed to load module")
	}

	llmod, res := codegen.CompileModule(ctx, args[0], compileSettings())
	if report.DisplayResult(res) {
		return errors.New("failed to compile module")
	}

	// write the IR to a temporary file for the external tool
	tmpDir, err := os.MkdirTemp("", "chi-run")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	irPath := filepath.Join(tmpDir, "module.ll")
	if err := os.WriteFile(irPath, []byte(llmod.String()), 0o644); err != nil {
		return err
	}

	if flagNative {
		return runNative(tmpDir, irPath, args[1:])
	}
	return runLLI(irPath, args[1:])
}

// runLLI interprets the IR with lli, forwarding the exit code.
func runLLI(irPath string, args []string) error {
	lli, err := findTool("lli", "CHI_LLI_PATH")
	if err != nil {
		return err
	}

	return forwardExec(exec.Command(lli, append([]string{irPath}, args...)...))
}

// runNative compiles the IR to a binary with clang and executes it.
func runNative(tmpDir, irPath string, args []string) error {
	clang, err := findTool("clang", "CHI_CLANG_PATH")
	if err != nil {
		return err
	}

	binPath := filepath.Join(tmpDir, "module.out")
	build := exec.Command(clang, "-o", binPath, irPath)
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return err
	}

	return forwardExec(exec.Command(binPath, args...))
}

// findTool locates an external binary on PATH, honoring an environment
// override.
func findTool(name, envOverride string) (string, error) {
	if path := os.Getenv(envOverride); path != "" {
		return path, nil
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.New("failed to find " + name + " in PATH (set " + envOverride + " to override)")
	}
	return path, nil
}

// forwardExec runs a command wired to our stdio, translating its exit code
// into ours.
func forwardExec(cmd *exec.Cmd) error {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if exitErr := new(exec.ExitError); errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	return err
}
