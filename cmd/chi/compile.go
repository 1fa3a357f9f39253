package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"chi/cache"
	"chi/codegen"
	"chi/fetch"
	"chi/graph"
	"chi/report"
)

var (
	flagOutput  string
	flagEmit    string
	flagNoCache bool
	flagNoLink  bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <module full name>",
	Short: "Compile a graph module to LLVM IR",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&flagOutput, "output", "o", "",
		"write the IR to this file instead of stdout")
	compileCmd.Flags().StringVarP(&flagEmit, "emit", "t", "ll",
		"output format; only \"ll\" (textual LLVM IR) is supported")
	compileCmd.Flags().BoolVar(&flagNoCache, "no-cache", false,
		"ignore and do not fill the module cache")
	compileCmd.Flags().BoolVar(&flagNoLink, "no-link", false,
		"emit declarations for dependencies instead of linking them in")
}

// newContext creates a context rooted in the current directory with the
// workspace cache and git fetcher wired in.
func newContext() (*graph.Context, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	ctx := graph.NewContext(wd)
	if !ctx.HasWorkspace() {
		return nil, errors.New("not inside a chigraph workspace (no " +
			graph.WorkspaceMarkerFileName + " found in any parent directory)")
	}

	ctx.SetModuleCache(cache.NewWorkspaceCache(ctx))
	ctx.SetFetcher(fetch.New(ctx.WorkspacePath()))

	return ctx, nil
}

// compileSettings folds the cache/link flags into compile settings.
func compileSettings() codegen.CompileSettings {
	settings := codegen.DefaultSettings
	if flagNoCache {
		settings &^= codegen.UseCache
	}
	if flagNoLink {
		settings &^= codegen.LinkDependencies
	}
	return settings
}

func runCompile(cmd *cobra.Command, args []string) error {
	if flagEmit != "ll" {
		return errors.New("unsupported emit format " + flagEmit +
			": only \"ll\" is available; pipe the IR through llc for object output")
	}

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

	out := os.Stdout
	if flagOutput != "" {
		out, err = os.Create(flagOutput)
		if err != nil {
			return err
		}
		defer out.Close()
	}

	if _, err := out.WriteString(llmod.String()); err != nil {
		return err
	}

	return nil
}
