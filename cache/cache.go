// Package cache implements the default workspace-backed module cache:
// compiled modules are stored as textual LLVM IR under <workspace>/lib,
// keyed by the module's structural hash.
package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"

	"chi/graph"
	"chi/report"
)

// WorkspaceCache is the default graph.ModuleCache implementation.  An
// artifact is fresh iff the hash recorded beside it matches the requested
// structural hash; stale artifacts are overwritten on the next Cache call.
type WorkspaceCache struct {
	ctx *graph.Context
}

// NewWorkspaceCache creates a cache rooted in ctx's workspace.
func NewWorkspaceCache(ctx *graph.Context) *WorkspaceCache {
	return &WorkspaceCache{ctx: ctx}
}

// artifactPath returns the path of a module's cached IR.
func (c *WorkspaceCache) artifactPath(fullName string) string {
	return filepath.Join(c.ctx.WorkspacePath(), "lib", filepath.FromSlash(fullName)+".ll")
}

// hashPath returns the path of the hash recorded beside an artifact.
func (c *WorkspaceCache) hashPath(fullName string) string {
	return c.artifactPath(fullName) + ".hash"
}

// Retrieve returns the cached module if its recorded hash matches, or nil.
func (c *WorkspaceCache) Retrieve(fullName string, hash string) *ir.Module {
	if !c.ctx.HasWorkspace() || hash == "" {
		return nil
	}

	recorded, err := os.ReadFile(c.hashPath(fullName))
	if err != nil || strings.TrimSpace(string(recorded)) != hash {
		return nil
	}

	llmod, err := asm.ParseFile(c.artifactPath(fullName))
	if err != nil {
		return nil
	}
	return llmod
}

// Cache stores an artifact and its hash.
func (c *WorkspaceCache) Cache(fullName string, hash string, llmod *ir.Module) *report.Result {
	res := &report.Result{}

	if !c.ctx.HasWorkspace() || hash == "" {
		return res
	}

	path := c.artifactPath(fullName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		res.AddEntry("EUKN", "Failed to create cache directories", map[string]any{
			"Path":  path,
			"Error": err.Error(),
		})
		return res
	}

	if err := os.WriteFile(path, []byte(llmod.String()), 0o644); err != nil {
		res.AddEntry("EUKN", "Failed to write cache artifact", map[string]any{
			"Path":  path,
			"Error": err.Error(),
		})
		return res
	}

	if err := os.WriteFile(c.hashPath(fullName), []byte(hash+"\n"), 0o644); err != nil {
		res.AddEntry("EUKN", "Failed to write cache hash", map[string]any{
			"Path":  c.hashPath(fullName),
			"Error": err.Error(),
		})
	}

	return res
}

// Invalidate removes a module's artifact.
func (c *WorkspaceCache) Invalidate(fullName string) {
	os.Remove(c.artifactPath(fullName))
	os.Remove(c.hashPath(fullName))
}
