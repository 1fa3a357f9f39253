package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/llir/llvm/ir"
	"golang.org/x/mod/module"

	"chi/report"
)

// WorkspaceMarkerFileName is the file marking the root of a workspace.
const WorkspaceMarkerFileName = ".chiworkspace"

// ModuleFileExtension is the extension of serialized graph modules.
const ModuleFileExtension = ".chimod"

// ModuleCache is the pluggable artifact store used by compile-module.  Keys
// are (full module name, structural hash); artifacts are compiled LLVM
// modules.  Implementations that share storage across Contexts must bring
// their own serialization discipline.
type ModuleCache interface {
	// Retrieve returns the cached artifact for the key, or nil.
	Retrieve(fullName string, hash string) *ir.Module

	// Cache stores an artifact under the key.
	Cache(fullName string, hash string, llmod *ir.Module) *report.Result

	// Invalidate drops any artifact stored for the module.
	Invalidate(fullName string)
}

// Fetcher produces the serialized JSON of a module that is neither loaded
// nor present in the workspace.  The standard implementation clones module
// repositories; it lives outside the core.
type Fetcher interface {
	Fetch(fullName string) ([]byte, *report.Result)
}

// Context is the process-scoped owner of loaded modules.  All mutation of a
// Context, its modules, and code generation against it must happen on one
// goroutine; distinct Contexts are independent.
type Context struct {
	workspacePath string

	modules    []Module
	langModule *LangModule

	// converters is the two-level (from, to) table of converter node types.
	converters map[string]map[string]NodeType

	moduleCache ModuleCache
	fetcher     Fetcher
}

// NewContext creates a context whose workspace is resolved by walking up
// from workPath.  The lang module is always loaded.
func NewContext(workPath string) *Context {
	ctx := &Context{
		workspacePath: WorkspaceFromChildPath(workPath),
		converters:    make(map[string]map[string]NodeType),
	}

	ctx.langModule = newLangModule(ctx)
	ctx.AddModule(ctx.langModule)

	return ctx
}

// WorkspacePath returns the workspace root, or "" if there is none.
func (ctx *Context) WorkspacePath() string { return ctx.workspacePath }

// HasWorkspace reports whether the context found a workspace.
func (ctx *Context) HasWorkspace() bool { return ctx.workspacePath != "" }

// LangModule returns the built-in lang module.
func (ctx *Context) LangModule() *LangModule { return ctx.langModule }

// ModuleCache returns the pluggable artifact cache, or nil.
func (ctx *Context) ModuleCache() ModuleCache { return ctx.moduleCache }

// SetModuleCache replaces the artifact cache.
func (ctx *Context) SetModuleCache(cache ModuleCache) { ctx.moduleCache = cache }

// SetFetcher installs the external module fetcher.
func (ctx *Context) SetFetcher(f Fetcher) { ctx.fetcher = f }

// Modules returns all loaded modules.
func (ctx *Context) Modules() []Module { return ctx.modules }

// ModuleByFullName returns the loaded module with the given full name, or
// nil.
func (ctx *Context) ModuleByFullName(fullName string) Module {
	for _, mod := range ctx.modules {
		if mod.FullName() == fullName {
			return mod
		}
	}
	return nil
}

// NewGraphModule creates a new empty graph module and registers it.
func (ctx *Context) NewGraphModule(fullName string) (*GraphModule, *report.Result) {
	res := &report.Result{}

	if strings.Contains(fullName, "/") {
		if err := module.CheckImportPath(fullName); err != nil {
			res.AddEntry("EUKN", "Invalid module full name", map[string]any{
				"Module Name": fullName,
				"Error":       err.Error(),
			})
			return nil, res
		}
	}

	mod := newGraphModule(ctx, fullName)
	if !ctx.AddModule(mod) {
		res.AddEntry("E31", "Duplicate module full name", map[string]any{
			"Module Name": fullName,
		})
		return nil, res
	}

	return mod, res
}

// AddModule registers a module, refusing duplicates.  Converter node types
// exposed by the module are collected into the converter table.
func (ctx *Context) AddModule(mod Module) bool {
	if ctx.ModuleByFullName(mod.FullName()) != nil {
		return false
	}

	for _, tyName := range mod.NodeTypeNames() {
		ty, res := mod.NodeTypeFromName(tyName, nil)
		if !res.Success() {
			// converter node types must be stateless
			continue
		}
		if !ty.Converter() {
			continue
		}

		from := ty.DataInputs()[0].Type.QualifiedName()
		to := ty.DataOutputs()[0].Type.QualifiedName()
		if ctx.converters[from] == nil {
			ctx.converters[from] = make(map[string]NodeType)
		}
		ctx.converters[from][to] = ty
	}

	ctx.modules = append(ctx.modules, mod)
	return true
}

// UnloadModule removes a module from the registry.  Modules depending on it
// are left loaded; their dependency references dangle until re-resolved.
func (ctx *Context) UnloadModule(fullName string) bool {
	for i, mod := range ctx.modules {
		if mod.FullName() == fullName {
			ctx.modules = append(ctx.modules[:i], ctx.modules[i+1:]...)
			return true
		}
	}
	return false
}

// LoadModule resolves a module by full name: already-loaded modules are
// returned as-is, then the workspace is consulted, then the fetcher.
// Dependencies are loaded recursively.
func (ctx *Context) LoadModule(fullName string) (Module, *report.Result) {
	if fullName == "" {
		panic("cannot load a module with an empty name")
	}

	res := &report.Result{}
	defer res.AddContext(map[string]any{"Requested Module Name": fullName})()

	if mod := ctx.ModuleByFullName(fullName); mod != nil {
		return mod, res
	}

	// find it in the workspace
	if ctx.HasWorkspace() {
		path := filepath.Join(ctx.workspacePath, "src", filepath.FromSlash(fullName)+ModuleFileExtension)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			raw, err := os.ReadFile(path)
			if err != nil {
				res.AddEntry("EUKN", "Failed to read module file", map[string]any{
					"Path":  path,
					"Error": err.Error(),
				})
				return nil, res
			}

			mod, loadRes := ctx.AddModuleFromJSON(fullName, raw)
			res.Join(loadRes)
			if !res.Success() {
				return nil, res
			}

			mod.SetLastEditTime(info.ModTime())
			return mod, res
		}
	}

	// ask the external fetcher
	if ctx.fetcher != nil {
		raw, fetchRes := ctx.fetcher.Fetch(fullName)
		res.Join(fetchRes)
		if !res.Success() {
			return nil, res
		}

		mod, loadRes := ctx.AddModuleFromJSON(fullName, raw)
		res.Join(loadRes)
		if !res.Success() {
			return nil, res
		}
		return mod, res
	}

	res.AddEntry("E30", "Failed to find module", map[string]any{
		"Workspace Path": ctx.workspacePath,
	})
	return nil, res
}

// AddModuleFromJSON hydrates a graph module from serialized JSON and
// registers it.  Returning an already-loaded module of the same name is not
// an error.
func (ctx *Context) AddModuleFromJSON(fullName string, raw []byte) (*GraphModule, *report.Result) {
	res := &report.Result{}
	defer res.AddContext(map[string]any{"Requested Module Name": fullName})()

	if existing := ctx.ModuleByFullName(fullName); existing != nil {
		if gm, ok := existing.(*GraphModule); ok {
			return gm, res
		}
		res.AddEntry("E31", "Duplicate module full name", map[string]any{"Module Name": fullName})
		return nil, res
	}

	mod, jsonRes := JSONToGraphModule(ctx, fullName, raw)
	res.Join(jsonRes)

	// if hydration failed partway, pull the module back out
	if !res.Success() && mod != nil {
		ctx.UnloadModule(mod.FullName())
		return nil, res
	}

	return mod, res
}

// TypeFromModule resolves `<moduleName>:<name>` across the loaded modules.
func (ctx *Context) TypeFromModule(moduleName, name string) (DataType, *report.Result) {
	res := &report.Result{}

	mod := ctx.ModuleByFullName(moduleName)
	if mod == nil {
		res.AddEntry("E30", "Could not find module", map[string]any{"module": moduleName})
		return DataType{}, res
	}

	ty := mod.TypeFromName(name)
	if !ty.Valid() {
		res.AddEntry("EUKN", "Could not find type in module", map[string]any{
			"type":   name,
			"module": moduleName,
		})
	}
	return ty, res
}

// NodeTypeFromModule resolves a node type across the loaded modules.
func (ctx *Context) NodeTypeFromModule(moduleName, typeName string, data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	mod := ctx.ModuleByFullName(moduleName)
	if mod == nil {
		res.AddEntry("E30", "Could not find module", map[string]any{"module": moduleName})
		return nil, res
	}

	ty, ntRes := mod.NodeTypeFromName(typeName, data)
	res.Join(ntRes)
	return ty, res
}

// CreateConverterNodeType returns a fresh converter node type for the
// (from, to) pair, or a NoConverter error if no conversion is declared.
func (ctx *Context) CreateConverterNodeType(from, to DataType) (NodeType, *report.Result) {
	res := &report.Result{}

	if toTable, ok := ctx.converters[from.QualifiedName()]; ok {
		if conv, ok := toTable[to.QualifiedName()]; ok {
			return conv.Clone(), res
		}
	}

	res.AddEntry("NoConverter", "No converter declared for the requested type pair", map[string]any{
		"From": from.QualifiedName(),
		"To":   to.QualifiedName(),
	})
	return nil, res
}

// FindInstancesOfType returns every node instance across all loaded graph
// modules whose type is `<moduleName>:<typeName>`.
func (ctx *Context) FindInstancesOfType(moduleName, typeName string) []*NodeInstance {
	var ret []*NodeInstance

	for _, mod := range ctx.modules {
		gm, ok := mod.(*GraphModule)
		if !ok {
			continue
		}

		for _, fn := range gm.functions {
			ret = append(ret, fn.NodesWithType(moduleName, typeName)...)
		}
	}

	return ret
}

// ListModulesInWorkspace lists the full names of every .chimod under the
// workspace src directory.
func (ctx *Context) ListModulesInWorkspace() []string {
	var ret []string

	srcDir := filepath.Join(ctx.workspacePath, "src")
	filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ModuleFileExtension {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return nil
		}

		rel = strings.TrimSuffix(rel, ModuleFileExtension)
		ret = append(ret, filepath.ToSlash(rel))
		return nil
	})

	return ret
}

// WorkspaceFromChildPath walks up from path until it finds a directory
// containing the workspace marker file.  It returns "" if there is none.
func WorkspaceFromChildPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	for {
		marker := filepath.Join(abs, WorkspaceMarkerFileName)
		if info, err := os.Stat(marker); err == nil && info.Mode().IsRegular() {
			return abs
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return ""
		}
		abs = parent
	}
}

// parseColonPair splits `module:name` at the last colon.
func parseColonPair(qualified string) (moduleName, name string) {
	idx := strings.LastIndexByte(qualified, ':')
	if idx == -1 {
		return "", qualified
	}
	return qualified[:idx], qualified[idx+1:]
}
