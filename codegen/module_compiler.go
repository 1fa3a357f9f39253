package codegen

import (
	"encoding/hex"
	"encoding/json"
	"path/filepath"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"lukechampine.com/blake3"

	"chi/graph"
	"chi/report"
)

// CompileSettings selects what CompileModule produces.
type CompileSettings uint

const (
	// UseCache consults (and fills) the context's module cache.
	UseCache CompileSettings = 1 << iota

	// LinkDependencies folds every transitive dependency into the result,
	// producing a self-contained module.  Without it only declarations for
	// external symbols are emitted.
	LinkDependencies
)

// DefaultSettings is what the CLI compiles with.
const DefaultSettings = UseCache | LinkDependencies

// moduleCompiler is the per-invocation state of one CompileModule call.
// generated prevents a dependency from being folded in twice when the
// dependency graph is a diamond.
type moduleCompiler struct {
	ctx      *graph.Context
	settings CompileSettings

	generated map[string]bool
}

// CompileModule compiles a loaded module (by full name) into a fresh LLVM
// module according to the settings.
func CompileModule(ctx *graph.Context, fullName string, settings CompileSettings) (*ir.Module, *report.Result) {
	res := &report.Result{}

	mod := ctx.ModuleByFullName(fullName)
	if mod == nil {
		res.AddEntry("E30", "Could not find module", map[string]any{"module": fullName})
		return nil, res
	}

	return CompileLoadedModule(ctx, mod, settings)
}

// CompileLoadedModule compiles a module value into a fresh LLVM module.
func CompileLoadedModule(ctx *graph.Context, mod graph.Module, settings CompileSettings) (*ir.Module, *report.Result) {
	res := &report.Result{}
	defer res.AddContext(map[string]any{"Module Name": mod.FullName()})()

	mc := &moduleCompiler{
		ctx:       ctx,
		settings:  settings,
		generated: make(map[string]bool),
	}

	hash := StructuralHash(mod, settings)

	// try the pluggable artifact cache first
	if settings&UseCache != 0 && ctx.ModuleCache() != nil && hash != "" {
		if llmod := ctx.ModuleCache().Retrieve(mod.FullName(), hash); llmod != nil {
			return llmod, res
		}
	}

	llmod := ir.NewModule()
	llmod.SourceFilename = mod.FullName()

	// declarations for every symbol the module graph can reference
	res.Join(mod.AddForwardDeclarations(llmod))
	for _, dep := range transitiveDependencies(ctx, mod, res) {
		res.Join(dep.AddForwardDeclarations(llmod))
	}
	if !res.Success() {
		return nil, res
	}

	res.Join(mc.generateInto(mod, llmod))
	if !res.Success() {
		return nil, res
	}

	if settings&LinkDependencies != 0 {
		for _, dep := range transitiveDependencies(ctx, mod, res) {
			res.Join(mc.generateInto(dep, llmod))
			if !res.Success() {
				return nil, res
			}
		}
	}

	if settings&UseCache != 0 && ctx.ModuleCache() != nil && hash != "" {
		res.Join(ctx.ModuleCache().Cache(mod.FullName(), hash, llmod))
	}

	return llmod, res
}

// generateInto emits a module's function bodies into llmod.  Declarations
// created earlier become definitions in place, so call sites bind to the
// same function values.  Each module is generated at most once per
// invocation.
func (mc *moduleCompiler) generateInto(mod graph.Module, llmod *ir.Module) *report.Result {
	res := &report.Result{}

	if mc.generated[mod.FullName()] {
		return res
	}
	mc.generated[mod.FullName()] = true

	gm, ok := mod.(*graph.GraphModule)
	if !ok {
		// built-in modules expand entirely inline
		return res
	}

	diFile := &metadata.DIFile{
		Filename:  filepath.Base(gm.SourceFilePath()),
		Directory: filepath.Dir(gm.SourceFilePath()),
	}
	diUnit := &metadata.DICompileUnit{
		Language: enum.DwarfLangC,
		File:     diFile,
		Producer: "chi compiler",
	}
	graph.RegisterMetadata(llmod, diFile)
	graph.RegisterMetadata(llmod, diUnit)

	nodeLines := gm.CreateLineNumberAssoc()

	for _, fn := range gm.Functions() {
		res.Join(CompileGraphFunction(fn, llmod, diUnit, diFile, nodeLines))
		if !res.Success() {
			return res
		}
	}

	return res
}

// transitiveDependencies returns every module reachable through dependency
// references, each once, in BFS order.  Missing dependencies add E30
// entries.
func transitiveDependencies(ctx *graph.Context, mod graph.Module, res *report.Result) []graph.Module {
	var ret []graph.Module

	added := map[string]bool{mod.FullName(): true}
	queue := append([]string{}, mod.Dependencies()...)
	for _, dep := range mod.Dependencies() {
		added[dep] = true
	}

	for len(queue) > 0 {
		depName := queue[0]
		queue = queue[1:]

		depMod := ctx.ModuleByFullName(depName)
		if depMod == nil {
			res.AddEntry("E30", "Could not find module", map[string]any{"module": depName})
			continue
		}

		ret = append(ret, depMod)

		for _, sub := range depMod.Dependencies() {
			if !added[sub] {
				added[sub] = true
				queue = append(queue, sub)
			}
		}
	}

	return ret
}

// StructuralHash hashes a module's canonical JSON together with the hashes
// of its dependencies and the compile settings.  Modules that do not
// serialize (the built-ins) hash to their full name.
func StructuralHash(mod graph.Module, settings CompileSettings) string {
	h := blake3.New(32, nil)

	gm, ok := mod.(*graph.GraphModule)
	if !ok {
		h.Write([]byte(mod.FullName()))
		sum := h.Sum(nil)
		return hex.EncodeToString(sum)
	}

	raw, err := json.Marshal(graph.GraphModuleToJSON(gm))
	if err != nil {
		return ""
	}
	h.Write(raw)

	for _, depName := range mod.Dependencies() {
		if depMod := mod.Context().ModuleByFullName(depName); depMod != nil {
			h.Write([]byte(StructuralHash(depMod, settings)))
		}
	}

	h.Write([]byte{byte(settings)})

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
