package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/llir/llvm/ir"

	"chi/report"
)

// Module is a named unit of types and node types loaded into a Context.  The
// built-in lang module and user GraphModules both implement it.
type Module interface {
	// Context returns the owning context.
	Context() *Context

	// FullName returns the slash-separated module path, e.g.
	// `github.com/user/repo/sub`.
	FullName() string

	// ShortName returns the last segment of the full name.
	ShortName() string

	// Dependencies returns the full names of the module's dependencies.
	Dependencies() []string

	// TypeFromName resolves a short type name declared by the module.  The
	// result is invalid if the module declares no such type.
	TypeFromName(name string) DataType

	// TypeNames lists the type names the module declares.
	TypeNames() []string

	// NodeTypeFromName resolves a node type by name, hydrating it from the
	// given JSON payload.
	NodeTypeFromName(name string, data json.RawMessage) (NodeType, *report.Result)

	// NodeTypeNames lists the node type names the module exposes.
	NodeTypeNames() []string

	// AddForwardDeclarations emits declarations for the module's external
	// symbols into llmod.
	AddForwardDeclarations(llmod *ir.Module) *report.Result

	// LastEditTime returns the time of the module's last edit.  Cache
	// freshness does not use it; the cache is keyed by structural hash.
	LastEditTime() time.Time

	// UpdateLastEditTime stamps the module as edited now.
	UpdateLastEditTime()
}

// moduleBase carries the state shared by all module implementations.
type moduleBase struct {
	context      *Context
	fullName     string
	dependencies []string
	lastEdit     time.Time
}

func (mb *moduleBase) Context() *Context      { return mb.context }
func (mb *moduleBase) FullName() string       { return mb.fullName }
func (mb *moduleBase) Dependencies() []string { return mb.dependencies }

func (mb *moduleBase) ShortName() string {
	if idx := strings.LastIndexByte(mb.fullName, '/'); idx != -1 {
		return mb.fullName[idx+1:]
	}
	return mb.fullName
}

func (mb *moduleBase) LastEditTime() time.Time { return mb.lastEdit }
func (mb *moduleBase) UpdateLastEditTime()     { mb.lastEdit = time.Now() }

// SetLastEditTime overrides the edit timestamp, e.g. with the mtime of the
// module file it was loaded from.
func (mb *moduleBase) SetLastEditTime(t time.Time) { mb.lastEdit = t }

// -----------------------------------------------------------------------------

// GraphModule is a user module: a set of graph functions and structs plus
// dependency references, persisted as a single .chimod JSON file.
type GraphModule struct {
	moduleBase

	functions []*GraphFunction
	structs   []*GraphStruct
}

// newGraphModule creates an empty graph module; use Context.NewGraphModule.
func newGraphModule(ctx *Context, fullName string) *GraphModule {
	return &GraphModule{moduleBase: moduleBase{context: ctx, fullName: fullName}}
}

// AddDependency records (and loads) a dependency by full name.
func (m *GraphModule) AddDependency(fullName string) *report.Result {
	for _, dep := range m.dependencies {
		if dep == fullName {
			return &report.Result{}
		}
	}

	_, res := m.context.LoadModule(fullName)
	if res.Success() {
		m.dependencies = append(m.dependencies, fullName)
		m.UpdateLastEditTime()
	}
	return res
}

// RemoveDependency removes a dependency reference.  It reports whether the
// dependency was present.  The dependency module itself stays loaded.
func (m *GraphModule) RemoveDependency(fullName string) bool {
	for i, dep := range m.dependencies {
		if dep == fullName {
			m.dependencies = append(m.dependencies[:i], m.dependencies[i+1:]...)
			m.UpdateLastEditTime()
			return true
		}
	}
	return false
}

// Functions returns the module's graph functions.
func (m *GraphModule) Functions() []*GraphFunction { return m.functions }

// Structs returns the module's structs.
func (m *GraphModule) Structs() []*GraphStruct { return m.structs }

// FunctionFromName returns the named function, or nil.
func (m *GraphModule) FunctionFromName(name string) *GraphFunction {
	for _, fn := range m.functions {
		if fn.name == name {
			return fn
		}
	}
	return nil
}

// GetOrCreateFunction returns the named function, creating it with the given
// signature if absent.  The boolean reports whether a function was created.
func (m *GraphModule) GetOrCreateFunction(name string, dataIns, dataOuts []NamedDataType, execIns, execOuts []string) (*GraphFunction, bool) {
	if fn := m.FunctionFromName(name); fn != nil {
		return fn, false
	}

	m.UpdateLastEditTime()

	fn := newGraphFunction(m, name, dataIns, dataOuts, execIns, execOuts)
	m.functions = append(m.functions, fn)
	return fn, true
}

// RemoveFunction removes a function.  If deleteReferences is set, every call
// node referencing it across the context is removed first.
func (m *GraphModule) RemoveFunction(fn *GraphFunction, deleteReferences bool) {
	m.UpdateLastEditTime()

	if deleteReferences {
		for _, node := range m.context.FindInstancesOfType(m.fullName, fn.name) {
			node.Function().RemoveNode(node)
		}
	}

	for i, candidate := range m.functions {
		if candidate == fn {
			m.functions = append(m.functions[:i], m.functions[i+1:]...)
			return
		}
	}
}

// StructFromName returns the named struct, or nil.
func (m *GraphModule) StructFromName(name string) *GraphStruct {
	for _, s := range m.structs {
		if s.name == name {
			return s
		}
	}
	return nil
}

// GetOrCreateStruct returns the named struct, creating it if absent.  The
// boolean reports whether a struct was created.
func (m *GraphModule) GetOrCreateStruct(name string) (*GraphStruct, bool) {
	if s := m.StructFromName(name); s != nil {
		return s, false
	}

	m.UpdateLastEditTime()

	s := newGraphStruct(m, name)
	m.structs = append(m.structs, s)
	return s, true
}

// RemoveStruct removes the named struct.  It reports whether it existed.
func (m *GraphModule) RemoveStruct(name string) bool {
	m.UpdateLastEditTime()

	for i, s := range m.structs {
		if s.name == name {
			m.structs = append(m.structs[:i], m.structs[i+1:]...)
			return true
		}
	}
	return false
}

// TypeFromName resolves a struct's synthesised DataType.
func (m *GraphModule) TypeFromName(name string) DataType {
	s := m.StructFromName(name)
	if s == nil {
		return DataType{}
	}
	return s.DataType()
}

// TypeNames lists the module's struct names.
func (m *GraphModule) TypeNames() []string {
	ret := make([]string, 0, len(m.structs))
	for _, s := range m.structs {
		ret = append(ret, s.name)
	}
	return ret
}

// NodeTypeNames lists the node types exposed by the module: one per function
// plus _make_/_break_ per struct.
func (m *GraphModule) NodeTypeNames() []string {
	var ret []string
	for _, fn := range m.functions {
		ret = append(ret, fn.name)
	}
	for _, s := range m.structs {
		ret = append(ret, "_make_"+s.name, "_break_"+s.name)
	}
	return ret
}

// NodeTypeFromName resolves a node type exposed by the module: a graph
// function call, `_make_<S>`, `_break_<S>`, `_get_<var>`, or `_set_<var>`.
func (m *GraphModule) NodeTypeFromName(name string, data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	if fn := m.FunctionFromName(name); fn != nil {
		return newFunctionCallNodeType(fn), res
	}

	if rest, ok := strings.CutPrefix(name, "_make_"); ok {
		if s := m.StructFromName(rest); s != nil {
			return newMakeStructNodeType(s), res
		}
	}
	if rest, ok := strings.CutPrefix(name, "_break_"); ok {
		if s := m.StructFromName(rest); s != nil {
			return newBreakStructNodeType(s), res
		}
	}
	if rest, ok := strings.CutPrefix(name, "_get_"); ok {
		ty, tyRes := m.localTypeFromJSON(data)
		res.Join(tyRes)
		if !res.Success() {
			return nil, res
		}
		return newGetLocalNodeType(m, NamedDataType{Name: rest, Type: ty}), res
	}
	if rest, ok := strings.CutPrefix(name, "_set_"); ok {
		ty, tyRes := m.localTypeFromJSON(data)
		res.Join(tyRes)
		if !res.Success() {
			return nil, res
		}
		return newSetLocalNodeType(m, NamedDataType{Name: rest, Type: ty}), res
	}

	res.AddEntry("EUKN", "Node type not found in module", map[string]any{
		"Module Name":    m.fullName,
		"Requested Type": name,
	})
	return nil, res
}

// localTypeFromJSON decodes the qualified type name payload of a
// _get_/_set_ node type.
func (m *GraphModule) localTypeFromJSON(data json.RawMessage) (DataType, *report.Result) {
	res := &report.Result{}

	var qualified string
	if err := json.Unmarshal(data, &qualified); err != nil {
		res.AddEntry("EUKN", "Data for a local access node type must be a string", map[string]any{
			"Given Data": string(data),
		})
		return DataType{}, res
	}

	moduleName, typeName := parseColonPair(qualified)
	return m.context.TypeFromModule(moduleName, typeName)
}

// AddForwardDeclarations declares every function of the module into llmod.
func (m *GraphModule) AddForwardDeclarations(llmod *ir.Module) *report.Result {
	for _, fn := range m.functions {
		GetOrInsertFunction(llmod, MangleFunctionName(m.fullName, fn.name), fn.FunctionType())
	}
	return &report.Result{}
}

// CreateLineNumberAssoc assigns a deterministic source line to every node in
// the module: nodes are sorted by `<function name>:<uuid>` and numbered from
// 1.
func (m *GraphModule) CreateLineNumberAssoc() map[*NodeInstance]int {
	var nodes []*NodeInstance
	for _, fn := range m.functions {
		for _, node := range fn.nodes {
			nodes = append(nodes, node)
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		lhs := nodes[i].Function().Name() + ":" + nodes[i].StringID()
		rhs := nodes[j].Function().Name() + ":" + nodes[j].StringID()
		return lhs < rhs
	})

	ret := make(map[*NodeInstance]int, len(nodes))
	for i, node := range nodes {
		ret[node] = i + 1
	}
	return ret
}

// SourceFilePath returns the workspace path of the module's .chimod file.
func (m *GraphModule) SourceFilePath() string {
	return filepath.Join(m.context.WorkspacePath(), "src", filepath.FromSlash(m.fullName)+".chimod")
}

// SaveToDisk serializes the module into its workspace .chimod file.
func (m *GraphModule) SaveToDisk() *report.Result {
	res := &report.Result{}

	if !m.context.HasWorkspace() {
		res.AddEntry("EUKN", "Cannot serialize a module without a workspace", nil)
		return res
	}

	path := m.SourceFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		res.AddEntry("EUKN", "Failed to create directories in workspace", map[string]any{
			"Module File": path,
			"Error":       err.Error(),
		})
		return res
	}

	raw, err := json.MarshalIndent(GraphModuleToJSON(m), "", "  ")
	if err != nil {
		res.AddEntry("EUKN", "Failed to serialize module", map[string]any{"Error": err.Error()})
		return res
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		res.AddEntry("EUKN", "Failed to write module file", map[string]any{
			"Module File": path,
			"Error":       err.Error(),
		})
	}
	return res
}
