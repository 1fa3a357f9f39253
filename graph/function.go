package graph

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/llir/llvm/ir/types"

	"chi/report"
)

// GraphFunction is a named dataflow graph compiled to one LLVM function.  It
// owns its node instances by UUID; the ordered data inputs/outputs and exec
// inputs/outputs define the function signature.
type GraphFunction struct {
	module      *GraphModule
	name        string
	description string

	dataInputs  []NamedDataType
	dataOutputs []NamedDataType
	execInputs  []string
	execOutputs []string

	localVariables []NamedDataType

	nodes map[uuid.UUID]*NodeInstance
}

// newGraphFunction creates an empty graph function inside mod.
func newGraphFunction(mod *GraphModule, name string, dataIns, dataOuts []NamedDataType, execIns, execOuts []string) *GraphFunction {
	return &GraphFunction{
		module:      mod,
		name:        name,
		dataInputs:  dataIns,
		dataOutputs: dataOuts,
		execInputs:  execIns,
		execOutputs: execOuts,
		nodes:       make(map[uuid.UUID]*NodeInstance),
	}
}

// Module returns the graph module that owns the function.
func (fn *GraphFunction) Module() *GraphModule { return fn.module }

// Context returns the context that owns the function's module.
func (fn *GraphFunction) Context() *Context { return fn.module.Context() }

// Name returns the function name.
func (fn *GraphFunction) Name() string { return fn.name }

// QualifiedName returns `<module full name>:<function name>`.
func (fn *GraphFunction) QualifiedName() string { return fn.module.FullName() + ":" + fn.name }

// Description returns the function description.
func (fn *GraphFunction) Description() string { return fn.description }

// SetDescription updates the function description.
func (fn *GraphFunction) SetDescription(desc string) {
	fn.description = desc
	fn.module.UpdateLastEditTime()
}

// DataInputs returns the ordered data inputs of the signature.
func (fn *GraphFunction) DataInputs() []NamedDataType { return fn.dataInputs }

// DataOutputs returns the ordered data outputs of the signature.
func (fn *GraphFunction) DataOutputs() []NamedDataType { return fn.dataOutputs }

// ExecInputs returns the exec input names of the signature.
func (fn *GraphFunction) ExecInputs() []string { return fn.execInputs }

// ExecOutputs returns the exec output names of the signature.
func (fn *GraphFunction) ExecOutputs() []string { return fn.execOutputs }

// LocalVariables returns the function's named local variables.
func (fn *GraphFunction) LocalVariables() []NamedDataType { return fn.localVariables }

// Nodes returns the node instance table keyed by UUID.
func (fn *GraphFunction) Nodes() map[uuid.UUID]*NodeInstance { return fn.nodes }

// NodeByID returns the node with the given id, or nil.
func (fn *GraphFunction) NodeByID(id uuid.UUID) *NodeInstance { return fn.nodes[id] }

// NodesWithType returns all nodes whose type is `<moduleName>:<typeName>`.
func (fn *GraphFunction) NodesWithType(moduleName, typeName string) []*NodeInstance {
	var ret []*NodeInstance
	for _, node := range fn.nodes {
		if node.Type().Module().FullName() == moduleName && node.Type().Name() == typeName {
			ret = append(ret, node)
		}
	}
	return ret
}

// EntryNode returns the single lang:entry node whose signature matches the
// function's, or nil if there is none.
func (fn *GraphFunction) EntryNode() *NodeInstance {
	matching := fn.NodesWithType("lang", "entry")
	if len(matching) != 1 {
		return nil
	}

	entry := matching[0]

	// entry outputs are the function's data inputs
	outs := entry.Type().DataOutputs()
	if len(outs) != len(fn.dataInputs) {
		return nil
	}
	for i, in := range fn.dataInputs {
		if outs[i].Name != in.Name || !outs[i].Type.Equal(in.Type) {
			return nil
		}
	}

	execOuts := entry.Type().ExecOutputs()
	if len(execOuts) != len(fn.execInputs) {
		return nil
	}
	for i, name := range fn.execInputs {
		if execOuts[i] != name {
			return nil
		}
	}

	return entry
}

// InsertNode adds a node instance of the given type at (x, y) with the given
// id.
func (fn *GraphFunction) InsertNode(typ NodeType, x, y float64, id uuid.UUID) (*NodeInstance, *report.Result) {
	res := &report.Result{}

	fn.module.UpdateLastEditTime()

	if _, exists := fn.nodes[id]; exists {
		res.AddEntry("E47", "Cannot have two nodes with the same ID", map[string]any{
			"Requested ID": id.String(),
		})
		return nil, res
	}

	inst := newNodeInstance(fn, typ, x, y, id)
	fn.nodes[id] = inst

	return inst, res
}

// InsertNodeByName resolves `<moduleName>:<typeName>` through the context
// and inserts an instance of it.
func (fn *GraphFunction) InsertNodeByName(moduleName, typeName string, data json.RawMessage, x, y float64, id uuid.UUID) (*NodeInstance, *report.Result) {
	fn.module.UpdateLastEditTime()

	typ, res := fn.Context().NodeTypeFromModule(moduleName, typeName, data)
	if !res.Success() {
		return nil, res
	}

	inst, insertRes := fn.InsertNode(typ, x, y, id)
	res.Join(insertRes)
	return inst, res
}

// RemoveNode severs all of a node's edges and removes it from the function.
func (fn *GraphFunction) RemoveNode(node *NodeInstance) *report.Result {
	res := &report.Result{}

	fn.module.UpdateLastEditTime()

	for id := range node.InputExecConnections {
		for len(node.InputExecConnections[id]) > 0 {
			conn := node.InputExecConnections[id][0]
			res.Join(DisconnectExec(conn.Node, conn.Index))
		}
	}

	for id, conn := range node.OutputExecConnections {
		if conn.Node != nil {
			res.Join(DisconnectExec(node, id))
		}
	}

	for _, conn := range node.InputDataConnections {
		if conn.Node != nil {
			res.Join(DisconnectData(conn.Node, conn.Index, node))
		}
	}

	for id := range node.OutputDataConnections {
		for len(node.OutputDataConnections[id]) > 0 {
			res.Join(DisconnectData(node, id, node.OutputDataConnections[id][0].Node))
		}
	}

	delete(fn.nodes, node.ID())

	return res
}

// CreateEntryNodeType creates the lang:entry node type matching this
// function's signature.
func (fn *GraphFunction) CreateEntryNodeType() (NodeType, *report.Result) {
	return fn.Context().NodeTypeFromModule("lang", "entry",
		portsJSON(fn.dataInputs, fn.execInputs))
}

// CreateExitNodeType creates the lang:exit node type matching this
// function's signature.
func (fn *GraphFunction) CreateExitNodeType() (NodeType, *report.Result) {
	return fn.Context().NodeTypeFromModule("lang", "exit",
		portsJSON(fn.dataOutputs, fn.execOutputs))
}

// GetOrInsertEntryNode returns the function's entry node, creating one at
// (x, y) if the function has none.
func (fn *GraphFunction) GetOrInsertEntryNode(x, y float64, id uuid.UUID) (*NodeInstance, *report.Result) {
	res := &report.Result{}

	if entry := fn.EntryNode(); entry != nil {
		return entry, res
	}

	fn.module.UpdateLastEditTime()

	entryType, res := fn.CreateEntryNodeType()
	if !res.Success() {
		return nil, res
	}

	inst, insertRes := fn.InsertNode(entryType, x, y, id)
	res.Join(insertRes)
	return inst, res
}

// FunctionType returns the signature of the generated LLVM function:
// i32(i32 inputexec_id, <data inputs>, <data outputs by pointer>).
func (fn *GraphFunction) FunctionType() *types.FuncType {
	params := make([]types.Type, 0, 1+len(fn.dataInputs)+len(fn.dataOutputs))

	params = append(params, types.I32)
	for _, in := range fn.dataInputs {
		params = append(params, in.Type.LLVMType())
	}
	for _, out := range fn.dataOutputs {
		params = append(params, types.NewPointer(out.Type.LLVMType()))
	}

	return types.NewFunc(types.I32, params...)
}

// -----------------------------------------------------------------------------

// AddDataInput appends (or inserts before addBefore) a data input and
// re-types the entry node.
func (fn *GraphFunction) AddDataInput(ty DataType, name string, addBefore int) {
	fn.module.UpdateLastEditTime()

	fn.dataInputs = insertNamed(fn.dataInputs, NamedDataType{Name: name, Type: ty}, addBefore)
	fn.updateEntries()
}

// RemoveDataInput removes the data input at idx.
func (fn *GraphFunction) RemoveDataInput(idx int) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataInputs) {
		fn.dataInputs = append(fn.dataInputs[:idx], fn.dataInputs[idx+1:]...)
	}
	fn.updateEntries()
}

// RenameDataInput renames the data input at idx.
func (fn *GraphFunction) RenameDataInput(idx int, newName string) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataInputs) {
		fn.dataInputs[idx].Name = newName
	}
	fn.updateEntries()
}

// RetypeDataInput changes the type of the data input at idx.
func (fn *GraphFunction) RetypeDataInput(idx int, newType DataType) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataInputs) {
		fn.dataInputs[idx].Type = newType
	}
	fn.updateEntries()
}

// AddDataOutput appends (or inserts before addBefore) a data output and
// re-types the exit nodes.
func (fn *GraphFunction) AddDataOutput(ty DataType, name string, addBefore int) {
	fn.module.UpdateLastEditTime()

	fn.dataOutputs = insertNamed(fn.dataOutputs, NamedDataType{Name: name, Type: ty}, addBefore)
	fn.updateExits()
}

// RemoveDataOutput removes the data output at idx.
func (fn *GraphFunction) RemoveDataOutput(idx int) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataOutputs) {
		fn.dataOutputs = append(fn.dataOutputs[:idx], fn.dataOutputs[idx+1:]...)
	}
	fn.updateExits()
}

// RenameDataOutput renames the data output at idx.
func (fn *GraphFunction) RenameDataOutput(idx int, newName string) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataOutputs) {
		fn.dataOutputs[idx].Name = newName
	}
	fn.updateExits()
}

// RetypeDataOutput changes the type of the data output at idx.
func (fn *GraphFunction) RetypeDataOutput(idx int, newType DataType) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.dataOutputs) {
		fn.dataOutputs[idx].Type = newType
	}
	fn.updateExits()
}

// AddExecInput appends (or inserts before addBefore) an exec input.
func (fn *GraphFunction) AddExecInput(name string, addBefore int) {
	fn.module.UpdateLastEditTime()

	fn.execInputs = insertString(fn.execInputs, name, addBefore)
	fn.updateEntries()
}

// RemoveExecInput removes the exec input at idx.
func (fn *GraphFunction) RemoveExecInput(idx int) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.execInputs) {
		fn.execInputs = append(fn.execInputs[:idx], fn.execInputs[idx+1:]...)
	}
	fn.updateEntries()
}

// RenameExecInput renames the exec input at idx.
func (fn *GraphFunction) RenameExecInput(idx int, name string) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.execInputs) {
		fn.execInputs[idx] = name
	}
	fn.updateEntries()
}

// AddExecOutput appends (or inserts before addBefore) an exec output.
func (fn *GraphFunction) AddExecOutput(name string, addBefore int) {
	fn.module.UpdateLastEditTime()

	fn.execOutputs = insertString(fn.execOutputs, name, addBefore)
	fn.updateExits()
}

// RemoveExecOutput removes the exec output at idx.
func (fn *GraphFunction) RemoveExecOutput(idx int) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.execOutputs) {
		fn.execOutputs = append(fn.execOutputs[:idx], fn.execOutputs[idx+1:]...)
	}
	fn.updateExits()
}

// RenameExecOutput renames the exec output at idx.
func (fn *GraphFunction) RenameExecOutput(idx int, name string) {
	fn.module.UpdateLastEditTime()

	if idx < len(fn.execOutputs) {
		fn.execOutputs[idx] = name
	}
	fn.updateExits()
}

// updateEntries re-types every lang:entry node to the current signature.
func (fn *GraphFunction) updateEntries() {
	for _, entry := range fn.NodesWithType("lang", "entry") {
		entryType, res := fn.CreateEntryNodeType()
		if !res.Success() {
			return
		}
		entry.SetType(entryType)
	}
}

// updateExits re-types every lang:exit node to the current signature.
func (fn *GraphFunction) updateExits() {
	for _, exit := range fn.NodesWithType("lang", "exit") {
		exitType, res := fn.CreateExitNodeType()
		if !res.Success() {
			return
		}
		exit.SetType(exitType)
	}
}

// -----------------------------------------------------------------------------

// LocalVariableFromName returns the named local variable, or an invalid
// NamedDataType if there is none.
func (fn *GraphFunction) LocalVariableFromName(name string) NamedDataType {
	for _, local := range fn.localVariables {
		if local.Name == name {
			return local
		}
	}
	return NamedDataType{}
}

// GetOrCreateLocalVariable returns the named local, creating it with the
// given type if it does not exist.  The boolean reports whether a new local
// was inserted.
func (fn *GraphFunction) GetOrCreateLocalVariable(name string, ty DataType) (NamedDataType, bool) {
	if local := fn.LocalVariableFromName(name); local.Valid() {
		return local, false
	}

	fn.module.UpdateLastEditTime()

	local := NamedDataType{Name: name, Type: ty}
	fn.localVariables = append(fn.localVariables, local)
	return local, true
}

// RemoveLocalVariable removes the named local along with all of its _get_
// and _set_ nodes.  It reports whether the local existed.
func (fn *GraphFunction) RemoveLocalVariable(name string) bool {
	found := -1
	for i, local := range fn.localVariables {
		if local.Name == name {
			found = i
			break
		}
	}
	if found == -1 {
		return false
	}

	fn.module.UpdateLastEditTime()
	fn.localVariables = append(fn.localVariables[:found], fn.localVariables[found+1:]...)

	for _, node := range fn.NodesWithType(fn.module.FullName(), "_set_"+name) {
		fn.RemoveNode(node)
	}
	for _, node := range fn.NodesWithType(fn.module.FullName(), "_get_"+name) {
		fn.RemoveNode(node)
	}

	return true
}

// RenameLocalVariable renames a local and re-types its access nodes.
func (fn *GraphFunction) RenameLocalVariable(oldName, newName string) {
	fn.module.UpdateLastEditTime()

	renamed := false
	for i := range fn.localVariables {
		if fn.localVariables[i].Name == oldName {
			fn.localVariables[i].Name = newName
			renamed = true
			break
		}
	}
	if !renamed {
		return
	}

	fn.retypeAccessNodes("_set_"+oldName, "_set_"+newName)
	fn.retypeAccessNodes("_get_"+oldName, "_get_"+newName)
}

// RetypeLocalVariable changes a local's type and re-types its access nodes.
func (fn *GraphFunction) RetypeLocalVariable(name string, newType DataType) {
	fn.module.UpdateLastEditTime()

	for i := range fn.localVariables {
		if fn.localVariables[i].Name == name {
			fn.localVariables[i].Type = newType
			break
		}
	}

	fn.retypeAccessNodes("_set_"+name, "_set_"+name)
	fn.retypeAccessNodes("_get_"+name, "_get_"+name)
}

// retypeAccessNodes replaces the type of every node typed oldTypeName with a
// freshly resolved newTypeName.
func (fn *GraphFunction) retypeAccessNodes(oldTypeName, newTypeName string) {
	for _, node := range fn.NodesWithType(fn.module.FullName(), oldTypeName) {
		ty, res := fn.module.NodeTypeFromName(newTypeName, node.Type().JSON())
		if !res.Success() {
			return
		}
		node.SetType(ty)
	}
}

// SetName renames the function.  If updateReferences is set, every call node
// referencing it across the context is re-typed; the updated nodes are
// returned.
func (fn *GraphFunction) SetName(newName string, updateReferences bool) []*NodeInstance {
	fn.module.UpdateLastEditTime()

	oldName := fn.name
	fn.name = newName

	if !updateReferences {
		return nil
	}

	toUpdate := fn.Context().FindInstancesOfType(fn.module.FullName(), oldName)
	for _, node := range toUpdate {
		ty, res := fn.Context().NodeTypeFromModule(fn.module.FullName(), newName, nil)
		if !res.Success() {
			return nil
		}
		node.SetType(ty)
	}

	return toUpdate
}

// -----------------------------------------------------------------------------

func insertNamed(list []NamedDataType, elem NamedDataType, before int) []NamedDataType {
	if before >= len(list) {
		return append(list, elem)
	}
	list = append(list, NamedDataType{})
	copy(list[before+1:], list[before:])
	list[before] = elem
	return list
}

func insertString(list []string, elem string, before int) []string {
	if before >= len(list) {
		return append(list, elem)
	}
	list = append(list, "")
	copy(list[before+1:], list[before:])
	list[before] = elem
	return list
}
