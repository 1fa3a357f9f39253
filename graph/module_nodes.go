package graph

import (
	"encoding/json"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"chi/report"
)

// Node types exposed by graph modules: graph-function calls, struct
// pack/unpack, and local variable access.

// GetOrInsertFunction returns the function named name in llmod, declaring it
// with the given signature if absent.
func GetOrInsertFunction(llmod *ir.Module, name string, sig *types.FuncType) *ir.Func {
	for _, f := range llmod.Funcs {
		if f.Name() == name {
			return f
		}
	}

	params := make([]*ir.Param, 0, len(sig.Params))
	for _, p := range sig.Params {
		params = append(params, ir.NewParam("", p))
	}
	return llmod.NewFunc(name, sig.RetType, params...)
}

// -----------------------------------------------------------------------------

// functionCallNodeType calls another graph function: it forwards the node's
// exec input id and data ports, then switches on the returned exit id to
// pick the output exec port.
type functionCallNodeType struct {
	nodeTypeBase
	fn *GraphFunction
}

func newFunctionCallNodeType(fn *GraphFunction) *functionCallNodeType {
	return &functionCallNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      fn.Module(),
			name:        fn.Name(),
			description: fn.Description(),
			dataInputs:  fn.DataInputs(),
			dataOutputs: fn.DataOutputs(),
			execInputs:  fn.ExecInputs(),
			execOutputs: fn.ExecOutputs(),
		},
		fn: fn,
	}
}

func (nt *functionCallNodeType) Clone() NodeType      { return newFunctionCallNodeType(nt.fn) }
func (nt *functionCallNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *functionCallNodeType) Codegen(call *CodegenCall) *report.Result {
	res := &report.Result{}

	mangled := MangleFunctionName(nt.module.FullName(), nt.name)
	callee := GetOrInsertFunction(call.Compiler.LLModule(), mangled, nt.fn.FunctionType())

	args := make([]value.Value, 0, len(call.IO)+1)
	args = append(args, constant.NewInt(types.I32, int64(call.InputExecID)))
	args = append(args, call.IO...)

	ret := call.Block.NewCall(callee, args...)

	cases := make([]*ir.Case, 0, len(call.OutputBlocks))
	for id, out := range call.OutputBlocks {
		cases = append(cases, ir.NewCase(constant.NewInt(types.I32, int64(id)), out))
	}
	call.Block.NewSwitch(ret, call.OutputBlocks[0], cases...)

	return res
}

// -----------------------------------------------------------------------------

// makeStructNodeType packs field values into a struct value.  Pure.
type makeStructNodeType struct {
	nodeTypeBase
	strct *GraphStruct
}

func newMakeStructNodeType(s *GraphStruct) *makeStructNodeType {
	return &makeStructNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      s.Module(),
			name:        "_make_" + s.Name(),
			description: "Make a " + s.Name() + " structure",
			pure:        true,
			dataInputs:  s.Fields(),
			dataOutputs: []NamedDataType{{Type: s.DataType()}},
		},
		strct: s,
	}
}

func (nt *makeStructNodeType) Clone() NodeType       { return newMakeStructNodeType(nt.strct) }
func (nt *makeStructNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *makeStructNodeType) Codegen(call *CodegenCall) *report.Result {
	out := call.IO[len(call.IO)-1]
	structType := nt.strct.DataType().LLVMType()

	for id := 0; id < len(call.IO)-1; id++ {
		ptr := call.Block.NewGetElementPtr(structType, out,
			constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(id)))
		call.Block.NewStore(call.IO[id], ptr)
	}

	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// -----------------------------------------------------------------------------

// breakStructNodeType unpacks a struct value into its fields.  Pure.
type breakStructNodeType struct {
	nodeTypeBase
	strct *GraphStruct
}

func newBreakStructNodeType(s *GraphStruct) *breakStructNodeType {
	return &breakStructNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      s.Module(),
			name:        "_break_" + s.Name(),
			description: "Break a " + s.Name() + " structure",
			pure:        true,
			dataInputs:  []NamedDataType{{Type: s.DataType()}},
			dataOutputs: s.Fields(),
		},
		strct: s,
	}
}

func (nt *breakStructNodeType) Clone() NodeType       { return newBreakStructNodeType(nt.strct) }
func (nt *breakStructNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *breakStructNodeType) Codegen(call *CodegenCall) *report.Result {
	structType := nt.strct.DataType().LLVMType()

	tmp := call.Block.NewAlloca(structType)
	call.Block.NewStore(call.IO[0], tmp)

	for id := 1; id < len(call.IO); id++ {
		fieldType := nt.strct.Fields()[id-1].Type.LLVMType()
		ptr := call.Block.NewGetElementPtr(structType, tmp,
			constant.NewInt(types.I32, 0), constant.NewInt(types.I32, int64(id-1)))
		val := call.Block.NewLoad(fieldType, ptr)
		call.Block.NewStore(val, call.IO[id])
	}

	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// -----------------------------------------------------------------------------

// setLocalNodeType stores its input into a named local variable.
type setLocalNodeType struct {
	nodeTypeBase
	local NamedDataType
}

func newSetLocalNodeType(mod Module, local NamedDataType) *setLocalNodeType {
	return &setLocalNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      mod,
			name:        "_set_" + local.Name,
			description: "Set " + local.Name,
			dataInputs:  []NamedDataType{{Type: local.Type}},
			execInputs:  []string{""},
			execOutputs: []string{""},
		},
		local: local,
	}
}

func (nt *setLocalNodeType) Clone() NodeType { return newSetLocalNodeType(nt.module, nt.local) }

func (nt *setLocalNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.local.Type.QualifiedName())
	return raw
}

func (nt *setLocalNodeType) Codegen(call *CodegenCall) *report.Result {
	res := &report.Result{}

	local := call.Compiler.LocalVariable(nt.local.Name)
	if local == nil {
		res.AddEntry("EUKN", "Local variable not found in function", map[string]any{
			"Variable": nt.local.Name,
			"Function": call.Compiler.Function().Name(),
		})
		return res
	}

	call.Block.NewStore(call.IO[0], local)
	call.Block.NewBr(call.OutputBlocks[0])
	return res
}

// -----------------------------------------------------------------------------

// getLocalNodeType reads a named local variable.  Pure.
type getLocalNodeType struct {
	nodeTypeBase
	local NamedDataType
}

func newGetLocalNodeType(mod Module, local NamedDataType) *getLocalNodeType {
	return &getLocalNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      mod,
			name:        "_get_" + local.Name,
			description: "Get " + local.Name,
			pure:        true,
			dataOutputs: []NamedDataType{{Type: local.Type}},
		},
		local: local,
	}
}

func (nt *getLocalNodeType) Clone() NodeType { return newGetLocalNodeType(nt.module, nt.local) }

func (nt *getLocalNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.local.Type.QualifiedName())
	return raw
}

func (nt *getLocalNodeType) Codegen(call *CodegenCall) *report.Result {
	res := &report.Result{}

	local := call.Compiler.LocalVariable(nt.local.Name)
	if local == nil {
		res.AddEntry("EUKN", "Local variable not found in function", map[string]any{
			"Variable": nt.local.Name,
			"Function": call.Compiler.Function().Name(),
		})
		return res
	}

	val := call.Block.NewLoad(nt.local.Type.LLVMType(), local)
	call.Block.NewStore(val, call.IO[0])
	call.Block.NewBr(call.OutputBlocks[0])
	return res
}
