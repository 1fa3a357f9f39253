package graph

import (
	"encoding/json"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"chi/report"
)

// LangModule is the built-in `lang` module: primitive types and the
// control-flow, literal, arithmetic, and comparison node types.
type LangModule struct {
	moduleBase

	// nodes maps node type names to their hydration factories.
	nodes map[string]func(data json.RawMessage) (NodeType, *report.Result)

	// debugTypes maps primitive type names to their debug types.
	debugTypes map[string]metadata.Definition
}

// newLangModule creates the lang module for ctx.
func newLangModule(ctx *Context) *LangModule {
	m := &LangModule{
		moduleBase: moduleBase{context: ctx, fullName: "lang"},
		debugTypes: map[string]metadata.Definition{
			"i32":   newBasicDebugType("lang:i32", 32, enum.DwarfAttEncodingSigned),
			"i1":    newBasicDebugType("lang:i1", 8, enum.DwarfAttEncodingBoolean),
			"float": newBasicDebugType("lang:float", 64, enum.DwarfAttEncodingFloat),
		},
	}
	m.debugTypes["i8*"] = newPointerDebugType(
		newBasicDebugType("lang:i8", 8, enum.DwarfAttEncodingUnsignedChar))

	m.nodes = map[string]func(data json.RawMessage) (NodeType, *report.Result){
		"if":    func(json.RawMessage) (NodeType, *report.Result) { return newIfNodeType(m), &report.Result{} },
		"entry": m.entryFromJSON,
		"exit":  m.exitFromJSON,

		"const-int":   m.constIntFromJSON,
		"const-float": m.constFloatFromJSON,
		"const-bool":  m.constBoolFromJSON,
		"strliteral":  m.strLiteralFromJSON,

		"inttofloat": func(json.RawMessage) (NodeType, *report.Result) {
			return newIntToFloatNodeType(m), &report.Result{}
		},
		"floattoint": func(json.RawMessage) (NodeType, *report.Result) {
			return newFloatToIntNodeType(m), &report.Result{}
		},
	}

	for _, tyName := range []string{"i32", "float"} {
		ty := m.TypeFromName(tyName)
		for _, op := range []string{"+", "-", "*", "/"} {
			op := op
			m.nodes[tyName+op+tyName] = func(json.RawMessage) (NodeType, *report.Result) {
				return newBinaryOpNodeType(m, ty, op), &report.Result{}
			}
		}
		for _, op := range []string{"<", ">", "<=", ">=", "==", "!="} {
			op := op
			m.nodes[tyName+op+tyName] = func(json.RawMessage) (NodeType, *report.Result) {
				return newCompareNodeType(m, ty, op), &report.Result{}
			}
		}
	}

	return m
}

// TypeFromName resolves one of the primitive lang types.
func (m *LangModule) TypeFromName(name string) DataType {
	debugType, ok := m.debugTypes[name]
	if !ok {
		return DataType{}
	}

	var llType types.Type
	switch name {
	case "i32":
		llType = types.I32
	case "i1":
		llType = types.I1
	case "float":
		llType = types.Double
	case "i8*":
		llType = types.I8Ptr
	}

	return NewDataType(m, name, llType, debugType)
}

// TypeNames lists the primitive lang type names.
func (m *LangModule) TypeNames() []string { return []string{"i32", "i1", "float", "i8*"} }

// NodeTypeNames lists the lang node type names.
func (m *LangModule) NodeTypeNames() []string {
	ret := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		ret = append(ret, name)
	}
	return ret
}

// NodeTypeFromName hydrates a lang node type from its JSON payload.
func (m *LangModule) NodeTypeFromName(name string, data json.RawMessage) (NodeType, *report.Result) {
	factory, ok := m.nodes[name]
	if !ok {
		res := &report.Result{}
		res.AddEntry("EUKN", "Node type not found in module", map[string]any{
			"Module Name":    "lang",
			"Requested Type": name,
		})
		return nil, res
	}

	if len(data) == 0 {
		data = emptyJSON()
	}
	return factory(data)
}

// AddForwardDeclarations declares nothing: lang node types expand inline.
func (m *LangModule) AddForwardDeclarations(*ir.Module) *report.Result { return &report.Result{} }

// -----------------------------------------------------------------------------

// portsPayload is the decoded form of an entry/exit JSON payload.
type portsPayload struct {
	Data []map[string]string `json:"data"`
	Exec []string            `json:"exec"`
}

// decodePortsPayload parses entry/exit payloads into port lists.
func (m *LangModule) decodePortsPayload(data json.RawMessage) ([]NamedDataType, []string, *report.Result) {
	res := &report.Result{}

	var payload portsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		res.AddEntry("EUKN", "Data for lang:entry and lang:exit must have data and exec elements",
			map[string]any{"Given Data": string(data)})
		return nil, nil, res
	}

	ports := make([]NamedDataType, 0, len(payload.Data))
	for _, pair := range payload.Data {
		for portName, qualified := range pair {
			moduleName, typeName := parseColonPair(qualified)

			ty, tyRes := m.context.TypeFromModule(moduleName, typeName)
			res.Join(tyRes)
			if !res.Success() {
				return nil, nil, res
			}

			ports = append(ports, NamedDataType{Name: portName, Type: ty})
		}
	}

	return ports, payload.Exec, res
}

func (m *LangModule) entryFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	ports, exec, res := m.decodePortsPayload(data)
	if !res.Success() {
		return nil, res
	}
	return newEntryNodeType(m, ports, exec), res
}

func (m *LangModule) exitFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	ports, exec, res := m.decodePortsPayload(data)
	if !res.Success() {
		return nil, res
	}
	return newExitNodeType(m, ports, exec), res
}

func (m *LangModule) constIntFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	var num int32
	if err := json.Unmarshal(data, &num); err != nil {
		res.AddEntry("WUKN", "Data for lang:const-int must be an integer", map[string]any{
			"Given Data": string(data),
		})
	}
	return newConstIntNodeType(m, num), res
}

func (m *LangModule) constFloatFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	var num float64
	if err := json.Unmarshal(data, &num); err != nil {
		res.AddEntry("WUKN", "Data for lang:const-float must be a number", map[string]any{
			"Given Data": string(data),
		})
	}
	return newConstFloatNodeType(m, num), res
}

func (m *LangModule) constBoolFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	var val bool
	if err := json.Unmarshal(data, &val); err != nil {
		res.AddEntry("WUKN", "Data for lang:const-bool must be a boolean", map[string]any{
			"Given Data": string(data),
		})
	}
	return newConstBoolNodeType(m, val), res
}

func (m *LangModule) strLiteralFromJSON(data json.RawMessage) (NodeType, *report.Result) {
	res := &report.Result{}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		res.AddEntry("WUKN", "Data for lang:strliteral must be a string", map[string]any{
			"Given Data": string(data),
		})
	}
	return newStrLiteralNodeType(m, str), res
}

// -----------------------------------------------------------------------------

// ifNodeType branches on an i1 condition.
type ifNodeType struct {
	nodeTypeBase
}

func newIfNodeType(m *LangModule) *ifNodeType {
	return &ifNodeType{nodeTypeBase{
		module:      m,
		name:        "if",
		description: "If",
		dataInputs:  []NamedDataType{{Name: "condition", Type: m.TypeFromName("i1")}},
		execInputs:  []string{""},
		execOutputs: []string{"True", "False"},
	}}
}

func (nt *ifNodeType) Clone() NodeType       { return newIfNodeType(nt.module.(*LangModule)) }
func (nt *ifNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *ifNodeType) Codegen(call *CodegenCall) *report.Result {
	call.Block.NewCondBr(call.IO[0], call.OutputBlocks[0], call.OutputBlocks[1])
	return &report.Result{}
}

// -----------------------------------------------------------------------------

// entryNodeType starts a function: its data outputs mirror the function's
// data inputs and its exec outputs mirror the function's exec inputs.
type entryNodeType struct {
	nodeTypeBase
}

func newEntryNodeType(m *LangModule, dataInputs []NamedDataType, execInputs []string) *entryNodeType {
	return &entryNodeType{nodeTypeBase{
		module:      m,
		name:        "entry",
		description: "Entry",
		dataOutputs: dataInputs,
		execOutputs: execInputs,
	}}
}

func (nt *entryNodeType) Clone() NodeType {
	return newEntryNodeType(nt.module.(*LangModule), nt.dataOutputs, nt.execOutputs)
}

func (nt *entryNodeType) JSON() json.RawMessage {
	return portsJSON(nt.dataOutputs, nt.execOutputs)
}

func (nt *entryNodeType) Codegen(call *CodegenCall) *report.Result {
	params := call.Compiler.LLFunction().Params

	// store the data arguments into the entry's output slots; the first
	// parameter is the input exec id
	for i, out := range call.IO {
		call.Block.NewStore(params[i+1], out)
	}

	inExecID := params[0]
	cases := make([]*ir.Case, 0, len(call.OutputBlocks))
	for id, out := range call.OutputBlocks {
		cases = append(cases, ir.NewCase(constant.NewInt(types.I32, int64(id)), out))
	}
	call.Block.NewSwitch(inExecID, call.OutputBlocks[0], cases...)

	return &report.Result{}
}

// -----------------------------------------------------------------------------

// exitNodeType returns from a function: its data inputs mirror the
// function's data outputs and its exec inputs mirror the function's exec
// outputs.  The integer return value is the index of the exec input entered.
type exitNodeType struct {
	nodeTypeBase
}

func newExitNodeType(m *LangModule, dataOutputs []NamedDataType, execOutputs []string) *exitNodeType {
	return &exitNodeType{nodeTypeBase{
		module:      m,
		name:        "exit",
		description: "Return from a function",
		dataInputs:  dataOutputs,
		execInputs:  execOutputs,
	}}
}

func (nt *exitNodeType) Clone() NodeType {
	return newExitNodeType(nt.module.(*LangModule), nt.dataInputs, nt.execInputs)
}

func (nt *exitNodeType) JSON() json.RawMessage {
	return portsJSON(nt.dataInputs, nt.execInputs)
}

func (nt *exitNodeType) Codegen(call *CodegenCall) *report.Result {
	params := call.Compiler.LLFunction().Params

	// return slots come after the data inputs in the parameter list
	retStart := len(params) - len(call.IO)
	for i, val := range call.IO {
		call.Block.NewStore(val, params[retStart+i])
	}

	call.Block.NewRet(constant.NewInt(types.I32, int64(call.InputExecID)))
	return &report.Result{}
}

// -----------------------------------------------------------------------------

type constIntNodeType struct {
	nodeTypeBase
	number int32
}

func newConstIntNodeType(m *LangModule, num int32) *constIntNodeType {
	return &constIntNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        "const-int",
			description: "Integer literal",
			pure:        true,
			dataOutputs: []NamedDataType{{Type: m.TypeFromName("i32")}},
		},
		number: num,
	}
}

func (nt *constIntNodeType) Clone() NodeType {
	return newConstIntNodeType(nt.module.(*LangModule), nt.number)
}

func (nt *constIntNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.number)
	return raw
}

func (nt *constIntNodeType) Codegen(call *CodegenCall) *report.Result {
	call.Block.NewStore(constant.NewInt(types.I32, int64(nt.number)), call.IO[0])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

type constFloatNodeType struct {
	nodeTypeBase
	number float64
}

func newConstFloatNodeType(m *LangModule, num float64) *constFloatNodeType {
	return &constFloatNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        "const-float",
			description: "Float literal",
			pure:        true,
			dataOutputs: []NamedDataType{{Type: m.TypeFromName("float")}},
		},
		number: num,
	}
}

func (nt *constFloatNodeType) Clone() NodeType {
	return newConstFloatNodeType(nt.module.(*LangModule), nt.number)
}

func (nt *constFloatNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.number)
	return raw
}

func (nt *constFloatNodeType) Codegen(call *CodegenCall) *report.Result {
	call.Block.NewStore(constant.NewFloat(types.Double, nt.number), call.IO[0])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

type constBoolNodeType struct {
	nodeTypeBase
	val bool
}

func newConstBoolNodeType(m *LangModule, val bool) *constBoolNodeType {
	return &constBoolNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        "const-bool",
			description: "Boolean literal",
			pure:        true,
			dataOutputs: []NamedDataType{{Type: m.TypeFromName("i1")}},
		},
		val: val,
	}
}

func (nt *constBoolNodeType) Clone() NodeType {
	return newConstBoolNodeType(nt.module.(*LangModule), nt.val)
}

func (nt *constBoolNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.val)
	return raw
}

func (nt *constBoolNodeType) Codegen(call *CodegenCall) *report.Result {
	call.Block.NewStore(constant.NewBool(nt.val), call.IO[0])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

type strLiteralNodeType struct {
	nodeTypeBase
	literal string
}

func newStrLiteralNodeType(m *LangModule, str string) *strLiteralNodeType {
	return &strLiteralNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        "strliteral",
			description: "String literal",
			pure:        true,
			dataOutputs: []NamedDataType{{Type: m.TypeFromName("i8*")}},
		},
		literal: str,
	}
}

func (nt *strLiteralNodeType) Clone() NodeType {
	return newStrLiteralNodeType(nt.module.(*LangModule), nt.literal)
}

func (nt *strLiteralNodeType) JSON() json.RawMessage {
	raw, _ := json.Marshal(nt.literal)
	return raw
}

func (nt *strLiteralNodeType) Codegen(call *CodegenCall) *report.Result {
	llmod := call.Compiler.LLModule()

	init := constant.NewCharArrayFromString(nt.literal + "\x00")
	global := llmod.NewGlobalDef(fmt.Sprintf("str.%d", len(llmod.Globals)), init)

	zero := constant.NewInt(types.I32, 0)
	ptr := call.Block.NewGetElementPtr(init.Typ, global, zero, zero)
	call.Block.NewStore(ptr, call.IO[0])

	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// -----------------------------------------------------------------------------

// binaryOpNodeType is pure arithmetic over two operands of one type.
type binaryOpNodeType struct {
	nodeTypeBase
	op string
	ty DataType
}

var binOpVerbs = map[string]string{"+": "Add", "-": "Subtract", "*": "Multiply", "/": "Divide"}

func newBinaryOpNodeType(m *LangModule, ty DataType, op string) *binaryOpNodeType {
	return &binaryOpNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        ty.UnqualifiedName() + op + ty.UnqualifiedName(),
			description: binOpVerbs[op] + " two " + ty.UnqualifiedName() + "s",
			pure:        true,
			dataInputs:  []NamedDataType{{Name: "a", Type: ty}, {Name: "b", Type: ty}},
			dataOutputs: []NamedDataType{{Type: ty}},
		},
		op: op,
		ty: ty,
	}
}

func (nt *binaryOpNodeType) Clone() NodeType {
	return newBinaryOpNodeType(nt.module.(*LangModule), nt.ty, nt.op)
}

func (nt *binaryOpNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *binaryOpNodeType) Codegen(call *CodegenCall) *report.Result {
	a, b := call.IO[0], call.IO[1]

	var result value.Value
	if nt.ty.UnqualifiedName() == "i32" {
		switch nt.op {
		case "+":
			result = call.Block.NewAdd(a, b)
		case "-":
			result = call.Block.NewSub(a, b)
		case "*":
			result = call.Block.NewMul(a, b)
		case "/":
			result = call.Block.NewSDiv(a, b)
		}
	} else {
		switch nt.op {
		case "+":
			result = call.Block.NewFAdd(a, b)
		case "-":
			result = call.Block.NewFSub(a, b)
		case "*":
			result = call.Block.NewFMul(a, b)
		case "/":
			result = call.Block.NewFDiv(a, b)
		}
	}

	call.Block.NewStore(result, call.IO[2])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// compareNodeType is a pure comparison yielding i1.
type compareNodeType struct {
	nodeTypeBase
	op string
	ty DataType
}

func newCompareNodeType(m *LangModule, ty DataType, op string) *compareNodeType {
	name := ty.UnqualifiedName() + op + ty.UnqualifiedName()
	return &compareNodeType{
		nodeTypeBase: nodeTypeBase{
			module:      m,
			name:        name,
			description: name,
			pure:        true,
			dataInputs:  []NamedDataType{{Name: "a", Type: ty}, {Name: "b", Type: ty}},
			dataOutputs: []NamedDataType{{Type: m.TypeFromName("i1")}},
		},
		op: op,
		ty: ty,
	}
}

func (nt *compareNodeType) Clone() NodeType {
	return newCompareNodeType(nt.module.(*LangModule), nt.ty, nt.op)
}

func (nt *compareNodeType) JSON() json.RawMessage { return emptyJSON() }

var intPreds = map[string]enum.IPred{
	"<": enum.IPredSLT, ">": enum.IPredSGT, "<=": enum.IPredSLE,
	">=": enum.IPredSGE, "==": enum.IPredEQ, "!=": enum.IPredNE,
}

var floatPreds = map[string]enum.FPred{
	"<": enum.FPredULT, ">": enum.FPredUGT, "<=": enum.FPredULE,
	">=": enum.FPredUGE, "==": enum.FPredUEQ, "!=": enum.FPredUNE,
}

func (nt *compareNodeType) Codegen(call *CodegenCall) *report.Result {
	a, b := call.IO[0], call.IO[1]

	var result value.Value
	if nt.ty.UnqualifiedName() == "i32" {
		result = call.Block.NewICmp(intPreds[nt.op], a, b)
	} else {
		result = call.Block.NewFCmp(floatPreds[nt.op], a, b)
	}

	call.Block.NewStore(result, call.IO[2])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// -----------------------------------------------------------------------------

// intToFloatNodeType converts i32 to float.  Registered as a converter.
type intToFloatNodeType struct {
	nodeTypeBase
}

func newIntToFloatNodeType(m *LangModule) *intToFloatNodeType {
	return &intToFloatNodeType{nodeTypeBase{
		module:      m,
		name:        "inttofloat",
		description: "Integer -> Float",
		pure:        true,
		converter:   true,
		dataInputs:  []NamedDataType{{Type: m.TypeFromName("i32")}},
		dataOutputs: []NamedDataType{{Type: m.TypeFromName("float")}},
	}}
}

func (nt *intToFloatNodeType) Clone() NodeType       { return newIntToFloatNodeType(nt.module.(*LangModule)) }
func (nt *intToFloatNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *intToFloatNodeType) Codegen(call *CodegenCall) *report.Result {
	casted := call.Block.NewSIToFP(call.IO[0], types.Double)
	call.Block.NewStore(casted, call.IO[1])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}

// floatToIntNodeType converts float to i32.  Registered as a converter.
type floatToIntNodeType struct {
	nodeTypeBase
}

func newFloatToIntNodeType(m *LangModule) *floatToIntNodeType {
	return &floatToIntNodeType{nodeTypeBase{
		module:      m,
		name:        "floattoint",
		description: "Float -> Integer",
		pure:        true,
		converter:   true,
		dataInputs:  []NamedDataType{{Type: m.TypeFromName("float")}},
		dataOutputs: []NamedDataType{{Type: m.TypeFromName("i32")}},
	}}
}

func (nt *floatToIntNodeType) Clone() NodeType       { return newFloatToIntNodeType(nt.module.(*LangModule)) }
func (nt *floatToIntNodeType) JSON() json.RawMessage { return emptyJSON() }

func (nt *floatToIntNodeType) Codegen(call *CodegenCall) *report.Result {
	casted := call.Block.NewFPToSI(call.IO[0], types.I32)
	call.Block.NewStore(casted, call.IO[1])
	call.Block.NewBr(call.OutputBlocks[0])
	return &report.Result{}
}
