package graph

import (
	"encoding/json"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"

	"chi/report"
)

// FunctionCompiler is the per-function compilation state a node type's
// Codegen may consult.  It is implemented by the codegen package; node types
// only ever see this capability surface.
type FunctionCompiler interface {
	// Function returns the graph function being compiled.
	Function() *GraphFunction

	// LLModule returns the LLVM module being generated into.
	LLModule() *ir.Module

	// LLFunction returns the LLVM function being generated.
	LLFunction() *ir.Func

	// AllocBlock returns the entry block holding all allocas.
	AllocBlock() *ir.Block

	// LocalVariable returns the alloca backing the named local variable, or
	// nil if the function has no such local.
	LocalVariable(name string) value.Value

	// NodeLine returns the source line associated with a node instance.
	NodeLine(node *NodeInstance) int
}

// CodegenCall carries the arguments of a single Codegen invocation.
type CodegenCall struct {
	// Compiler is the function compiler driving this invocation.
	Compiler FunctionCompiler

	// Node is the node instance being compiled.
	Node *NodeInstance

	// Block is the basic block to emit the node's body into.
	Block *ir.Block

	// InputExecID names which of the node's input exec ports received
	// control for this compilation.
	InputExecID int

	// IO holds the loaded values of each input data port followed by the
	// alloca pointers of each output data port.
	IO []value.Value

	// OutputBlocks holds the first basic block of each output-exec
	// successor, in port order.  Codegen must terminate its block(s) by
	// branching into these (or with a return/unreachable).  For pure nodes
	// it holds the single continuation block.
	OutputBlocks []*ir.Block
}

// NodeType describes a kind of node: its ports, whether it is pure, and how
// to generate code for it.  Node types are owned by a module and attached to
// node instances; SetType replaces them wholesale.
type NodeType interface {
	// Name returns the short type name within its module.
	Name() string

	// Description returns the human-readable description.
	Description() string

	// Module returns the module the node type belongs to.
	Module() Module

	// QualifiedName returns `<module full name>:<name>`.
	QualifiedName() string

	// Pure reports whether the node has no execution ports and no side
	// effects; pure nodes are re-materialised at each consumer.
	Pure() bool

	// Converter reports whether this node type is a type converter usable
	// for implicit conversions.
	Converter() bool

	// DataInputs returns the ordered input data ports.
	DataInputs() []NamedDataType

	// DataOutputs returns the ordered output data ports.
	DataOutputs() []NamedDataType

	// ExecInputs returns the display names of the input exec ports.  Empty
	// for pure node types.
	ExecInputs() []string

	// ExecOutputs returns the display names of the output exec ports.
	ExecOutputs() []string

	// Clone produces an equivalent independent node type.
	Clone() NodeType

	// JSON returns the node type's persisted data payload.
	JSON() json.RawMessage

	// Codegen emits the IR for the node's body.
	Codegen(call *CodegenCall) *report.Result
}

// nodeTypeBase carries the common node type state; concrete node types embed
// it and provide Clone, JSON, and Codegen.
type nodeTypeBase struct {
	module      Module
	name        string
	description string
	pure        bool
	converter   bool
	dataInputs  []NamedDataType
	dataOutputs []NamedDataType
	execInputs  []string
	execOutputs []string
}

func (nt *nodeTypeBase) Name() string                 { return nt.name }
func (nt *nodeTypeBase) Description() string          { return nt.description }
func (nt *nodeTypeBase) Module() Module               { return nt.module }
func (nt *nodeTypeBase) Pure() bool                   { return nt.pure }
func (nt *nodeTypeBase) Converter() bool              { return nt.converter }
func (nt *nodeTypeBase) DataInputs() []NamedDataType  { return nt.dataInputs }
func (nt *nodeTypeBase) DataOutputs() []NamedDataType { return nt.dataOutputs }
func (nt *nodeTypeBase) ExecInputs() []string         { return nt.execInputs }
func (nt *nodeTypeBase) ExecOutputs() []string        { return nt.execOutputs }

func (nt *nodeTypeBase) QualifiedName() string {
	return nt.module.FullName() + ":" + nt.name
}

// emptyJSON is the payload of node types that carry no state.
func emptyJSON() json.RawMessage { return json.RawMessage("null") }

// portsJSON encodes an entry/exit style payload: a `data` array of
// single-pair objects and an `exec` array of strings.
func portsJSON(data []NamedDataType, exec []string) json.RawMessage {
	dataArr := make([]map[string]string, 0, len(data))
	for _, nd := range data {
		dataArr = append(dataArr, map[string]string{nd.Name: nd.Type.QualifiedName()})
	}

	execArr := exec
	if execArr == nil {
		execArr = []string{}
	}

	raw, err := json.Marshal(map[string]any{"data": dataArr, "exec": execArr})
	if err != nil {
		return emptyJSON()
	}
	return raw
}
