package codegen

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/value"

	"chi/graph"
	"chi/report"
)

// FunctionCompiler orchestrates the compilation of one graph function into
// one LLVM function: validation, block creation, pure-dependency scheduling,
// and the wiring of node compilers.  A FunctionCompiler is created fresh per
// function and never reused.
type FunctionCompiler struct {
	fn    *graph.GraphFunction
	llmod *ir.Module

	llfunc     *ir.Func
	allocBlock *ir.Block

	localVariables map[string]value.Value
	nodeCompilers  map[*graph.NodeInstance]*NodeCompiler
	nodeLines      map[*graph.NodeInstance]int

	diUnit *metadata.DICompileUnit
	diFile *metadata.DIFile
	diFunc *metadata.DISubprogram

	// cancel is polled between nodes; in-flight codegen runs to
	// completion.
	cancel func() bool

	initialized bool
	compiled    bool
}

// NewFunctionCompiler creates a compiler generating fn into llmod under the
// given debug compile unit.  nodeLines is the module-wide node line
// association.
func NewFunctionCompiler(fn *graph.GraphFunction, llmod *ir.Module, diUnit *metadata.DICompileUnit, diFile *metadata.DIFile, nodeLines map[*graph.NodeInstance]int) *FunctionCompiler {
	return &FunctionCompiler{
		fn:             fn,
		llmod:          llmod,
		localVariables: make(map[string]value.Value),
		nodeCompilers:  make(map[*graph.NodeInstance]*NodeCompiler),
		nodeLines:      nodeLines,
		diUnit:         diUnit,
		diFile:         diFile,
	}
}

// Function returns the graph function being compiled.
func (fc *FunctionCompiler) Function() *graph.GraphFunction { return fc.fn }

// LLModule returns the LLVM module being generated into.
func (fc *FunctionCompiler) LLModule() *ir.Module { return fc.llmod }

// LLFunction returns the LLVM function being generated.
func (fc *FunctionCompiler) LLFunction() *ir.Func { return fc.llfunc }

// AllocBlock returns the entry block holding all allocas.
func (fc *FunctionCompiler) AllocBlock() *ir.Block { return fc.allocBlock }

// LocalVariable returns the alloca backing the named local, or nil.
func (fc *FunctionCompiler) LocalVariable(name string) value.Value {
	if !fc.initialized {
		panic("initialize the function compiler before getting a local variable")
	}
	return fc.localVariables[name]
}

// SetCancel installs a cancellation check polled between nodes during
// Compile.  When it returns true the compilation stops with an error entry.
func (fc *FunctionCompiler) SetCancel(check func() bool) { fc.cancel = check }

// NodeLine returns the source line associated with a node.
func (fc *FunctionCompiler) NodeLine(node *graph.NodeInstance) int {
	if line, ok := fc.nodeLines[node]; ok {
		return line
	}
	return -1
}

// Initialize validates the function (unless told not to), creates the LLVM
// function with its mangled name, the alloc block, zeroed local variable
// allocas, and the debug subprogram.
func (fc *FunctionCompiler) Initialize(validate bool) *report.Result {
	if fc.initialized {
		panic("cannot initialize a FunctionCompiler more than once")
	}
	fc.initialized = true

	res := &report.Result{}
	defer res.AddContext(map[string]any{
		"Function": fc.fn.Name(),
		"Module":   fc.fn.Module().FullName(),
	})()

	if validate {
		res.Join(graph.ValidateFunction(fc.fn))
		if !res.Success() {
			return res
		}
	}

	entry := fc.fn.EntryNode()
	if entry == nil {
		res.AddEntry("E01", "No entry node", nil)
		return res
	}

	mangled := graph.MangleFunctionName(fc.fn.Module().FullName(), fc.fn.Name())
	fc.llfunc = graph.GetOrInsertFunction(fc.llmod, mangled, fc.fn.FunctionType())

	// name the parameters: the input exec id first, then data inputs, then
	// the out-pointers
	for idx, param := range fc.llfunc.Params {
		switch {
		case idx == 0:
			param.SetName("inputexec_id")
		case idx-1 < len(fc.fn.DataInputs()):
			param.SetName(fc.fn.DataInputs()[idx-1].Name)
		default:
			param.SetName(fc.fn.DataOutputs()[idx-1-len(fc.fn.DataInputs())].Name)
		}
	}

	// attach the debug subprogram
	if fc.diUnit != nil {
		fc.diFunc = &metadata.DISubprogram{
			Name:        fc.fn.QualifiedName(),
			LinkageName: mangled,
			File:        fc.diFile,
			Line:        int64(fc.NodeLine(entry)),
			Unit:        fc.diUnit,
		}
		graph.RegisterMetadata(fc.llmod, fc.diFunc)
		fc.llfunc.Metadata = append(fc.llfunc.Metadata,
			&metadata.Attachment{Name: "dbg", Node: fc.diFunc})
	}

	fc.allocBlock = fc.llfunc.NewBlock("alloc")

	// alloca the local variables and zero them
	for _, local := range fc.fn.LocalVariables() {
		alloca := fc.allocBlock.NewAlloca(local.Type.LLVMType())
		alloca.SetName("var_" + local.Name)
		fc.allocBlock.NewStore(constant.NewZeroInitializer(local.Type.LLVMType()), alloca)

		fc.localVariables[local.Name] = alloca
	}

	return res
}

// Compile runs the main worklist: a BFS from the entry node across
// execution edges over (node, input exec id) pairs.  For each pair the
// successors get stage 1 (so their first blocks exist as branch targets),
// then the node gets stage 2.  When the worklist drains, the alloc block
// branches into the entry's first block.
func (fc *FunctionCompiler) Compile() *report.Result {
	if !fc.initialized {
		panic("initialize a FunctionCompiler before compiling it")
	}
	if fc.compiled {
		panic("cannot compile a FunctionCompiler twice")
	}
	fc.compiled = true

	res := &report.Result{}

	entry := fc.fn.EntryNode()
	if entry == nil {
		res.AddEntry("E01", "No entry node", nil)
		return res
	}

	type workItem struct {
		node        *graph.NodeInstance
		inputExecID int
	}
	worklist := []workItem{{entry, 0}}

	for len(worklist) > 0 {
		if fc.cancel != nil && fc.cancel() {
			res.AddEntry("EUKN", "Compilation cancelled", map[string]any{
				"Function": fc.fn.QualifiedName(),
			})
			return res
		}

		item := worklist[0]
		worklist = worklist[1:]

		if item.node.Type().Pure() {
			panic("pure node on the exec worklist")
		}

		nc := fc.getOrCreateNodeCompiler(item.node)
		if nc.Compiled(item.inputExecID) {
			continue
		}

		// run stage 1 on every exec successor so its first block can be
		// used as a branch target
		outputBlocks := make([]*ir.Block, 0, len(item.node.OutputExecConnections))
		for _, conn := range item.node.OutputExecConnections {
			succ := fc.getOrCreateNodeCompiler(conn.Node)
			res.Join(succ.CompileStage1(conn.Index))
			if !res.Success() {
				return res
			}

			outputBlocks = append(outputBlocks, succ.FirstBlock(conn.Index))
		}

		res.Join(nc.CompileStage2(outputBlocks, item.inputExecID))
		if !res.Success() {
			return res
		}

		for _, conn := range item.node.OutputExecConnections {
			worklist = append(worklist, workItem{conn.Node, conn.Index})
		}
	}

	fc.allocBlock.NewBr(fc.getOrCreateNodeCompiler(entry).FirstBlock(0))

	return res
}

// NodeCompilerFor returns the node compiler for a node, or nil if none has
// been created yet.
func (fc *FunctionCompiler) NodeCompilerFor(node *graph.NodeInstance) *NodeCompiler {
	return fc.nodeCompilers[node]
}

// getOrCreateNodeCompiler returns the node compiler for a node, creating it
// (and the node's output allocas) on first use.
func (fc *FunctionCompiler) getOrCreateNodeCompiler(node *graph.NodeInstance) *NodeCompiler {
	if node.Function() != fc.fn {
		panic("cannot get a NodeCompiler for a node instance in another function")
	}

	if nc, ok := fc.nodeCompilers[node]; ok {
		return nc
	}

	nc := newNodeCompiler(fc, node)
	fc.nodeCompilers[node] = nc
	return nc
}

// CompileGraphFunction compiles one graph function into llmod.
func CompileGraphFunction(fn *graph.GraphFunction, llmod *ir.Module, diUnit *metadata.DICompileUnit, diFile *metadata.DIFile, nodeLines map[*graph.NodeInstance]int) *report.Result {
	fc := NewFunctionCompiler(fn, llmod, diUnit, diFile, nodeLines)

	res := fc.Initialize(true)
	if !res.Success() {
		return res
	}

	res.Join(fc.Compile())
	return res
}
