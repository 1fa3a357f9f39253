// Package codegen lowers validated graph functions into LLVM IR through a
// two-stage per-node compilation protocol: stage 1 creates a node's first
// basic block (and the pure re-materialization chain leading into it), stage
// 2 emits the node's body and terminates into its successors' first blocks.
package codegen

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/value"

	"chi/graph"
	"chi/report"
)

// NodeCompiler holds the per-node compilation state.  A node is compiled
// exactly once per distinct input exec id it can be entered through; the
// state machine per (node, input exec id) is NotStarted -> Stage1 -> Stage2
// -> Done, and both stage transitions are idempotent.
type NodeCompiler struct {
	compiler *FunctionCompiler
	node     *graph.NodeInstance

	// returnValues holds the alloca of each output data port, created in
	// the function's alloc block.
	returnValues []value.Value

	// pureChains holds, per input exec id, the chain of blocks carrying the
	// re-materialised bodies of the node's transitive pure dependencies.
	pureChains [][]*ir.Block

	// codeBlocks holds, per input exec id, the block the node's own body is
	// emitted into.  A non-nil entry means stage 1 has run.
	codeBlocks []*ir.Block

	// compiledInputs records which input exec ids have completed stage 2.
	compiledInputs []bool
}

// newNodeCompiler allocates the node's output slots in the alloc block and
// sizes the per-input-exec state.
func newNodeCompiler(fc *FunctionCompiler, node *graph.NodeInstance) *NodeCompiler {
	nc := &NodeCompiler{compiler: fc, node: node}

	for idx, out := range node.Type().DataOutputs() {
		alloca := fc.allocBlock.NewAlloca(out.Type.LLVMType())
		alloca.SetName(fmt.Sprintf("%s__%d", node.StringID(), idx))
		nc.returnValues = append(nc.returnValues, alloca)
	}

	size := nc.inputExecs()
	nc.pureChains = make([][]*ir.Block, size)
	nc.codeBlocks = make([]*ir.Block, size)
	nc.compiledInputs = make([]bool, size)

	return nc
}

// Pure reports whether the underlying node type is pure.
func (nc *NodeCompiler) Pure() bool { return nc.node.Type().Pure() }

// ReturnValues returns the output allocas, one per output data port.
func (nc *NodeCompiler) ReturnValues() []value.Value { return nc.returnValues }

// Compiled reports whether stage 2 has completed for the input exec id.
func (nc *NodeCompiler) Compiled(inputExecID int) bool { return nc.compiledInputs[inputExecID] }

// inputExecs returns the number of distinct input exec ids the node can be
// entered through.  Pure nodes and the entry node have exactly one.
func (nc *NodeCompiler) inputExecs() int {
	if nc.Pure() || nc.node.Type().QualifiedName() == "lang:entry" {
		return 1
	}
	return len(nc.node.InputExecConnections)
}

// FirstBlock returns the block control enters the node through for the given
// input exec id: the head of the pure chain if the node has pure
// dependencies, otherwise its code block.  Stage 1 must have run.
func (nc *NodeCompiler) FirstBlock(inputExecID int) *ir.Block {
	if len(nc.pureChains[inputExecID]) > 0 {
		return nc.pureChains[inputExecID][0]
	}
	return nc.codeBlocks[inputExecID]
}

// CompileStage1 creates the node's first basic block for the input exec id
// and re-materialises the bodies of its transitive pure dependencies into a
// chain of blocks leading into it.  Re-running stage 1 is a no-op.
func (nc *NodeCompiler) CompileStage1(inputExecID int) *report.Result {
	res := &report.Result{}

	if inputExecID >= nc.inputExecs() {
		panic("cannot compile stage 1 for an input exec that does not exist")
	}

	if nc.codeBlocks[inputExecID] != nil {
		return res
	}

	blockName := fmt.Sprintf("node_%s__%d", nc.node.StringID(), inputExecID)
	codeBlock := nc.compiler.llfunc.NewBlock(blockName)
	nc.codeBlocks[inputExecID] = codeBlock

	// pure nodes do not pull in their own dependencies here: they are
	// re-materialised by each non-pure consumer
	if nc.Pure() {
		return res
	}

	depPures := DependentPuresRecursive(nc.node)
	if len(depPures) == 0 {
		return res
	}

	// one block per pure, ending in the code block; each pure's body is
	// emitted fresh for this (consumer, input exec id)
	chain := make([]*ir.Block, len(depPures))
	for i, pure := range depPures {
		chain[i] = nc.compiler.llfunc.NewBlock(
			fmt.Sprintf("%s__%s", blockName, pure.StringID()))
	}
	nc.pureChains[inputExecID] = chain

	// the chain was appended to the function after the code block; emit
	// each pure into its block, branching down the chain
	for i, pure := range depPures {
		next := codeBlock
		if i+1 < len(chain) {
			next = chain[i+1]
		}

		pureCompiler := nc.compiler.getOrCreateNodeCompiler(pure)
		io := pureCompiler.buildIO(chain[i])

		res.Join(pure.Type().Codegen(&graph.CodegenCall{
			Compiler:     nc.compiler,
			Node:         pure,
			Block:        chain[i],
			InputExecID:  0,
			IO:           io,
			OutputBlocks: []*ir.Block{next},
		}))
		if !res.Success() {
			return res
		}
	}

	return res
}

// CompileStage2 emits the node's body for the input exec id, terminating
// into trailingBlocks (the first blocks of the output-exec successors, in
// port order).  Stage 2 runs at most once per input exec id.
func (nc *NodeCompiler) CompileStage2(trailingBlocks []*ir.Block, inputExecID int) *report.Result {
	res := &report.Result{}

	if !nc.Pure() && len(trailingBlocks) != len(nc.node.OutputExecConnections) {
		panic("trailing blocks list has the wrong size")
	}
	if inputExecID >= nc.inputExecs() {
		panic("cannot compile stage 2 for an input exec that does not exist")
	}

	if nc.compiledInputs[inputExecID] {
		return res
	}

	if nc.codeBlocks[inputExecID] == nil {
		res.Join(nc.CompileStage1(inputExecID))
		if !res.Success() {
			return res
		}
	}

	codeBlock := nc.codeBlocks[inputExecID]
	io := nc.buildIO(codeBlock)

	res.Join(nc.node.Type().Codegen(&graph.CodegenCall{
		Compiler:     nc.compiler,
		Node:         nc.node,
		Block:        codeBlock,
		InputExecID:  inputExecID,
		IO:           io,
		OutputBlocks: trailingBlocks,
	}))

	nc.compiledInputs[inputExecID] = true

	return res
}

// buildIO loads the node's input values in block and appends the output
// allocas: the io vector handed to Codegen.
func (nc *NodeCompiler) buildIO(block *ir.Block) []value.Value {
	io := make([]value.Value, 0,
		len(nc.node.InputDataConnections)+len(nc.returnValues))

	for idx, conn := range nc.node.InputDataConnections {
		if conn.Node == nil {
			panic("unconnected data input survived validation")
		}

		remote := nc.compiler.getOrCreateNodeCompiler(conn.Node)
		elemType := conn.Node.Type().DataOutputs()[conn.Index].Type.LLVMType()

		loaded := block.NewLoad(elemType, remote.returnValues[conn.Index])
		io = append(io, loaded)

		if !elemType.Equal(nc.node.Type().DataInputs()[idx].Type.LLVMType()) {
			panic("mismatched data edge types survived validation")
		}
	}

	io = append(io, nc.returnValues...)
	return io
}

// DependentPuresRecursive returns the topologically ordered set of pure
// nodes transitively feeding inst's input data ports: every pure appears
// after its own pure dependencies and exactly once.
func DependentPuresRecursive(inst *graph.NodeInstance) []*graph.NodeInstance {
	var ret []*graph.NodeInstance
	seen := make(map[*graph.NodeInstance]bool)

	var collect func(node *graph.NodeInstance)
	collect = func(node *graph.NodeInstance) {
		for _, conn := range node.InputDataConnections {
			if conn.Node == nil || !conn.Node.Type().Pure() || seen[conn.Node] {
				continue
			}

			seen[conn.Node] = true
			collect(conn.Node)
			ret = append(ret, conn.Node)
		}
	}
	collect(inst)

	return ret
}
