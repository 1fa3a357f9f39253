package graph

import (
	"github.com/google/uuid"
)

// DataConnection points at one end of a data edge: the remote node and the
// index of the remote port.  A nil Node means the slot is empty.
type DataConnection struct {
	Node  *NodeInstance
	Index int
}

// ExecConnection points at one end of an execution edge.
type ExecConnection struct {
	Node  *NodeInstance
	Index int
}

// NodeInstance is a concrete use of a node type inside a graph function.
// The connection slices are always sized to the current node type's port
// arities; the invariant that every stored edge has a matching dual pointer
// on the remote node is maintained by the Connect*/Disconnect* operations.
type NodeInstance struct {
	id       uuid.UUID
	x, y     float64
	typ      NodeType
	function *GraphFunction

	// InputDataConnections holds at most one producer per input data port.
	InputDataConnections []DataConnection

	// OutputDataConnections holds any number of consumers per output data
	// port.
	OutputDataConnections [][]DataConnection

	// InputExecConnections holds any number of predecessors per input exec
	// port.  Empty for pure nodes.
	InputExecConnections [][]ExecConnection

	// OutputExecConnections holds at most one successor per output exec
	// port.  Empty for pure nodes.
	OutputExecConnections []ExecConnection
}

// newNodeInstance creates a node instance for the given type.  The
// connection slices are sized to the type's arities.
func newNodeInstance(fn *GraphFunction, typ NodeType, x, y float64, id uuid.UUID) *NodeInstance {
	if typ == nil || fn == nil {
		panic("cannot create a node instance without a type and function")
	}

	inst := &NodeInstance{
		id:       id,
		x:        x,
		y:        y,
		typ:      typ,
		function: fn,
	}
	inst.resizeConnections()

	return inst
}

// resizeConnections sizes the connection slices to the current type.
func (inst *NodeInstance) resizeConnections() {
	inst.InputDataConnections = make([]DataConnection, len(inst.typ.DataInputs()))
	inst.OutputDataConnections = make([][]DataConnection, len(inst.typ.DataOutputs()))

	if inst.typ.Pure() {
		inst.InputExecConnections = nil
		inst.OutputExecConnections = nil
	} else {
		inst.InputExecConnections = make([][]ExecConnection, len(inst.typ.ExecInputs()))
		inst.OutputExecConnections = make([]ExecConnection, len(inst.typ.ExecOutputs()))
	}
}

// ID returns the node's stable UUID.
func (inst *NodeInstance) ID() uuid.UUID { return inst.id }

// StringID returns the node's UUID rendered as a string.
func (inst *NodeInstance) StringID() string { return inst.id.String() }

// X returns the layout x coordinate.  Layout is opaque to the compiler.
func (inst *NodeInstance) X() float64 { return inst.x }

// Y returns the layout y coordinate.
func (inst *NodeInstance) Y() float64 { return inst.y }

// SetPosition moves the node in the layout.
func (inst *NodeInstance) SetPosition(x, y float64) {
	inst.x = x
	inst.y = y
	inst.function.module.UpdateLastEditTime()
}

// Type returns the node's current node type.
func (inst *NodeInstance) Type() NodeType { return inst.typ }

// Function returns the graph function that owns this node.
func (inst *NodeInstance) Function() *GraphFunction { return inst.function }

// Module returns the graph module that owns this node's function.
func (inst *NodeInstance) Module() *GraphModule { return inst.function.module }

// Context returns the context that owns this node's module.
func (inst *NodeInstance) Context() *Context { return inst.function.module.Context() }

// SetType replaces the node's type.  Edges whose endpoint port still exists
// in the new type with the same data type are kept; everything else is
// disconnected cleanly before the connection slices are resized.
func (inst *NodeInstance) SetType(newType NodeType) {
	inst.Module().UpdateLastEditTime()

	// exec inputs past the new arity lose their edges
	newExecIns := len(newType.ExecInputs())
	if newType.Pure() {
		newExecIns = 0
	}
	for id := newExecIns; id < len(inst.InputExecConnections); id++ {
		for len(inst.InputExecConnections[id]) > 0 {
			conn := inst.InputExecConnections[id][0]
			DisconnectExec(conn.Node, conn.Index)
		}
	}
	if newExecIns < len(inst.InputExecConnections) {
		inst.InputExecConnections = inst.InputExecConnections[:newExecIns]
	}
	for len(inst.InputExecConnections) < newExecIns {
		inst.InputExecConnections = append(inst.InputExecConnections, nil)
	}

	// exec outputs past the new arity lose their edges
	newExecOuts := len(newType.ExecOutputs())
	if newType.Pure() {
		newExecOuts = 0
	}
	for id := newExecOuts; id < len(inst.OutputExecConnections); id++ {
		if inst.OutputExecConnections[id].Node != nil {
			DisconnectExec(inst, id)
		}
	}
	resizedExecOuts := make([]ExecConnection, newExecOuts)
	copy(resizedExecOuts, inst.OutputExecConnections)
	inst.OutputExecConnections = resizedExecOuts

	// keep input data edges whose port survives with an identical type
	for id, conn := range inst.InputDataConnections {
		if conn.Node == nil {
			continue
		}

		if id < len(newType.DataInputs()) &&
			inst.typ.DataInputs()[id].Type.Equal(newType.DataInputs()[id].Type) {
			continue
		}

		DisconnectData(conn.Node, conn.Index, inst)
	}
	resizedDataIns := make([]DataConnection, len(newType.DataInputs()))
	copy(resizedDataIns, inst.InputDataConnections)
	inst.InputDataConnections = resizedDataIns

	// same for output data edges
	for id, slot := range inst.OutputDataConnections {
		if id < len(newType.DataOutputs()) &&
			inst.typ.DataOutputs()[id].Type.Equal(newType.DataOutputs()[id].Type) {
			continue
		}

		for len(slot) > 0 {
			DisconnectData(inst, id, slot[0].Node)
			slot = inst.OutputDataConnections[id]
		}
	}
	resizedDataOuts := make([][]DataConnection, len(newType.DataOutputs()))
	copy(resizedDataOuts, inst.OutputDataConnections)
	inst.OutputDataConnections = resizedDataOuts

	inst.typ = newType
}
