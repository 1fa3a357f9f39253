package graph

import (
	"chi/report"
)

// Connection editing.  Both endpoints of every edit are updated atomically:
// an operation either fully connects/disconnects an edge or leaves both
// nodes untouched.  Cross-function edits are programmer errors and panic.

// ConnectData creates a data edge from lhs's output port lhsIndex to rhs's
// input port rhsIndex.  If the input port is already driven, that edge is
// first disconnected.
func ConnectData(lhs *NodeInstance, lhsIndex int, rhs *NodeInstance, rhsIndex int) *report.Result {
	res := &report.Result{}

	if lhs.Function() != rhs.Function() {
		panic("cannot connect data between nodes in different functions")
	}

	rhs.Module().UpdateLastEditTime()

	if lhsIndex >= len(lhs.OutputDataConnections) {
		res.AddEntry("E22", "Output data port does not exist in node", map[string]any{
			"Requested ID":         lhsIndex,
			"Node Type":            lhs.Type().QualifiedName(),
			"Node Output Data Ports": portNames(lhs.Type().DataOutputs()),
		})
	}
	if rhsIndex >= len(rhs.InputDataConnections) {
		res.AddEntry("E23", "Input data port does not exist in node", map[string]any{
			"Requested ID":        rhsIndex,
			"Node Type":           rhs.Type().QualifiedName(),
			"Node Input Data Ports": portNames(rhs.Type().DataInputs()),
		})
	}
	if !res.Success() {
		return res
	}

	fromType := lhs.Type().DataOutputs()[lhsIndex].Type
	toType := rhs.Type().DataInputs()[rhsIndex].Type
	if !fromType.Equal(toType) {
		res.AddEntry("E24", "Connecting data ports with different types is invalid", map[string]any{
			"Left Hand Type":  fromType.QualifiedName(),
			"Right Hand Type": toType.QualifiedName(),
			"Left Node":       lhs.StringID(),
			"Right Node":      rhs.StringID(),
		})
		return res
	}

	// replacement semantics on the input side
	if prev := rhs.InputDataConnections[rhsIndex]; prev.Node != nil {
		res.Join(DisconnectData(prev.Node, prev.Index, rhs))
		if !res.Success() {
			return res
		}
	}

	lhs.OutputDataConnections[lhsIndex] = append(lhs.OutputDataConnections[lhsIndex],
		DataConnection{Node: rhs, Index: rhsIndex})
	rhs.InputDataConnections[rhsIndex] = DataConnection{Node: lhs, Index: lhsIndex}

	return res
}

// ConnectExec creates an execution edge from lhs's output exec port lhsIndex
// to rhs's input exec port rhsIndex.  An output exec port holds at most one
// target, so replacement semantics apply on the output side.
func ConnectExec(lhs *NodeInstance, lhsIndex int, rhs *NodeInstance, rhsIndex int) *report.Result {
	res := &report.Result{}

	if lhs.Function() != rhs.Function() {
		panic("cannot connect exec between nodes in different functions")
	}

	lhs.Module().UpdateLastEditTime()

	if lhsIndex >= len(lhs.OutputExecConnections) {
		res.AddEntry("E22", "Output exec port does not exist in node", map[string]any{
			"Requested ID":         lhsIndex,
			"Node Type":            lhs.Type().QualifiedName(),
			"Node Output Exec Ports": lhs.Type().ExecOutputs(),
		})
	}
	if rhsIndex >= len(rhs.InputExecConnections) {
		res.AddEntry("E23", "Input exec port does not exist in node", map[string]any{
			"Requested ID":        rhsIndex,
			"Node Type":           rhs.Type().QualifiedName(),
			"Node Input Exec Ports": rhs.Type().ExecInputs(),
		})
	}
	if !res.Success() {
		return res
	}

	if lhs.OutputExecConnections[lhsIndex].Node != nil {
		res.Join(DisconnectExec(lhs, lhsIndex))
		if !res.Success() {
			return res
		}
	}

	lhs.OutputExecConnections[lhsIndex] = ExecConnection{Node: rhs, Index: rhsIndex}
	rhs.InputExecConnections[rhsIndex] = append(rhs.InputExecConnections[rhsIndex],
		ExecConnection{Node: lhs, Index: lhsIndex})

	return res
}

// DisconnectData removes the data edge from lhs's output port lhsIndex into
// rhs.  A missing dual pointer signals corruption and yields NoSuchEdge.
func DisconnectData(lhs *NodeInstance, lhsIndex int, rhs *NodeInstance) *report.Result {
	res := &report.Result{}

	if lhs.Function() != rhs.Function() {
		panic("cannot disconnect data between nodes in different functions")
	}

	lhs.Module().UpdateLastEditTime()

	if lhsIndex >= len(lhs.OutputDataConnections) {
		res.AddEntry("E22", "Output data port does not exist in node", map[string]any{
			"Requested ID": lhsIndex,
			"Node Type":    lhs.Type().QualifiedName(),
		})
		return res
	}

	slot := lhs.OutputDataConnections[lhsIndex]
	found := -1
	for i, conn := range slot {
		if conn.Node == rhs {
			found = i
			break
		}
	}
	if found == -1 {
		res.AddEntry("NoSuchEdge", "Cannot disconnect a data edge that does not exist", map[string]any{
			"Left Node":    lhs.StringID(),
			"Right Node":   rhs.StringID(),
			"Left Port ID": lhsIndex,
		})
		return res
	}

	rhsIndex := slot[found].Index
	if rhsIndex >= len(rhs.InputDataConnections) ||
		rhs.InputDataConnections[rhsIndex].Node != lhs ||
		rhs.InputDataConnections[rhsIndex].Index != lhsIndex {
		res.AddEntry("NoSuchEdge", "Data edge does not connect back", map[string]any{
			"Left Node":  lhs.StringID(),
			"Right Node": rhs.StringID(),
		})
		return res
	}

	rhs.InputDataConnections[rhsIndex] = DataConnection{}
	lhs.OutputDataConnections[lhsIndex] = append(slot[:found], slot[found+1:]...)

	return res
}

// DisconnectExec removes the execution edge leaving lhs's output exec port
// lhsIndex.
func DisconnectExec(lhs *NodeInstance, lhsIndex int) *report.Result {
	res := &report.Result{}

	lhs.Module().UpdateLastEditTime()

	if lhsIndex >= len(lhs.OutputExecConnections) {
		res.AddEntry("E22", "Output exec port does not exist in node", map[string]any{
			"Requested ID": lhsIndex,
			"Node Type":    lhs.Type().QualifiedName(),
		})
		return res
	}

	conn := lhs.OutputExecConnections[lhsIndex]
	if conn.Node == nil {
		res.AddEntry("NoSuchEdge", "Cannot disconnect an exec edge that does not exist", map[string]any{
			"Left Node":    lhs.StringID(),
			"Left Port ID": lhsIndex,
		})
		return res
	}

	backSlot := conn.Node.InputExecConnections[conn.Index]
	found := -1
	for i, back := range backSlot {
		if back.Node == lhs && back.Index == lhsIndex {
			found = i
			break
		}
	}
	if found == -1 {
		res.AddEntry("NoSuchEdge", "Exec edge does not connect back", map[string]any{
			"Left Node":    lhs.StringID(),
			"Left Port ID": lhsIndex,
		})
		return res
	}

	conn.Node.InputExecConnections[conn.Index] = append(backSlot[:found], backSlot[found+1:]...)
	lhs.OutputExecConnections[lhsIndex] = ExecConnection{}

	return res
}

// portNames renders a port list for error context bags.
func portNames(ports []NamedDataType) []map[string]string {
	ret := make([]map[string]string, 0, len(ports))
	for _, p := range ports {
		ret = append(ret, map[string]string{p.Name: p.Type.QualifiedName()})
	}
	return ret
}
