package graph

import (
	"chi/report"
)

// ValidateFunction runs all structural and type checks on a function before
// code generation.  Violations accumulate in the Result with their stable
// error codes; nothing is emitted for a function that fails validation.
func ValidateFunction(fn *GraphFunction) *report.Result {
	res := &report.Result{}
	defer res.AddContext(map[string]any{
		"function": fn.Name(),
		"module":   fn.Module().FullName(),
	})()

	res.Join(validateEntryAndExits(fn))
	res.Join(validateConnectionsAreTwoWay(fn))
	res.Join(validatePureCycles(fn))
	res.Join(validateExecCycles(fn))
	res.Join(validateNodeInputs(fn))
	res.Join(validateDataFlowOrder(fn))
	res.Join(validateExecOutputs(fn))

	if fn.Name() == "main" && fn.Module().ShortName() == "main" {
		res.Join(validateMainSignature(fn))
	}

	return res
}

// validateEntryAndExits checks for exactly one matching entry node and at
// least one exit node whose ports mirror the function's outputs.
func validateEntryAndExits(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	entries := fn.NodesWithType("lang", "entry")
	if len(entries) != 1 || fn.EntryNode() == nil {
		res.AddEntry("E01", "Function must have exactly one entry node matching its signature",
			map[string]any{"Entry Count": len(entries)})
	}

	exits := fn.NodesWithType("lang", "exit")
	if len(exits) == 0 {
		res.AddEntry("EUKN", "Function must have at least one exit node", nil)
		return res
	}

	for _, exit := range exits {
		ins := exit.Type().DataInputs()
		matches := len(ins) == len(fn.DataOutputs())
		if matches {
			for i, out := range fn.DataOutputs() {
				if ins[i].Name != out.Name || !ins[i].Type.Equal(out.Type) {
					matches = false
					break
				}
			}
		}

		if !matches {
			res.AddEntry("EUKN", "Outputs of function do not match function exit", map[string]any{
				"Function Outputs": portNames(fn.DataOutputs()),
				"Exit Outputs":     portNames(ins),
				"Node ID":          exit.StringID(),
			})
		}
	}

	return res
}

// validateConnectionsAreTwoWay verifies that every stored edge has its dual
// pointer on the remote node.
func validateConnectionsAreTwoWay(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	for _, node := range fn.Nodes() {
		for id, conn := range node.InputDataConnections {
			if conn.Node == nil {
				continue
			}

			connectsBack := false
			if conn.Index < len(conn.Node.OutputDataConnections) {
				for _, remote := range conn.Node.OutputDataConnections[conn.Index] {
					if remote.Node == node && remote.Index == id {
						connectsBack = true
						break
					}
				}
			}
			if !connectsBack {
				res.AddEntry("NoSuchEdge", "Data edge does not connect back", map[string]any{
					"Left Node":      conn.Node.StringID(),
					"Right Node":     node.StringID(),
					"Right Input ID": id,
				})
			}
		}

		for id, conn := range node.OutputExecConnections {
			if conn.Node == nil {
				continue
			}

			connectsBack := false
			if conn.Index < len(conn.Node.InputExecConnections) {
				for _, remote := range conn.Node.InputExecConnections[conn.Index] {
					if remote.Node == node && remote.Index == id {
						connectsBack = true
						break
					}
				}
			}
			if !connectsBack {
				res.AddEntry("NoSuchEdge", "Exec edge does not connect back", map[string]any{
					"Left Node":      node.StringID(),
					"Right Node":     conn.Node.StringID(),
					"Left Output ID": id,
				})
			}
		}
	}

	return res
}

// validatePureCycles rejects cycles among pure nodes over data edges.
func validatePureCycles(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[*NodeInstance]int)

	var visit func(node *NodeInstance) bool
	visit = func(node *NodeInstance) bool {
		switch state[node] {
		case inProgress:
			return false
		case done:
			return true
		}

		state[node] = inProgress
		for _, conn := range node.InputDataConnections {
			if conn.Node == nil || !conn.Node.Type().Pure() {
				continue
			}
			if !visit(conn.Node) {
				res.AddEntry("E25", "Pure nodes may not form a cycle", map[string]any{
					"Node ID": node.StringID(),
				})
				state[node] = done
				return true // one entry per cycle is enough
			}
		}
		state[node] = done
		return true
	}

	for _, node := range fn.Nodes() {
		if node.Type().Pure() {
			visit(node)
		}
	}

	return res
}

// validateExecCycles rejects cycles over execution edges.
func validateExecCycles(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[*NodeInstance]int)

	var visit func(node *NodeInstance) bool
	visit = func(node *NodeInstance) bool {
		switch state[node] {
		case inProgress:
			return false
		case done:
			return true
		}

		state[node] = inProgress
		for _, conn := range node.OutputExecConnections {
			if conn.Node == nil {
				continue
			}
			if !visit(conn.Node) {
				res.AddEntry("E26", "Execution edges may not form a cycle", map[string]any{
					"Node ID": node.StringID(),
				})
				state[node] = done
				return true
			}
		}
		state[node] = done
		return true
	}

	entry := fn.EntryNode()
	if entry != nil {
		visit(entry)
	}

	return res
}

// validateNodeInputs checks that every execution-reachable non-pure node,
// and every pure feeding one, has all data inputs connected with matching
// types.
func validateNodeInputs(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	entry := fn.EntryNode()
	if entry == nil {
		return res
	}

	checked := make(map[*NodeInstance]bool)

	var checkInputs func(node *NodeInstance)
	checkInputs = func(node *NodeInstance) {
		if checked[node] {
			return
		}
		checked[node] = true

		for id, conn := range node.InputDataConnections {
			if conn.Node == nil {
				res.AddEntry("E27", "Node is missing a required input data connection", map[string]any{
					"Node ID":   node.StringID(),
					"Node Type": node.Type().QualifiedName(),
					"Port ID":   id,
				})
				continue
			}

			fromType := conn.Node.Type().DataOutputs()[conn.Index].Type
			toType := node.Type().DataInputs()[id].Type
			if !fromType.Equal(toType) {
				res.AddEntry("E24", "Data edge connects mismatched types", map[string]any{
					"Left Hand Type":  fromType.QualifiedName(),
					"Right Hand Type": toType.QualifiedName(),
					"Node ID":         node.StringID(),
					"Port ID":         id,
				})
			}

			if conn.Node.Type().Pure() {
				checkInputs(conn.Node)
			}
		}
	}

	reached := make(map[*NodeInstance]bool)
	var walk func(node *NodeInstance)
	walk = func(node *NodeInstance) {
		if reached[node] {
			return
		}
		reached[node] = true

		checkInputs(node)

		for _, conn := range node.OutputExecConnections {
			if conn.Node != nil {
				walk(conn.Node)
			}
		}
	}
	walk(entry)

	return res
}

// validateDataFlowOrder walks every execution path from entry and checks
// that each non-pure node whose output feeds a data input has already run on
// that path: a join may not consume a value its predecessor did not
// dominate.
func validateDataFlowOrder(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	entry := fn.EntryNode()
	if entry == nil {
		return res
	}

	// alreadyCalled is copied per path so sibling branches do not satisfy
	// each other's ordering requirements
	var walkPath func(inst *NodeInstance, inExecID int, alreadyCalled map[*NodeInstance][]int)
	walkPath = func(inst *NodeInstance, inExecID int, alreadyCalled map[*NodeInstance][]int) {
		for _, id := range alreadyCalled[inst] {
			if id == inExecID {
				return
			}
		}

		for _, conn := range inst.InputDataConnections {
			if conn.Node == nil || conn.Node.Type().Pure() {
				continue
			}

			if _, called := alreadyCalled[conn.Node]; !called {
				res.AddEntry("EUKN", "Node consumes data from a node that has not run yet",
					map[string]any{
						"Node ID":     inst.StringID(),
						"Producer ID": conn.Node.StringID(),
					})
			}
		}

		next := make(map[*NodeInstance][]int, len(alreadyCalled))
		for k, v := range alreadyCalled {
			next[k] = v
		}
		next[inst] = append(append([]int{}, next[inst]...), inExecID)

		for _, conn := range inst.OutputExecConnections {
			if conn.Node != nil {
				walkPath(conn.Node, conn.Index, next)
			}
		}
	}

	start := map[*NodeInstance][]int{entry: {}}
	for _, conn := range entry.OutputExecConnections {
		if conn.Node != nil {
			walkPath(conn.Node, conn.Index, start)
		}
	}

	return res
}

// validateExecOutputs checks that every exec-reachable node has all of its
// output exec ports connected.
func validateExecOutputs(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	entry := fn.EntryNode()
	if entry == nil {
		return res
	}

	reached := make(map[*NodeInstance]bool)
	var walk func(node *NodeInstance)
	walk = func(node *NodeInstance) {
		if reached[node] {
			return
		}
		reached[node] = true

		for id, conn := range node.OutputExecConnections {
			if conn.Node == nil {
				res.AddEntry("EUKN", "Node is missing an output exec connection", map[string]any{
					"Node ID":    node.StringID(),
					"Missing ID": id,
				})
				continue
			}
			walk(conn.Node)
		}
	}
	walk(entry)

	return res
}

// validateMainSignature checks the special shape of main:main.
func validateMainSignature(fn *GraphFunction) *report.Result {
	res := &report.Result{}

	if len(fn.ExecInputs()) != 1 {
		res.AddEntry("EUKN", "A main function must have exactly one exec input", map[string]any{
			"Exec Inputs": fn.ExecInputs(),
		})
	}
	if len(fn.ExecOutputs()) != 1 {
		res.AddEntry("EUKN", "A main function must have exactly one exec output", map[string]any{
			"Exec Outputs": fn.ExecOutputs(),
		})
	}
	if len(fn.DataInputs()) != 0 {
		res.AddEntry("EUKN", "A main function must have no data inputs", map[string]any{
			"Data Inputs": portNames(fn.DataInputs()),
		})
	}
	if len(fn.DataOutputs()) != 1 || fn.DataOutputs()[0].Type.QualifiedName() != "lang:i32" {
		res.AddEntry("EUKN", "A main function must have exactly one lang:i32 data output", map[string]any{
			"Data Outputs": portNames(fn.DataOutputs()),
		})
	}

	return res
}
