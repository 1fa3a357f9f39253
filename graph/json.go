package graph

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"chi/report"
)

// JSON persistence of graph modules.  A module serializes to a single
// object:
//
//	{"dependencies": [...], "types": {name: [[field, type]...]},
//	 "graphs": {name: function}}
//
// and a function to:
//
//	{"description": ..., "data_inputs": [[name, type]...], "data_outputs":
//	 [...], "exec_inputs": [...], "exec_outputs": [...], "local_variables":
//	 [[name, type]...], "nodes": {uuid: {"type": qualified, "data": ...,
//	 "location": [x, y]}}, "connections": [{"type": "data"|"exec", "input":
//	 [uuid, idx], "output": [uuid, idx]}]}
//
// Connection `input` is the producing end (an output port); `output` is the
// consuming end.  Type references are `module_full_name:short_name`.

type jsonModule struct {
	Dependencies []string                  `json:"dependencies"`
	Types        map[string][][2]string    `json:"types"`
	Graphs       map[string]*jsonFunction  `json:"graphs"`
}

type jsonFunction struct {
	Description    string               `json:"description"`
	DataInputs     [][2]string          `json:"data_inputs"`
	DataOutputs    [][2]string          `json:"data_outputs"`
	ExecInputs     []string             `json:"exec_inputs"`
	ExecOutputs    []string             `json:"exec_outputs"`
	LocalVariables [][2]string          `json:"local_variables"`
	Nodes          map[string]*jsonNode `json:"nodes"`
	Connections    []jsonConnection     `json:"connections"`
}

type jsonNode struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Location [2]float64      `json:"location"`
}

type jsonConnection struct {
	Type   string `json:"type"`
	Input  [2]any `json:"input"`
	Output [2]any `json:"output"`
}

// -----------------------------------------------------------------------------

// GraphModuleToJSON serializes a module into its persisted form.
func GraphModuleToJSON(m *GraphModule) map[string]any {
	deps := m.Dependencies()
	if deps == nil {
		deps = []string{}
	}

	typesJSON := make(map[string][][2]string)
	for _, s := range m.Structs() {
		fields := make([][2]string, 0, len(s.Fields()))
		for _, field := range s.Fields() {
			fields = append(fields, [2]string{field.Name, field.Type.QualifiedName()})
		}
		typesJSON[s.Name()] = fields
	}

	graphsJSON := make(map[string]any)
	for _, fn := range m.Functions() {
		graphsJSON[fn.Name()] = graphFunctionToJSON(fn)
	}

	return map[string]any{
		"dependencies": deps,
		"types":        typesJSON,
		"graphs":       graphsJSON,
	}
}

// graphFunctionToJSON serializes one function.
func graphFunctionToJSON(fn *GraphFunction) map[string]any {
	nodesJSON := make(map[string]any)
	connections := make([]map[string]any, 0)

	// iterate nodes in UUID order so the connection list (and therefore the
	// module's structural hash) is deterministic
	ids := make([]uuid.UUID, 0, len(fn.Nodes()))
	for id := range fn.Nodes() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	for _, id := range ids {
		node := fn.NodeByID(id)
		nodeID := id.String()

		nodesJSON[nodeID] = map[string]any{
			"type":     node.Type().QualifiedName(),
			"data":     node.Type().JSON(),
			"location": [2]float64{node.X(), node.Y()},
		}

		// serialize each edge once: exec edges from their source end, data
		// edges from their consuming end
		for portID, conn := range node.OutputExecConnections {
			if conn.Node != nil {
				connections = append(connections, map[string]any{
					"type":   "exec",
					"input":  []any{nodeID, portID},
					"output": []any{conn.Node.StringID(), conn.Index},
				})
			}
		}
		for portID, conn := range node.InputDataConnections {
			if conn.Node != nil {
				connections = append(connections, map[string]any{
					"type":   "data",
					"input":  []any{conn.Node.StringID(), conn.Index},
					"output": []any{nodeID, portID},
				})
			}
		}
	}

	return map[string]any{
		"description":     fn.Description(),
		"data_inputs":     namedPairs(fn.DataInputs()),
		"data_outputs":    namedPairs(fn.DataOutputs()),
		"exec_inputs":     stringsOrEmpty(fn.ExecInputs()),
		"exec_outputs":    stringsOrEmpty(fn.ExecOutputs()),
		"local_variables": namedPairs(fn.LocalVariables()),
		"nodes":           nodesJSON,
		"connections":     connections,
	}
}

func namedPairs(list []NamedDataType) [][2]string {
	ret := make([][2]string, 0, len(list))
	for _, nd := range list {
		ret = append(ret, [2]string{nd.Name, nd.Type.QualifiedName()})
	}
	return ret
}

func stringsOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// -----------------------------------------------------------------------------

// JSONToGraphModule hydrates a graph module from its persisted form and
// registers it in ctx.
func JSONToGraphModule(ctx *Context, fullName string, raw []byte) (*GraphModule, *report.Result) {
	res := &report.Result{}
	defer res.AddContext(map[string]any{"Loading Module Name": fullName})()

	var input jsonModule
	if err := json.Unmarshal(raw, &input); err != nil {
		res.AddEntry("EUKN", "Failed to parse module JSON", map[string]any{"Error": err.Error()})
		return nil, res
	}

	mod, createRes := ctx.NewGraphModule(fullName)
	res.Join(createRes)
	if !res.Success() {
		return nil, res
	}

	// dependencies first so referenced types resolve
	for _, dep := range input.Dependencies {
		res.Join(mod.AddDependency(dep))
		if !res.Success() {
			return mod, res
		}
	}

	// declare structs before loading them so mutually referential fields
	// resolve
	for name := range input.Types {
		mod.GetOrCreateStruct(name)
	}
	for name, fields := range input.Types {
		s := mod.StructFromName(name)
		for _, pair := range fields {
			moduleName, typeName := parseColonPair(pair[1])

			ty, tyRes := ctx.TypeFromModule(moduleName, typeName)
			res.Join(tyRes)
			if !res.Success() {
				return mod, res
			}

			s.AddField(ty, pair[0], len(s.Fields()), false)
		}
	}

	// function declarations before bodies so call nodes resolve
	fns := make(map[string]*jsonFunction, len(input.Graphs))
	for name, fnJSON := range input.Graphs {
		fn, declRes := declareGraphFunctionFromJSON(mod, name, fnJSON)
		res.Join(declRes)
		if !res.Success() {
			return mod, res
		}

		fn.description = fnJSON.Description
		fns[name] = fnJSON
	}

	for name, fnJSON := range fns {
		res.Join(loadGraphFunctionBody(mod.FunctionFromName(name), fnJSON))
		if !res.Success() {
			return mod, res
		}
	}

	return mod, res
}

// declareGraphFunctionFromJSON creates a function with its signature and
// local variables but no nodes.
func declareGraphFunctionFromJSON(mod *GraphModule, name string, input *jsonFunction) (*GraphFunction, *report.Result) {
	res := &report.Result{}

	dataIns, insRes := resolvePairs(mod.Context(), input.DataInputs)
	res.Join(insRes)
	dataOuts, outsRes := resolvePairs(mod.Context(), input.DataOutputs)
	res.Join(outsRes)
	locals, localsRes := resolvePairs(mod.Context(), input.LocalVariables)
	res.Join(localsRes)
	if !res.Success() {
		return nil, res
	}

	fn, _ := mod.GetOrCreateFunction(name, dataIns, dataOuts, input.ExecInputs, input.ExecOutputs)
	fn.localVariables = locals

	return fn, res
}

// loadGraphFunctionBody hydrates a function's nodes and connections.
func loadGraphFunctionBody(fn *GraphFunction, input *jsonFunction) *report.Result {
	res := &report.Result{}
	defer res.AddContext(map[string]any{"Function Name": fn.Name()})()

	for idStr, nodeJSON := range input.Nodes {
		id, err := uuid.Parse(idStr)
		if err != nil {
			res.AddEntry("EUKN", "Invalid node UUID", map[string]any{"Node ID": idStr})
			return res
		}

		moduleName, typeName := parseColonPair(nodeJSON.Type)
		_, insRes := fn.InsertNodeByName(moduleName, typeName, nodeJSON.Data,
			nodeJSON.Location[0], nodeJSON.Location[1], id)
		res.Join(insRes)
		if !res.Success() {
			return res
		}
	}

	for _, conn := range input.Connections {
		srcID, srcIdx, ok1 := connectionEnd(conn.Input)
		dstID, dstIdx, ok2 := connectionEnd(conn.Output)
		if !ok1 || !ok2 {
			res.AddEntry("EUKN", "Malformed connection entry", map[string]any{
				"Connection Type": conn.Type,
			})
			return res
		}

		src := fn.NodeByID(srcID)
		dst := fn.NodeByID(dstID)
		if src == nil || dst == nil {
			res.AddEntry("NoSuchEdge", "Connection references a missing node", map[string]any{
				"Input Node":  srcID.String(),
				"Output Node": dstID.String(),
			})
			return res
		}

		switch conn.Type {
		case "data":
			res.Join(ConnectData(src, srcIdx, dst, dstIdx))
		case "exec":
			res.Join(ConnectExec(src, srcIdx, dst, dstIdx))
		default:
			res.AddEntry("EUKN", "Unknown connection type", map[string]any{
				"Connection Type": conn.Type,
			})
		}
		if !res.Success() {
			return res
		}
	}

	return res
}

// connectionEnd decodes a [uuid, index] connection endpoint.
func connectionEnd(end [2]any) (uuid.UUID, int, bool) {
	idStr, ok := end[0].(string)
	if !ok {
		return uuid.UUID{}, 0, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.UUID{}, 0, false
	}

	idx, ok := end[1].(float64)
	if !ok {
		return uuid.UUID{}, 0, false
	}

	return id, int(idx), true
}

// resolvePairs resolves [[name, qualified type]...] lists.
func resolvePairs(ctx *Context, pairs [][2]string) ([]NamedDataType, *report.Result) {
	res := &report.Result{}

	ret := make([]NamedDataType, 0, len(pairs))
	for _, pair := range pairs {
		moduleName, typeName := parseColonPair(pair[1])

		ty, tyRes := ctx.TypeFromModule(moduleName, typeName)
		res.Join(tyRes)
		if !res.Success() {
			return nil, res
		}

		ret = append(ret, NamedDataType{Name: pair[0], Type: ty})
	}

	return ret, res
}
