// Package graph implements the chigraph data model: typed dataflow graphs
// made of node instances connected by execution and data edges, organized
// into functions, structs, and modules owned by a Context.
package graph

import (
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
)

// DataType is a value type inside a graph: a short name scoped to the module
// that owns it, a backing LLVM type, and a debug type.  DataTypes are
// immutable values; equality is structural over (module, name).
type DataType struct {
	module Module
	name   string
	llvm   types.Type
	debug  metadata.Definition
}

// NewDataType creates a new DataType owned by module.
func NewDataType(module Module, name string, llvmType types.Type, debugType metadata.Definition) DataType {
	return DataType{module: module, name: name, llvm: llvmType, debug: debugType}
}

// Module returns the module that owns the type.
func (t DataType) Module() Module { return t.module }

// UnqualifiedName returns the short type name, e.g. `i32`.
func (t DataType) UnqualifiedName() string { return t.name }

// QualifiedName returns `<module full name>:<type name>`, e.g. `lang:i32`.
func (t DataType) QualifiedName() string {
	if t.module == nil {
		return t.name
	}
	return t.module.FullName() + ":" + t.name
}

// LLVMType returns the backing machine type.
func (t DataType) LLVMType() types.Type { return t.llvm }

// DebugType returns the debug type handle.
func (t DataType) DebugType() metadata.Definition { return t.debug }

// Valid reports whether both the machine type and debug type are present.
func (t DataType) Valid() bool { return t.llvm != nil && t.debug != nil }

// Equal reports structural equality over (module, name).
func (t DataType) Equal(other DataType) bool {
	return t.QualifiedName() == other.QualifiedName()
}

// NamedDataType is a (name, type) pair naming a port, parameter, struct
// field, or local variable.
type NamedDataType struct {
	Name string
	Type DataType
}

// Valid reports whether the underlying type is valid.
func (n NamedDataType) Valid() bool { return n.Type.Valid() }
