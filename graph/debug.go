package graph

import (
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
)

// Debug type construction.  Every DataType carries a debug type handle so
// that compiled modules can attach DWARF-shaped metadata; the handles are
// plain metadata nodes that get registered into an LLVM module only when a
// compilation actually references them.

// newBasicDebugType creates a DIBasicType for a lang primitive.
func newBasicDebugType(name string, sizeInBits uint64, encoding enum.DwarfAttEncoding) *metadata.DIBasicType {
	return &metadata.DIBasicType{
		Tag:      enum.DwarfTagBaseType,
		Name:     name,
		Size:     sizeInBits,
		Encoding: encoding,
	}
}

// newPointerDebugType creates a DIDerivedType wrapping base as a pointer.
func newPointerDebugType(base metadata.Definition) *metadata.DIDerivedType {
	return &metadata.DIDerivedType{
		Tag:      enum.DwarfTagPointerType,
		BaseType: base,
		Size:     64,
	}
}

// debugTypeSize returns the size in bits recorded on a debug type handle, or
// 0 if it carries none.
func debugTypeSize(def metadata.Definition) uint64 {
	switch d := def.(type) {
	case *metadata.DIBasicType:
		return d.Size
	case *metadata.DIDerivedType:
		return d.Size
	case *metadata.DICompositeType:
		return d.Size
	}
	return 0
}

// RegisterMetadata adds a metadata definition to the module's definition
// table, assigning it the next free id.  Re-registering a definition is a
// no-op.
func RegisterMetadata(llmod *ir.Module, def metadata.Definition) {
	for _, existing := range llmod.MetadataDefs {
		if existing == def {
			return
		}
	}

	def.SetID(int64(len(llmod.MetadataDefs)))
	llmod.MetadataDefs = append(llmod.MetadataDefs, def)
}
