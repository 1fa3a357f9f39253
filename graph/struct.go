package graph

import (
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/metadata"
	"github.com/llir/llvm/ir/types"
)

// GraphStruct is a user-defined structure type: an ordered list of named
// fields.  It synthesises a DataType and the `_make_<S>` / `_break_<S>` node
// types exposed through its module.
type GraphStruct struct {
	module *GraphModule
	name   string
	fields []NamedDataType

	// dataType caches the synthesised DataType; invalidated on edit.
	dataType DataType
}

// newGraphStruct creates an empty struct inside mod.
func newGraphStruct(mod *GraphModule, name string) *GraphStruct {
	return &GraphStruct{module: mod, name: name}
}

// Module returns the module that owns the struct.
func (s *GraphStruct) Module() *GraphModule { return s.module }

// Context returns the context that owns the struct's module.
func (s *GraphStruct) Context() *Context { return s.module.Context() }

// Name returns the struct name.
func (s *GraphStruct) Name() string { return s.name }

// Fields returns the ordered struct fields.
func (s *GraphStruct) Fields() []NamedDataType { return s.fields }

// SetName renames the struct.  If updateReferences is set, every
// _make_/_break_ node across the context is re-typed; the updated nodes are
// returned.
func (s *GraphStruct) SetName(newName string, updateReferences bool) []*NodeInstance {
	if newName == "" {
		panic("cannot set an empty name on a struct")
	}

	s.module.UpdateLastEditTime()

	oldName := s.name
	s.name = newName
	s.dataType = DataType{}

	if !updateReferences {
		return nil
	}

	var updated []*NodeInstance
	for _, prefix := range []string{"_make_", "_break_"} {
		for _, inst := range s.Context().FindInstancesOfType(s.module.FullName(), prefix+oldName) {
			ty, res := s.module.NodeTypeFromName(prefix+newName, nil)
			if !res.Success() {
				return nil
			}
			inst.SetType(ty)
			updated = append(updated, inst)
		}
	}

	return updated
}

// AddField inserts a field before addBefore (appending when addBefore is past
// the end) and invalidates the cached DataType.
func (s *GraphStruct) AddField(ty DataType, name string, addBefore int, updateReferences bool) {
	s.module.UpdateLastEditTime()

	s.fields = insertNamed(s.fields, NamedDataType{Name: name, Type: ty}, addBefore)
	s.dataType = DataType{}

	if updateReferences {
		s.updateNodeReferences()
	}
}

// ModifyField replaces the field at idx.
func (s *GraphStruct) ModifyField(idx int, newTy DataType, newName string, updateReferences bool) {
	if idx >= len(s.fields) || !newTy.Valid() || newName == "" {
		panic("invalid ModifyField arguments")
	}

	s.module.UpdateLastEditTime()

	s.fields[idx] = NamedDataType{Name: newName, Type: newTy}
	s.dataType = DataType{}

	if updateReferences {
		s.updateNodeReferences()
	}
}

// RemoveField removes the field at idx.
func (s *GraphStruct) RemoveField(idx int, updateReferences bool) {
	if idx >= len(s.fields) {
		panic("RemoveField index out of range")
	}

	s.module.UpdateLastEditTime()

	s.fields = append(s.fields[:idx], s.fields[idx+1:]...)
	s.dataType = DataType{}

	if updateReferences {
		s.updateNodeReferences()
	}
}

// DataType synthesises (and caches) the struct's DataType: a named LLVM
// struct type plus a composite debug type built from the field debug types.
func (s *GraphStruct) DataType() DataType {
	if s.dataType.Valid() {
		return s.dataType
	}

	if len(s.fields) == 0 {
		return DataType{}
	}

	llFields := make([]types.Type, 0, len(s.fields))
	diFields := make([]metadata.Field, 0, len(s.fields))

	offset := uint64(0)
	for _, field := range s.fields {
		llFields = append(llFields, field.Type.LLVMType())

		size := debugTypeSize(field.Type.DebugType())
		diFields = append(diFields, &metadata.DIDerivedType{
			Tag:      enum.DwarfTagMember,
			Name:     field.Name,
			BaseType: field.Type.DebugType(),
			Size:     size,
			Offset:   offset,
		})
		offset += size
	}

	llType := types.NewStruct(llFields...)
	llType.SetName(s.name)

	diType := &metadata.DICompositeType{
		Tag:      enum.DwarfTagStructureType,
		Name:     s.name,
		Size:     offset,
		Elements: &metadata.Tuple{Fields: diFields},
	}

	s.dataType = NewDataType(s.module, s.name, llType, diType)
	return s.dataType
}

// updateNodeReferences re-types every _make_/_break_ instance of this struct
// across the context.
func (s *GraphStruct) updateNodeReferences() {
	for _, prefix := range []string{"_make_", "_break_"} {
		for _, inst := range s.Context().FindInstancesOfType(s.module.FullName(), prefix+s.name) {
			ty, res := s.module.NodeTypeFromName(prefix+s.name, nil)
			if !res.Success() {
				return
			}
			inst.SetType(ty)
		}
	}
}
