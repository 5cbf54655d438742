// Package layout computes sizes, alignments and field offsets of IR types.
// The same rules are used for IR member offsets, MIR stack slots and global
// data emission.
package layout

import (
	"fmt"
	"strings"

	"tlog.app/go/tlog"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

// LayoutKind represents different types of memory layouts
type LayoutKind int

const (
	LayoutScalar LayoutKind = iota
	LayoutArray
	LayoutStruct
	LayoutPointer
)

// MemoryLayout defines the memory layout of a data type
type MemoryLayout struct {
	Kind        LayoutKind
	Size        int64 // Total size in bytes
	Alignment   int64 // Required alignment in bytes
	ElementSize int64 // Size of individual elements (for arrays)
}

// ArrayLayout represents the memory layout of a fixed-size array
type ArrayLayout struct {
	ElementType  string // Type name of elements
	ElementSize  int64  // Size of each element in bytes
	ElementAlign int64  // Alignment requirement of elements
	Length       int64  // Number of elements
	TotalSize    int64  // Total array size (Length * ElementSize)
}

// StructLayout represents the memory layout of a struct
type StructLayout struct {
	Name       string        // Struct name
	Fields     []FieldInfo   // Field information
	TotalSize  int64         // Total struct size including padding
	Alignment  int64         // Required alignment
	PaddingMap []PaddingInfo // Padding information
}

// FieldInfo contains information about a struct field
type FieldInfo struct {
	Index     int    // Field position
	Type      string // Field type name
	Offset    int64  // Offset from struct start
	Size      int64  // Size of the field
	Alignment int64  // Required alignment
}

// PaddingInfo represents padding bytes inserted for alignment
type PaddingInfo struct {
	Offset int64  // Offset where padding starts
	Size   int64  // Number of padding bytes
	Reason string // Reason for padding (e.g., "field alignment", "struct alignment")
}

// LayoutCalculator provides methods to calculate memory layouts
type LayoutCalculator struct {
	TargetPointerSize  int64 // Size of pointers and labels (8 for x64)
	MinStructAlignment int64 // Lower bound of every struct's alignment
}

// NewLayoutCalculator creates a new layout calculator for x64 architecture
func NewLayoutCalculator() *LayoutCalculator {
	return &LayoutCalculator{
		TargetPointerSize:  8,
		MinStructAlignment: 8,
	}
}

// Default is the x64 calculator used across the compiler.
var Default = NewLayoutCalculator()

// SizeOf returns the storage size of t.
func SizeOf(t *ir.Type) (int64, error) {
	l, err := Default.Layout(t)
	if err != nil {
		return 0, err
	}
	return l.Size, nil
}

// AlignOf returns the alignment of t.
func AlignOf(t *ir.Type) (int64, error) {
	l, err := Default.Layout(t)
	if err != nil {
		return 0, err
	}
	return l.Alignment, nil
}

// FieldOffset returns the byte offset of field index in struct t.
func FieldOffset(t *ir.Type, index int) (int64, error) {
	sl, err := Default.CalculateStructLayout(t)
	if err != nil {
		return 0, err
	}
	off, ok := sl.GetFieldOffset(index)
	if !ok {
		return 0, errors.OperandOutOfRange(index, len(sl.Fields), t.String())
	}
	return off, nil
}

// Layout returns the size and alignment of any storable IR type.
func (lc *LayoutCalculator) Layout(t *ir.Type) (*MemoryLayout, error) {
	if t == nil {
		return nil, errors.Structural("NO_LAYOUT", "missing type", nil)
	}
	switch t.Kind {
	case ir.TypeInt:
		w := int64(t.ByteWidth())
		return &MemoryLayout{Kind: LayoutScalar, Size: w, Alignment: w}, nil

	case ir.TypeFloat:
		var w int64
		switch t.Float {
		case ir.Float:
			w = 4
		case ir.Double:
			w = 8
		default:
			w = 16
		}
		return &MemoryLayout{Kind: LayoutScalar, Size: w, Alignment: w}, nil

	case ir.TypePointer, ir.TypeLabel:
		return &MemoryLayout{
			Kind:      LayoutPointer,
			Size:      lc.TargetPointerSize,
			Alignment: lc.TargetPointerSize,
		}, nil

	case ir.TypeArray:
		elem, err := lc.Layout(t.Elem)
		if err != nil {
			return nil, err
		}
		arrayLayout, err := lc.CalculateArrayLayout(t.Elem.String(), elem.Size, elem.Alignment, t.Count)
		if err != nil {
			return nil, err
		}
		if tlog.If("layout") {
			tlog.Printw("array layout", "layout", arrayLayout.String())
		}
		return &MemoryLayout{
			Kind:        LayoutArray,
			Size:        arrayLayout.TotalSize,
			Alignment:   arrayLayout.ElementAlign,
			ElementSize: arrayLayout.ElementSize,
		}, nil

	case ir.TypeStruct:
		sl, err := lc.CalculateStructLayout(t)
		if err != nil {
			return nil, err
		}
		if tlog.If("layout") {
			tlog.Printw("struct layout", "layout", sl.String(), "density", sl.Density())
		}
		return &MemoryLayout{Kind: LayoutStruct, Size: sl.TotalSize, Alignment: sl.Alignment}, nil

	default:
		return nil, errors.Structural("NO_LAYOUT", fmt.Sprintf("type %s has no storage layout", t),
			map[string]interface{}{"type": t.String()})
	}
}

// CalculateArrayLayout calculates the memory layout for a fixed-size array
func (lc *LayoutCalculator) CalculateArrayLayout(elementType string, elementSize, elementAlign, length int64) (*ArrayLayout, error) {
	if length < 0 {
		return nil, badArray(elementType, "negative length")
	}
	if elementSize <= 0 {
		return nil, badArray(elementType, "element without storage")
	}
	if elementAlign <= 0 {
		elementAlign = 1
	}

	if !isPowerOfTwo(elementAlign) {
		return nil, badArray(elementType, "alignment is not a power of two")
	}

	return &ArrayLayout{
		ElementType:  elementType,
		ElementSize:  elementSize,
		ElementAlign: elementAlign,
		Length:       length,
		TotalSize:    length * elementSize,
	}, nil
}

func badArray(elem, reason string) error {
	return errors.Structural("BAD_ARRAY", fmt.Sprintf("array of %s: %s", elem, reason),
		map[string]interface{}{"element": elem})
}

// CalculateStructLayout places the fields of t sequentially, each at the
// running size aligned up to the field's alignment. The total size is padded
// to the struct alignment, which is the largest field alignment but never
// below MinStructAlignment.
func (lc *LayoutCalculator) CalculateStructLayout(t *ir.Type) (*StructLayout, error) {
	if !t.IsStruct() {
		return nil, errors.Structural("NOT_STRUCT", fmt.Sprintf("type %s is not a struct", t),
			map[string]interface{}{"type": t.String()})
	}

	var padding []PaddingInfo
	layoutFields := make([]FieldInfo, 0, len(t.Fields))
	currentOffset := int64(0)
	maxAlignment := lc.MinStructAlignment

	for i, ft := range t.Fields {
		fl, err := lc.Layout(ft)
		if err != nil {
			return nil, errors.Annotate(err, "field", fmt.Sprintf("%d of %s", i, t))
		}

		// Track maximum alignment requirement
		if fl.Alignment > maxAlignment {
			maxAlignment = fl.Alignment
		}

		// Add padding for field alignment
		alignedOffset := alignUp(currentOffset, fl.Alignment)
		if alignedOffset > currentOffset {
			padding = append(padding, PaddingInfo{
				Offset: currentOffset,
				Size:   alignedOffset - currentOffset,
				Reason: fmt.Sprintf("alignment for field %d", i),
			})
		}

		layoutFields = append(layoutFields, FieldInfo{
			Index:     i,
			Type:      ft.String(),
			Offset:    alignedOffset,
			Size:      fl.Size,
			Alignment: fl.Alignment,
		})

		currentOffset = alignedOffset + fl.Size
	}

	// Add final padding for struct alignment
	totalSize := alignUp(currentOffset, maxAlignment)
	if totalSize > currentOffset {
		padding = append(padding, PaddingInfo{
			Offset: currentOffset,
			Size:   totalSize - currentOffset,
			Reason: "struct alignment",
		})
	}

	return &StructLayout{
		Name:       t.String(),
		Fields:     layoutFields,
		TotalSize:  totalSize,
		Alignment:  maxAlignment,
		PaddingMap: padding,
	}, nil
}

// Utility functions

// isPowerOfTwo checks if a number is a power of 2
func isPowerOfTwo(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}

// alignUp rounds up to the next multiple of alignment
func alignUp(value, alignment int64) int64 {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) & ^(alignment - 1)
}

// AlignUp rounds value up to a multiple of the power-of-two alignment.
func AlignUp(value, alignment int64) int64 { return alignUp(value, alignment) }

// GetFieldOffset returns the byte offset of a field within a struct
func (sl *StructLayout) GetFieldOffset(index int) (int64, bool) {
	if index < 0 || index >= len(sl.Fields) {
		return 0, false
	}
	return sl.Fields[index].Offset, true
}

// GetPaddingBytes returns the total number of padding bytes in the struct
func (sl *StructLayout) GetPaddingBytes() int64 {
	var total int64
	for _, pad := range sl.PaddingMap {
		total += pad.Size
	}
	return total
}

// Density is the share of the struct's bytes occupied by fields.
func (sl *StructLayout) Density() float64 {
	if sl.TotalSize == 0 {
		return 1.0
	}
	return float64(sl.TotalSize-sl.GetPaddingBytes()) / float64(sl.TotalSize)
}

func (al *ArrayLayout) String() string {
	return fmt.Sprintf("[%d x %s] size=%d align=%d", al.Length, al.ElementType, al.TotalSize, al.ElementAlign)
}

// String lists the field offsets and each padding run with its cause.
func (sl *StructLayout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s size=%d align=%d", sl.Name, sl.TotalSize, sl.Alignment)
	for _, f := range sl.Fields {
		fmt.Fprintf(&b, " %d:%s@%d", f.Index, f.Type, f.Offset)
	}
	for _, p := range sl.PaddingMap {
		fmt.Fprintf(&b, " pad %d@%d (%s)", p.Size, p.Offset, p.Reason)
	}
	return b.String()
}
