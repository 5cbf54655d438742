package layout

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
)

func TestLayoutCalculator(t *testing.T) {
	lc := NewLayoutCalculator()

	if lc.TargetPointerSize != 8 {
		t.Errorf("Expected pointer size 8, got %d", lc.TargetPointerSize)
	}

	if lc.MinStructAlignment != 8 {
		t.Errorf("Expected minimum struct alignment 8, got %d", lc.MinStructAlignment)
	}
}

func TestScalarLayout(t *testing.T) {
	lc := NewLayoutCalculator()

	tests := []struct {
		name          string
		typ           *ir.Type
		expectedSize  int64
		expectedAlign int64
	}{
		{"i1", ir.BoolType(), 1, 1},
		{"i8", ir.IntType(8), 1, 1},
		{"i16", ir.IntType(16), 2, 2},
		{"i32", ir.IntType(32), 4, 4},
		{"i64", ir.IntType(64), 8, 8},
		{"float", ir.FloatType(ir.Float), 4, 4},
		{"double", ir.FloatType(ir.Double), 8, 8},
		{"longdouble", ir.FloatType(ir.LongDouble), 16, 16},
		{"pointer", ir.PointerTo(ir.IntType(8)), 8, 8},
		{"label", ir.LabelType(), 8, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := lc.Layout(tt.typ)
			if err != nil {
				t.Fatalf("Unexpected error for %s: %v", tt.name, err)
			}

			if l.Size != tt.expectedSize {
				t.Errorf("Expected size %d, got %d", tt.expectedSize, l.Size)
			}

			if l.Alignment != tt.expectedAlign {
				t.Errorf("Expected alignment %d, got %d", tt.expectedAlign, l.Alignment)
			}
		})
	}
}

func TestArrayLayout(t *testing.T) {
	lc := NewLayoutCalculator()

	tests := []struct {
		name          string
		typ           *ir.Type
		expectedSize  int64
		expectedAlign int64
	}{
		{"int32_array", ir.ArrayOf(ir.IntType(32), 10), 40, 4},
		{"int64_array", ir.ArrayOf(ir.IntType(64), 5), 40, 8},
		{"char_array", ir.ArrayOf(ir.IntType(8), 16), 16, 1},
		{"zero_length_array", ir.ArrayOf(ir.IntType(32), 0), 0, 4},
		{"nested_array", ir.ArrayOf(ir.ArrayOf(ir.IntType(16), 3), 2), 12, 2},
		{"struct_array", ir.ArrayOf(ir.StructOf("", ir.IntType(8)), 3), 24, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := lc.Layout(tt.typ)
			if err != nil {
				t.Fatalf("Unexpected error for test %s: %v", tt.name, err)
			}

			if l.Size != tt.expectedSize {
				t.Errorf("Expected size %d, got %d for test %s", tt.expectedSize, l.Size, tt.name)
			}

			if l.Alignment != tt.expectedAlign {
				t.Errorf("Expected alignment %d, got %d for test %s", tt.expectedAlign, l.Alignment, tt.name)
			}
		})
	}
}

func TestArrayLayoutErrors(t *testing.T) {
	lc := NewLayoutCalculator()

	if _, err := lc.CalculateArrayLayout("i32", 4, 4, -1); err == nil {
		t.Error("Expected error for negative length")
	}

	if _, err := lc.CalculateArrayLayout("void", 0, 1, 5); err == nil {
		t.Error("Expected error for zero element size")
	}

	if _, err := lc.CalculateArrayLayout("odd", 3, 3, 5); err == nil {
		t.Error("Expected error for non power of two alignment")
	}
}

func TestStructLayout(t *testing.T) {
	lc := NewLayoutCalculator()
	i8, i16, i32, i64 := ir.IntType(8), ir.IntType(16), ir.IntType(32), ir.IntType(64)

	tests := []struct {
		name            string
		fields          []*ir.Type
		expectedSize    int64
		expectedAlign   int64
		expectedOffsets []int64
	}{
		{
			name:            "char_long",
			fields:          []*ir.Type{i8, i64},
			expectedSize:    16,
			expectedAlign:   8,
			expectedOffsets: []int64{0, 8},
		},
		{
			name:            "packed_small_fields",
			fields:          []*ir.Type{i8, i8, i16, i32},
			expectedSize:    8,
			expectedAlign:   8,
			expectedOffsets: []int64{0, 1, 2, 4},
		},
		{
			name:            "tail_padding",
			fields:          []*ir.Type{i64, i8},
			expectedSize:    16,
			expectedAlign:   8,
			expectedOffsets: []int64{0, 8},
		},
		{
			name:            "long_double_raises_alignment",
			fields:          []*ir.Type{i8, ir.FloatType(ir.LongDouble)},
			expectedSize:    32,
			expectedAlign:   16,
			expectedOffsets: []int64{0, 16},
		},
		{
			name:            "single_char",
			fields:          []*ir.Type{i8},
			expectedSize:    8,
			expectedAlign:   8,
			expectedOffsets: []int64{0},
		},
		{
			name:            "empty",
			fields:          nil,
			expectedSize:    0,
			expectedAlign:   8,
			expectedOffsets: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl, err := lc.CalculateStructLayout(ir.StructOf(tt.name, tt.fields...))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if sl.TotalSize != tt.expectedSize {
				t.Errorf("Expected size %d, got %d", tt.expectedSize, sl.TotalSize)
			}

			if sl.Alignment != tt.expectedAlign {
				t.Errorf("Expected alignment %d, got %d", tt.expectedAlign, sl.Alignment)
			}

			if len(sl.Fields) != len(tt.expectedOffsets) {
				t.Fatalf("Expected %d fields, got %d", len(tt.expectedOffsets), len(sl.Fields))
			}

			for i, want := range tt.expectedOffsets {
				if got, _ := sl.GetFieldOffset(i); got != want {
					t.Errorf("Field %d: expected offset %d, got %d", i, want, got)
				}
			}
		})
	}
}

func TestStructPadding(t *testing.T) {
	lc := NewLayoutCalculator()
	sl, err := lc.CalculateStructLayout(ir.StructOf("P", ir.IntType(8), ir.IntType(64), ir.IntType(8)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if sl.GetPaddingBytes() != 14 {
		t.Errorf("Expected 14 padding bytes, got %d", sl.GetPaddingBytes())
	}

	if len(sl.PaddingMap) != 2 {
		t.Fatalf("Expected 2 padding entries, got %d", len(sl.PaddingMap))
	}

	if sl.PaddingMap[1].Reason != "struct alignment" {
		t.Errorf("Expected trailing struct alignment padding, got %q", sl.PaddingMap[1].Reason)
	}

	if _, ok := sl.GetFieldOffset(3); ok {
		t.Error("Expected out of range field index to fail")
	}
}

func TestLayoutRejectsStorageless(t *testing.T) {
	lc := NewLayoutCalculator()
	if _, err := lc.Layout(ir.VoidType()); err == nil {
		t.Error("Expected error for void")
	}

	fn := ir.FunctionOf(ir.VoidType(), nil, false)
	if _, err := lc.Layout(fn); err == nil {
		t.Error("Expected error for function type")
	}
}

func TestLayoutErrorsAreStructural(t *testing.T) {
	tests := []struct {
		name string
		typ  *ir.Type
		code string
	}{
		{"void", ir.VoidType(), "NO_LAYOUT"},
		{"nil", nil, "NO_LAYOUT"},
		{"void_array", ir.ArrayOf(ir.VoidType(), 4), "NO_LAYOUT"},
		{"void_field", ir.StructOf("V", ir.IntType(8), ir.VoidType()), "NO_LAYOUT"},
		{"empty_struct_array", ir.ArrayOf(ir.StructOf("E"), 2), "BAD_ARRAY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SizeOf(tt.typ)
			if !errors.IsStructural(err) {
				t.Fatalf("Expected structural error, got %v", err)
			}
			if !stderrors.Is(err, errors.Structural(tt.code, "", nil)) {
				t.Errorf("Expected code %s, got %v", tt.code, err)
			}
		})
	}

	if _, err := NewLayoutCalculator().CalculateStructLayout(ir.IntType(32)); !errors.IsStructural(err) {
		t.Errorf("Expected structural error for non-struct, got %v", err)
	}
}

func TestFieldOffset(t *testing.T) {
	st := ir.StructOf("S", ir.IntType(8), ir.IntType(32), ir.IntType(64))

	off, err := FieldOffset(st, 2)
	if err != nil || off != 8 {
		t.Errorf("Expected offset 8, got %d (%v)", off, err)
	}

	if _, err := FieldOffset(st, 3); !errors.IsStructural(err) {
		t.Errorf("Expected structural error for field 3, got %v", err)
	}

	if align, err := AlignOf(st); err != nil || align != 8 {
		t.Errorf("Expected alignment 8, got %d (%v)", align, err)
	}
}

func TestLayoutStrings(t *testing.T) {
	lc := NewLayoutCalculator()
	sl, err := lc.CalculateStructLayout(ir.StructOf("P", ir.IntType(8), ir.IntType(64)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s := sl.String()
	for _, want := range []string{"size=16", "align=8", "1:i64@8", "pad 7@1 (alignment for field 1)"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in %q", want, s)
		}
	}
	if d := sl.Density(); d != 9.0/16.0 {
		t.Errorf("Expected density 0.5625, got %f", d)
	}

	empty, _ := lc.CalculateStructLayout(ir.StructOf("E"))
	if empty.Density() != 1.0 {
		t.Errorf("Expected empty struct density 1, got %f", empty.Density())
	}

	al, err := lc.CalculateArrayLayout("i32", 4, 4, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := al.String(); got != "[10 x i32] size=40 align=4" {
		t.Errorf("Unexpected array string %q", got)
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		value, align, want int64
	}{
		{0, 8, 0},
		{1, 8, 8},
		{8, 8, 8},
		{9, 16, 16},
		{5, 1, 5},
		{5, 0, 5},
	}

	for _, tt := range tests {
		if got := AlignUp(tt.value, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.value, tt.align, got, tt.want)
		}
	}

	if !isPowerOfTwo(16) || isPowerOfTwo(12) || isPowerOfTwo(0) {
		t.Error("isPowerOfTwo misclassified a value")
	}
}
