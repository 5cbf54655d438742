package mirgen

import (
	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/ir"
	"github.com/orizon-lang/ancl/internal/layout"
	"github.com/orizon-lang/ancl/internal/mir"
)

// lowerGlobal lays out the initial contents of a global variable. A global
// without an initializer is zero filled.
func lowerGlobal(g *ir.GlobalVariable) (*mir.GlobalDataArea, error) {
	t := g.ValueType
	lay, err := layout.Default.Layout(t)
	if err != nil {
		return nil, errors.Annotate(err, "global", g.Name())
	}
	area := &mir.GlobalDataArea{
		Name:  g.Name(),
		Const: g.Const,
		Local: g.Linkage == ir.InternalLinkage,
		Align: lay.Alignment,
	}
	size := lay.Size
	switch g.Init {
	case ir.InitNone:
		area.AddZero(size)
	case ir.InitScalar:
		if err := addScalar(area, g.InitValue); err != nil {
			return nil, err
		}
	case ir.InitList:
		if err := addList(area, t, g.InitList); err != nil {
			return nil, err
		}
	case ir.InitString:
		s := g.InitString
		if int64(len(s)) < size {
			area.AddString(s, true)
		} else {
			area.AddString(s[:size], false)
		}
	case ir.InitGlobal:
		if g.InitRef == nil {
			return nil, errors.Structural("MISSING_INIT_REF", "global initializer names no global", nil)
		}
		area.AddLabel(g.InitRef.Name())
	}
	area.AddZero(size - area.Size)
	return area, nil
}

// addList writes the elements of an array or the fields of a struct,
// padding each field to its offset.
func addList(area *mir.GlobalDataArea, t *ir.Type, vals []ir.Value) error {
	start := area.Size
	for k, v := range vals {
		if t.IsStruct() {
			if k >= len(t.Fields) {
				return errors.Structural("INIT_LIST_LENGTH", "more initializers than fields",
					map[string]interface{}{"area": area.Name})
			}
			off, err := layout.FieldOffset(t, k)
			if err != nil {
				return err
			}
			area.AddZero(start + off - area.Size)
		}
		if err := addScalar(area, v); err != nil {
			return err
		}
	}
	return nil
}

func addScalar(area *mir.GlobalDataArea, v ir.Value) error {
	switch v := v.(type) {
	case *ir.IntConstant:
		size, err := layout.SizeOf(v.Type())
		if err != nil {
			return err
		}
		return area.AddInteger(int(size), v.Value)
	case *ir.FloatConstant:
		switch v.Type().Float {
		case ir.Float:
			area.AddFloat(v.Value)
		case ir.Double:
			area.AddDouble(v.Value)
		default:
			return errors.Unsupported("long double", "amd64")
		}
		return nil
	case *ir.GlobalVariable:
		area.AddLabel(v.Name())
		return nil
	case *ir.Function:
		area.AddLabel(v.Name())
		return nil
	}
	return errors.BadValueKind("constant initializer", v)
}
