package mir

import (
	"math"

	"github.com/orizon-lang/ancl/internal/errors"
	"github.com/orizon-lang/ancl/internal/layout"
)

// Slot is one stack slot of a LocalDataArea.
type Slot struct {
	Key    int
	Size   int64
	Align  int64
	Offset int64

	// Fixed slots live in the caller's frame; ArgOffset is their distance
	// from the first stack-passed argument.
	Fixed     bool
	ArgOffset int64
}

// LocalDataArea is the append-only stack slot table of one function. Slots
// are keyed by the virtual register that names their address.
type LocalDataArea struct {
	Slots []*Slot
	// Size is the running size of the non-fixed slots.
	Size int64
	// CalleeSaved is the number of callee-saved registers pushed between the
	// return address and the frame pointer.
	CalleeSaved int

	byKey map[int]*Slot
}

func NewLocalDataArea() *LocalDataArea {
	return &LocalDataArea{byKey: make(map[int]*Slot)}
}

// AddSlot appends a slot. Its offset is the running size aligned up to align.
func (l *LocalDataArea) AddSlot(key int, size, align int64) *Slot {
	if align < 1 {
		align = 1
	}
	s := &Slot{Key: key, Size: size, Align: align, Offset: layout.AlignUp(l.Size, align)}
	l.Size = s.Offset + size
	l.Slots = append(l.Slots, s)
	l.byKey[key] = s
	return s
}

// AddFixedSlot registers an incoming stack argument.
func (l *LocalDataArea) AddFixedSlot(key int, size, argOffset int64) *Slot {
	s := &Slot{Key: key, Size: size, Align: 8, Fixed: true, ArgOffset: argOffset}
	l.Slots = append(l.Slots, s)
	l.byKey[key] = s
	return s
}

// Slot returns the slot registered under key.
func (l *LocalDataArea) Slot(key int) (*Slot, bool) {
	s, ok := l.byKey[key]
	return s, ok
}

// ResolvedOffset is the distance below the frame pointer of the slot's
// lowest address, so the slot lives at ARP - ResolvedOffset. Incoming
// arguments resolve to negative offsets above the saved registers and the
// return address.
func (l *LocalDataArea) ResolvedOffset(fn string, key int) (int64, error) {
	s, ok := l.byKey[key]
	if !ok {
		return 0, errors.MissingStackSlot(fn, key)
	}
	if s.Fixed {
		return -(16 + 8*int64(l.CalleeSaved) + s.ArgOffset), nil
	}
	return s.Offset + s.Size, nil
}

// DataKind selects the directive of a data slot.
type DataKind int

const (
	DataZero DataKind = iota
	DataByte
	DataShort
	DataLong
	DataQuad
	// DataASCII holds bytes without a terminator, DataASCIZ adds one.
	DataASCII
	DataASCIZ
	// DataLabel is a quad holding the address of Symbol.
	DataLabel
)

// DataSlot is one directive of a GlobalDataArea.
type DataSlot struct {
	Kind   DataKind
	Value  int64
	Symbol string
	Bytes  string
}

// GlobalDataArea is one labeled object in a data section.
type GlobalDataArea struct {
	Name  string
	Const bool
	Local bool
	Align int64
	Slots []DataSlot
	Size  int64
}

// AddZero appends n zero bytes.
func (g *GlobalDataArea) AddZero(n int64) {
	if n <= 0 {
		return
	}
	g.Slots = append(g.Slots, DataSlot{Kind: DataZero, Value: n})
	g.Size += n
}

// AddInteger appends an integer of the given width.
func (g *GlobalDataArea) AddInteger(bytes int, v int64) error {
	var kind DataKind
	switch bytes {
	case 1:
		kind = DataByte
	case 2:
		kind = DataShort
	case 4:
		kind = DataLong
	case 8:
		kind = DataQuad
	default:
		return errors.Lowering("BAD_DATA_WIDTH", "no data directive for this width",
			map[string]interface{}{"area": g.Name, "bytes": bytes})
	}
	g.Slots = append(g.Slots, DataSlot{Kind: kind, Value: v})
	g.Size += int64(bytes)
	return nil
}

// AddFloat appends the bit pattern of a single precision float.
func (g *GlobalDataArea) AddFloat(v float64) {
	g.Slots = append(g.Slots, DataSlot{Kind: DataLong, Value: int64(math.Float32bits(float32(v)))})
	g.Size += 4
}

// AddDouble appends the bit pattern of a double.
func (g *GlobalDataArea) AddDouble(v float64) {
	g.Slots = append(g.Slots, DataSlot{Kind: DataQuad, Value: int64(math.Float64bits(v))})
	g.Size += 8
}

// AddLabel appends the address of another symbol.
func (g *GlobalDataArea) AddLabel(symbol string) {
	g.Slots = append(g.Slots, DataSlot{Kind: DataLabel, Symbol: symbol})
	g.Size += 8
}

// AddString appends the bytes of s and, when terminate is set, a NUL.
func (g *GlobalDataArea) AddString(s string, terminate bool) {
	kind := DataASCII
	n := int64(len(s))
	if terminate {
		kind = DataASCIZ
		n++
	}
	g.Slots = append(g.Slots, DataSlot{Kind: kind, Bytes: s})
	g.Size += n
}

// IsInitialized reports whether any slot holds something other than zeros.
func (g *GlobalDataArea) IsInitialized() bool {
	for _, s := range g.Slots {
		if s.Kind != DataZero {
			return true
		}
	}
	return false
}
