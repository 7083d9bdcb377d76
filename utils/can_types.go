package utils

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownSignal is returned when a caller references a signal name that is
// not part of the loaded catalog.
var ErrUnknownSignal = errors.New("unknown signal")

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness string // "big" (Motorola, DBC start-bit convention) or "little"
}

// BigEndian reports whether the signal is packed MSB-first. Empty endianness
// means little, matching older catalog files.
func (s *SignalDef) BigEndian() bool { return s.Endianness == "big" }

type FrameDef struct {
	ID      uint32
	Name    string
	DLC     int
	CycleMS int
	Signals []SignalDef
}

// Catalog is the immutable description of the broadcast signal set: frames
// keyed by id and name plus a signal index across all frames. Loaded once at
// startup; concurrent readers need no locking.
type Catalog struct {
	ByID     map[uint32]*FrameDef
	ByName   map[string]*FrameDef
	BySignal map[string]*SignalDef

	ordered []*FrameDef // frames sorted by id
}

func newCatalog() *Catalog {
	return &Catalog{
		ByID:     map[uint32]*FrameDef{},
		ByName:   map[string]*FrameDef{},
		BySignal: map[string]*SignalDef{},
	}
}

// finish builds the derived indexes; call after all frames are added.
func (c *Catalog) finish() error {
	c.ordered = c.ordered[:0]
	for _, fd := range c.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
		c.ordered = append(c.ordered, fd)
	}
	sort.Slice(c.ordered, func(i, j int) bool { return c.ordered[i].ID < c.ordered[j].ID })

	for _, fd := range c.ordered {
		if err := checkOverlap(fd); err != nil {
			return err
		}
		for i := range fd.Signals {
			sig := &fd.Signals[i]
			if _, dup := c.BySignal[sig.Name]; dup {
				return fmt.Errorf("signal %q appears in more than one frame", sig.Name)
			}
			c.BySignal[sig.Name] = sig
		}
	}
	return nil
}

// checkOverlap rejects frames whose signals claim the same payload bit.
func checkOverlap(fd *FrameDef) error {
	owner := map[int]string{}
	for i := range fd.Signals {
		sig := &fd.Signals[i]
		for _, pos := range signalBits(sig) {
			if pos < 0 || pos >= fd.DLC*8 {
				return fmt.Errorf("frame %s signal %s: bit %d outside %d-byte payload", fd.Name, sig.Name, pos, fd.DLC)
			}
			if other, taken := owner[pos]; taken {
				return fmt.Errorf("frame %s: signals %s and %s overlap at bit %d", fd.Name, other, sig.Name, pos)
			}
			owner[pos] = sig.Name
		}
	}
	return nil
}

// signalBits returns the absolute payload bit positions a signal occupies.
// Big-endian signals start at their MSB and descend within each byte before
// wrapping to the next byte's bit 7 (DBC Motorola numbering).
func signalBits(sig *SignalDef) []int {
	out := make([]int, 0, sig.BitLength)
	if sig.BigEndian() {
		byteIdx, bit := sig.StartBit/8, sig.StartBit%8
		for i := 0; i < sig.BitLength; i++ {
			out = append(out, byteIdx*8+bit)
			bit--
			if bit < 0 {
				bit = 7
				byteIdx++
			}
		}
		return out
	}
	for i := 0; i < sig.BitLength; i++ {
		out = append(out, sig.StartBit+i)
	}
	return out
}

// Frames returns the frame definitions ordered by CAN id.
func (c *Catalog) Frames() []*FrameDef { return c.ordered }

// SignalNames returns every catalog signal name, ordered by frame id then bit
// position. This is the canonical ordering telemetry consumers rely on.
func (c *Catalog) SignalNames() []string {
	out := make([]string, 0, len(c.BySignal))
	for _, fd := range c.ordered {
		for i := range fd.Signals {
			out = append(out, fd.Signals[i].Name)
		}
	}
	return out
}

// LookupSignal resolves a signal definition by name.
func (c *Catalog) LookupSignal(name string) (*SignalDef, error) {
	sig, ok := c.BySignal[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return sig, nil
}

func (c *Catalog) FrameByName(name string) (*FrameDef, error) {
	fd, ok := c.ByName[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame %q (available: %v)", name, c.FrameNames())
	}
	return fd, nil
}

func (c *Catalog) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := c.ByID[id]
	if !ok {
		return nil, fmt.Errorf("unknown frame id 0x%X", id)
	}
	return fd, nil
}

func (c *Catalog) FrameNames() []string {
	out := make([]string, 0, len(c.ordered))
	for _, fd := range c.ordered {
		out = append(out, fd.Name)
	}
	return out
}

// Defaults returns a fresh map of every signal's default physical value.
func (c *Catalog) Defaults() map[string]float64 {
	out := make(map[string]float64, len(c.BySignal))
	for name, sig := range c.BySignal {
		out[name] = sig.Default
	}
	return out
}

func validateSignal(frame *FrameDef, sig *SignalDef) error {
	if sig.BitLength <= 0 || sig.BitLength > 64 {
		return fmt.Errorf("frame %s signal %s: invalid bit_length %d", frame.Name, sig.Name, sig.BitLength)
	}
	if sig.StartBit < 0 || sig.StartBit >= frame.DLC*8 {
		return fmt.Errorf("frame %s signal %s: start_bit %d outside %d-byte frame", frame.Name, sig.Name, sig.StartBit, frame.DLC)
	}
	switch sig.Endianness {
	case "", "little", "big":
	default:
		return fmt.Errorf("frame %s signal %s: unsupported endianness %q", frame.Name, sig.Name, sig.Endianness)
	}
	if sig.Factor == 0 {
		return fmt.Errorf("frame %s signal %s: factor must be non-zero", frame.Name, sig.Name)
	}
	if sig.Min >= sig.Max {
		return fmt.Errorf("frame %s signal %s: empty physical range [%g,%g]", frame.Name, sig.Name, sig.Min, sig.Max)
	}
	return nil
}
