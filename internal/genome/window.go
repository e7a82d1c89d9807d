package genome

import (
	"fmt"
	"math"
)

// Mode selects how a window is turned into keys. Both modes produce the same
// sequence; they differ only in where strand mirroring happens.
type Mode int

const (
	// StrandAgnostic builds the window in increasing position order from the
	// left-most target base and reverses it for minus-strand occurrences.
	StrandAgnostic Mode = iota
	// StrandRespecting anchors the window at the target's 5' end on its own
	// strand and lets Expand produce the strand-ordered range directly.
	StrandRespecting
)

// ParseMode parses "agnostic" or "respecting".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "agnostic", "":
		return StrandAgnostic, nil
	case "respecting":
		return StrandRespecting, nil
	}
	return 0, fmt.Errorf("unknown expansion mode %q", s)
}

func (m Mode) String() string {
	if m == StrandRespecting {
		return "respecting"
	}
	return "agnostic"
}

// Window describes a target region of Width bases padded by Extension bases
// on each side.
type Window struct {
	Width     int64
	Extension int64
}

// NewWindow validates width and extension. The total length 2*extension+width
// and its two-stranded key count must both fit in an int64; otherwise the
// error wraps ErrRegionOverflow.
func NewWindow(width, extension int64) (Window, error) {
	if width < 1 {
		return Window{}, fmt.Errorf("%w: width %d is smaller than 1", ErrInvalidWindow, width)
	}
	if extension < 0 {
		return Window{}, fmt.Errorf("%w: extension %d is negative", ErrInvalidWindow, extension)
	}
	if extension > (math.MaxInt64-width)/2 {
		return Window{}, fmt.Errorf("%w: extension %d, width %d", ErrRegionOverflow, extension, width)
	}
	if 2*extension+width > math.MaxInt64/2 {
		return Window{}, fmt.Errorf("%w: extension %d, width %d (two strands)", ErrRegionOverflow, extension, width)
	}
	return Window{Width: width, Extension: extension}, nil
}

// Length returns the number of positions in the window: 2e + w.
func (w Window) Length() int64 {
	return 2*w.Extension + w.Width
}

// KeyCount returns the number of keys the window expands to: (2e + w) * 2.
func (w Window) KeyCount() int64 {
	return w.Length() * 2
}

// Up is the extension before the target's first base.
func (w Window) Up() int64 {
	return w.Extension
}

// Down is the extension after the target's first base, covering the rest of
// the target plus the trailing extension.
func (w Window) Down() int64 {
	return w.Extension + w.Width - 1
}

// Anchor converts the key of a target's left-most base into the key of its 5'
// end on the occurrence strand. For minus-strand targets that is the
// right-most base.
func (w Window) Anchor(k Key) (Key, error) {
	switch k.Strand {
	case Plus:
		return k, nil
	case Minus:
		pos, ok := addInt64(k.Pos, w.Width-1)
		if !ok {
			return Key{}, &OverflowError{Key: k, Extension: w.Width - 1}
		}
		return Key{Chrom: k.Chrom, Pos: pos, Strand: Minus}, nil
	}
	return Key{}, &StrandError{Value: fmt.Sprint(uint8(k.Strand))}
}

// Keys expands the occurrence whose left-most target base is k into the
// ordered keys of the whole window, upstream first on the occurrence strand.
// The result always holds exactly KeyCount keys.
func (w Window) Keys(k Key, mode Mode) ([]Key, error) {
	var (
		keys []Key
		err  error
	)
	switch mode {
	case StrandRespecting:
		anchor, aerr := w.Anchor(k)
		if aerr != nil {
			return nil, aerr
		}
		keys, err = Expand(anchor, w.Up(), w.Down())
	case StrandAgnostic:
		if !k.Strand.Valid() {
			return nil, &StrandError{Value: fmt.Sprint(uint8(k.Strand))}
		}
		keys, err = ExpandUnstranded(k, w.Up(), w.Down())
		if err == nil && k.Strand == Minus {
			Reverse(keys)
		}
	default:
		return nil, fmt.Errorf("unknown expansion mode %d", mode)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(keys)) != w.KeyCount() {
		return nil, Inconsistent("window at %s expanded to %d keys, expected %d", k, len(keys), w.KeyCount())
	}
	return keys, nil
}
