package genome

import "fmt"

// Expand extends anchor by up bases upstream and down bases downstream,
// respecting the anchor's strand. On the minus strand upstream lies at higher
// positions, so up and down are swapped and the keys are returned in
// decreasing position order.
//
// Every position in the range yields two keys. Plus-strand anchors emit
// (pos, Plus) then (pos, Minus); minus-strand anchors emit the exact reverse of
// that sequence.
func Expand(anchor Key, up, down int64) ([]Key, error) {
	var left, right int64
	switch anchor.Strand {
	case Plus:
		left, right = up, down
	case Minus:
		left, right = down, up
	default:
		return nil, &StrandError{Value: fmt.Sprint(uint8(anchor.Strand))}
	}
	lo, hi, n, err := span(anchor, left, right)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, n*2)
	if anchor.Strand == Plus {
		for i := int64(0); i < n; i++ {
			p := lo + i
			keys = append(keys,
				Key{Chrom: anchor.Chrom, Pos: p, Strand: Plus},
				Key{Chrom: anchor.Chrom, Pos: p, Strand: Minus})
		}
		return keys, nil
	}
	for i := int64(0); i < n; i++ {
		p := hi - i
		keys = append(keys,
			Key{Chrom: anchor.Chrom, Pos: p, Strand: Minus},
			Key{Chrom: anchor.Chrom, Pos: p, Strand: Plus})
	}
	return keys, nil
}

// ExpandUnstranded extends k by up bases to the left and down bases to the
// right regardless of its strand, returning keys in increasing position order
// with (pos, Plus) before (pos, Minus).
func ExpandUnstranded(k Key, up, down int64) ([]Key, error) {
	lo, _, n, err := span(k, up, down)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, n*2)
	for i := int64(0); i < n; i++ {
		p := lo + i
		keys = append(keys,
			Key{Chrom: k.Chrom, Pos: p, Strand: Plus},
			Key{Chrom: k.Chrom, Pos: p, Strand: Minus})
	}
	return keys, nil
}

// Reverse reverses keys in place.
func Reverse(keys []Key) {
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
}

// span returns the inclusive range [k.Pos-left, k.Pos+right] and its number
// of positions.
func span(k Key, left, right int64) (lo, hi, n int64, err error) {
	if left < 0 || right < 0 {
		return 0, 0, 0, fmt.Errorf("%w: negative extension (%d, %d)", ErrInvalidWindow, left, right)
	}
	var ok bool
	if lo, ok = subInt64(k.Pos, left); !ok {
		return 0, 0, 0, &OverflowError{Key: k, Extension: left}
	}
	if hi, ok = addInt64(k.Pos, right); !ok {
		return 0, 0, 0, &OverflowError{Key: k, Extension: right}
	}
	width, ok := addInt64(left, right)
	if ok {
		n, ok = addInt64(width, 1)
	}
	if ok {
		_, ok = addInt64(n, n)
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: extension (%d, %d)", ErrRegionOverflow, left, right)
	}
	return lo, hi, n, nil
}
