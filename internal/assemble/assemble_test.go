package assemble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/kinwin/internal/genome"
	"github.com/inodb/kinwin/internal/kinetics"
)

func mustWindow(t *testing.T, width, ext int64) genome.Window {
	t.Helper()
	w, err := genome.NewWindow(width, ext)
	require.NoError(t, err)
	return w
}

func TestLabel(t *testing.T) {
	w := mustWindow(t, 4, 3) // length 10
	tests := []struct {
		p      int64
		strand genome.Strand
		label  string
		region Region
	}{
		{1, genome.Plus, "s1p", Upstream},
		{3, genome.Minus, "s3m", Upstream},
		{4, genome.Plus, "m1p", Target},
		{7, genome.Minus, "m4m", Target},
		{8, genome.Plus, "e1p", Downstream},
		{10, genome.Minus, "e3m", Downstream},
	}
	for _, tt := range tests {
		label, region, err := Label(tt.p, w, tt.strand)
		require.NoError(t, err)
		assert.Equal(t, tt.label, label)
		assert.Equal(t, tt.region, region)
	}
}

func TestLabel_NoExtension(t *testing.T) {
	w := mustWindow(t, 12, 0)
	label, region, err := Label(12, w, genome.Minus)
	require.NoError(t, err)
	assert.Equal(t, "m12m", label)
	assert.Equal(t, Target, region)
}

func TestClassify_CoversWindow(t *testing.T) {
	for _, dims := range [][2]int64{{1, 0}, {1, 1}, {5, 2}, {3, 7}} {
		w := mustWindow(t, dims[0], dims[1])
		counts := map[Region]int64{}
		for p := int64(1); p <= w.Length(); p++ {
			region, rel, err := Classify(p, w)
			require.NoError(t, err)
			counts[region]++
			assert.Equal(t, counts[region], rel, "offset %d", p)
		}
		assert.Equal(t, w.Extension, counts[Upstream])
		assert.Equal(t, w.Width, counts[Target])
		assert.Equal(t, w.Extension, counts[Downstream])
	}
}

func TestClassify_OutOfRange(t *testing.T) {
	w := mustWindow(t, 2, 1)
	for _, p := range []int64{0, -1, 5} {
		_, _, err := Classify(p, w)
		var le *LabelError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, p, le.Offset)
	}
}

func TestRegion_String(t *testing.T) {
	assert.Equal(t, "Upstream", Upstream.String())
	assert.Equal(t, "Target", Target.String())
	assert.Equal(t, "Downstream", Downstream.String())
}

func TestOffset(t *testing.T) {
	p, s := Offset(0)
	assert.Equal(t, int64(1), p)
	assert.Equal(t, genome.Plus, s)
	p, s = Offset(5)
	assert.Equal(t, int64(3), p)
	assert.Equal(t, genome.Minus, s)
}

func TestAssembler_Rows(t *testing.T) {
	w := mustWindow(t, 1, 1)
	tbl := kinetics.NewMapTable()
	tbl.Add(genome.NewKey("chr1", 100, genome.Minus),
		kinetics.Record{Base: 'G', TMean: 1.5, Coverage: 9})

	occurrence := genome.NewKey("chr1", 100, genome.Plus)
	keys, err := w.Keys(occurrence, genome.StrandAgnostic)
	require.NoError(t, err)

	rows, err := New(tbl, w).Rows(nil, 7, keys)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	var labels []string
	for _, r := range rows {
		labels = append(labels, r.Label)
		assert.Equal(t, 7, r.Src)
	}
	assert.Equal(t, []string{"s1p", "s1m", "m1p", "m1m", "e1p", "e1m"}, labels)

	target := rows[3]
	assert.Equal(t, genome.NewKey("chr1", 100, genome.Minus), target.Ref)
	assert.Equal(t, Target, target.Region)
	assert.Equal(t, float32(1.5), target.Value())
	assert.Equal(t, byte('G'), target.Record.Base)
	assert.Equal(t, kinetics.Record{}, rows[0].Record)
}

type brokenTable struct{}

func (brokenTable) Lookup(genome.Key) (kinetics.Record, error) {
	return kinetics.Record{}, genome.Inconsistent("bad slot")
}

func TestAssembler_LookupError(t *testing.T) {
	w := mustWindow(t, 1, 0)
	keys, err := w.Keys(genome.NewKey("chr1", 1, genome.Plus), genome.StrandAgnostic)
	require.NoError(t, err)
	_, err = New(brokenTable{}, w).Rows(nil, 1, keys)
	assert.True(t, errors.Is(err, genome.ErrInconsistent))
}
