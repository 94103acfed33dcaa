package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	cases := []struct {
		in   string
		want Ref
	}{
		{"A1", Ref{1, 1}},
		{"b2", Ref{2, 2}},
		{"Z10", Ref{10, 26}},
		{"AA1", Ref{1, 27}},
		{"$C$3", Ref{3, 3}},
		{" D4 ", Ref{4, 4}},
	}
	for _, tc := range cases {
		got, err := ParseRef(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "1A", "A0", "A", "12", "A1:B2", "ABCD1"} {
		_, err := ParseRef(bad)
		assert.ErrorIs(t, err, ErrInvalidReference, bad)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("B2:D10")
	require.NoError(t, err)
	assert.Equal(t, Range{Ref{2, 2}, Ref{10, 4}}, r)

	t.Run("single cell", func(t *testing.T) {
		r, err := ParseRange("C3")
		require.NoError(t, err)
		assert.Equal(t, r.Start, r.End)
		assert.Equal(t, "C3", r.String())
	})

	t.Run("reversed corners normalize", func(t *testing.T) {
		r, err := ParseRange("D10:B2")
		require.NoError(t, err)
		assert.Equal(t, Range{Ref{2, 2}, Ref{10, 4}}, r)
	})

	_, err = ParseRange("B2:")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestColumnLetterRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		idx    int
		letter string
	}{{1, "A"}, {26, "Z"}, {27, "AA"}, {52, "AZ"}, {703, "AAA"}} {
		assert.Equal(t, tc.letter, ColumnLetter(tc.idx))
		idx, err := ColumnIndex(tc.letter)
		require.NoError(t, err)
		assert.Equal(t, tc.idx, idx)
	}
}

func TestShiftFormulaRows(t *testing.T) {
	t.Run("insert shifts references at and below the pivot", func(t *testing.T) {
		assert.Equal(t, "SUM(A3:A12)", shiftFormulaRows("SUM(A1:A10)", 1, 2))
		assert.Equal(t, "A1+B7", shiftFormulaRows("A1+B5", 3, 2))
	})

	t.Run("delete pulls later references up", func(t *testing.T) {
		assert.Equal(t, "SUM(A1:A8)", shiftFormulaRows("SUM(A1:A10)", 2, -2))
	})

	t.Run("reference into deleted span becomes #REF!", func(t *testing.T) {
		assert.Equal(t, "#REF!+B1", shiftFormulaRows("A5+B1", 4, -3))
		assert.Equal(t, "SUM(#REF!:#REF!)", shiftFormulaRows("SUM(A2:A3)", 2, -5))
	})

	t.Run("function names with digits survive", func(t *testing.T) {
		assert.Equal(t, "LOG10(B3)", shiftFormulaRows("LOG10(B2)", 1, 1))
	})

	t.Run("absolute markers preserved", func(t *testing.T) {
		assert.Equal(t, "$A$4*2", shiftFormulaRows("$A$2*2", 1, 2))
	})
}

func TestShiftFormulaCols(t *testing.T) {
	assert.Equal(t, "SUM(C1:C9)", shiftFormulaCols("SUM(B1:B9)", 1, 1))
	assert.Equal(t, "A1+#REF!", shiftFormulaCols("A1+C2", 3, -1))
	assert.Equal(t, "SUM(B1:B9)", shiftFormulaCols("SUM(C1:C9)", 2, -1))
}
