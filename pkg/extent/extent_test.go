package extent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	list, err := Parse("0:100,-1:50,200:25")
	require.NoError(t, err)
	require.Equal(t, List{
		{Offset: 0, Length: 100},
		{Offset: Sparse, Length: 50},
		{Offset: 200, Length: 25},
	}, list)
	assert.Equal(t, int64(175), list.TotalLength())
}

func TestParseSingle(t *testing.T) {
	list, err := Parse("5:10")
	require.NoError(t, err)
	require.Equal(t, List{{Offset: 5, Length: 10}}, list)
}

func TestParseNegativeOffsetNormalizes(t *testing.T) {
	list, err := Parse("-7:3")
	require.NoError(t, err)
	assert.True(t, list[0].IsSparse())
	assert.Equal(t, Sparse, list[0].Offset)
}

func TestParseEmptyRejected(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrBadGrammar)
}

func TestParseWhitespaceRejected(t *testing.T) {
	_, err := Parse("0: 10")
	assert.ErrorIs(t, err, ErrBadGrammar)
}

func TestParseMissingColon(t *testing.T) {
	_, err := Parse("0-10")
	assert.ErrorIs(t, err, ErrBadGrammar)
}

func TestParseZeroLength(t *testing.T) {
	_, err := Parse("0:0")
	assert.ErrorIs(t, err, ErrZeroLength)
}

func TestParseNegativeLength(t *testing.T) {
	_, err := Parse("0:-5")
	assert.ErrorIs(t, err, ErrZeroLength)
}

func TestParseOverflow(t *testing.T) {
	_, err := Parse("99999999999999999999:10")
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Parse("0:99999999999999999999")
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestParseMalformedLiteral(t *testing.T) {
	_, err := Parse("abc:10")
	assert.ErrorIs(t, err, ErrBadGrammar)
}

func TestParseTrailingComma(t *testing.T) {
	_, err := Parse("0:10,")
	assert.ErrorIs(t, err, ErrBadGrammar)
}

func TestParseLeadingPlusRejected(t *testing.T) {
	_, err := Parse("+5:10")
	assert.ErrorIs(t, err, ErrBadGrammar)

	_, err = Parse("0:+5")
	assert.ErrorIs(t, err, ErrBadGrammar)
}
