package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffered(t *testing.T) {
	var b Buffered[string]

	b.SetDraft("sal")
	assert.Equal(t, "sal", b.Draft())
	assert.Equal(t, "", b.Committed())

	assert.True(t, b.Commit())
	assert.Equal(t, "sal", b.Committed())
	assert.False(t, b.Commit(), "committing the same value is not a change")

	b.SetDraft("  salmon ")
	assert.True(t, b.CommitFunc(NormalizeSearch))
	assert.Equal(t, "salmon", b.Committed())
	assert.Equal(t, "  salmon ", b.Draft())

	b.Reset("")
	assert.Equal(t, "", b.Draft())
	assert.Equal(t, "", b.Committed())
}

func TestParseBound(t *testing.T) {
	for _, text := range []string{"", "   ", "abc", "1,5", "Inf", "NaN"} {
		assert.Nil(t, ParseBound(text), "input %q", text)
	}

	v := ParseBound(" 12.5 ")
	require.NotNil(t, v)
	assert.Equal(t, 12.5, *v)

	v = ParseBound("0")
	require.NotNil(t, v, "zero is a real bound")
	assert.Equal(t, 0.0, *v)
}

func TestNormalizeSearch(t *testing.T) {
	assert.Equal(t, "salmon", NormalizeSearch(" ｓａｌｍｏｎ "))
	assert.Equal(t, "鮭魚", NormalizeSearch("鮭魚\t"))
}
