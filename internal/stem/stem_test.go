package stem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWord_StripsLongestMatchingSuffix(t *testing.T) {
	assert.Equal(t, "runn", Word("running"))
	assert.Equal(t, "jump", Word("jumps"))
	assert.Equal(t, "wait", Word("waited"))
	assert.Equal(t, "teach", Word("teacher"))
}

func TestWord_Lowercases(t *testing.T) {
	assert.Equal(t, "hello", Word("HELLO"))
}

func TestWord_LeavesShortWordsAlone(t *testing.T) {
	// len(lower) must exceed len(suffix)+2, so short words survive untouched.
	assert.Equal(t, "is", Word("is"))
	assert.Equal(t, "as", Word("as"))
	assert.Equal(t, "ed", Word("ed"))
}

func TestWord_NoMatchingSuffixReturnsLowered(t *testing.T) {
	assert.Equal(t, "cat", Word("cat"))
}

func TestTokenize_SplitsOnPunctuationAndWhitespace(t *testing.T) {
	got := Tokenize("Hello, world! 123 foo-bar")
	assert.Equal(t, []string{"Hello", "world", "123", "foo", "bar"}, got)
}

func TestTokenize_EmptyString(t *testing.T) {
	assert.Empty(t, Tokenize(""))
}

func TestText_DropsStopwordsAndStems(t *testing.T) {
	got := Text("The quick fox is running to the store")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "is")
	assert.Contains(t, got, "runn")
	assert.Contains(t, got, "quick")
	assert.Contains(t, got, "store")
}

func TestText_QueryAndBodyStemIdentically(t *testing.T) {
	body := Text("Running errands")
	query := Text("running")
	assert.Contains(t, body, query)
}

func TestText_EmptyInputYieldsEmptyOutput(t *testing.T) {
	assert.Equal(t, "", Text(""))
}
