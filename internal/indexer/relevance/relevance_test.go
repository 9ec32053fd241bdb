package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_ExactRequiredForSmallQueries(t *testing.T) {
	assert.True(t, Matches("dune", "dune 2021 1080p bluray", ""))
	assert.False(t, Matches("dune", "inception 2010 1080p", ""))

	// "the" is a stop word, so "matrix" is the only significant token.
	assert.True(t, Matches("the matrix", "the matrix 1999 4k", ""))
	assert.True(t, Matches("the matrix", "matrix reloaded 2003", ""))
	assert.False(t, Matches("the matrix", "inception 2010 1080p", ""))
}

func TestMatches_PartialOverlapAllowedForLargerQueries(t *testing.T) {
	assert.True(t, Matches("the lord of the rings fellowship", "Lord of the Rings Fellowship Ring 2001", ""))
	assert.False(t, Matches("the lord of the rings fellowship", "Two Towers 2002", ""))
}

func TestMatches_ImdbIDAcceptsUnconditionally(t *testing.T) {
	assert.True(t, Matches("completely unrelated query", "tt1234567 Some Weird Release Name", "tt1234567"))
}

func TestMatches_StopWordOnlyQueryDisablesFilter(t *testing.T) {
	assert.True(t, Matches("the of a", "anything goes here", ""))
}

func TestRequiredMatches(t *testing.T) {
	assert.Equal(t, 1, requiredMatches(1, threshold(1)))
	assert.Equal(t, 2, requiredMatches(2, threshold(2)))
	assert.Equal(t, 2, requiredMatches(3, threshold(3)))
}
