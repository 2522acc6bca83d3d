package moderation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModerator(t *testing.T, words ...string) Moderator {
	t.Helper()
	m, err := NewModerator(words, '*')
	require.NoError(t, err)
	return m
}

func TestModerator_CensorsPlainWord(t *testing.T) {
	m := newTestModerator(t, "secret")
	require.Equal(t, "the ****** plan", m.Censor("the secret plan"))
}

func TestModerator_IsCaseInsensitive(t *testing.T) {
	m := newTestModerator(t, "secret")
	require.Equal(t, "****** out", m.Censor("SeCrEt out"))
}

func TestModerator_CatchesLeetSpeak(t *testing.T) {
	m := newTestModerator(t, "secret")
	require.Equal(t, "the ****** plan", m.Censor("the s3cr3t plan"))
}

func TestModerator_LeavesCleanTextAlone(t *testing.T) {
	m := newTestModerator(t, "secret")
	input := "nothing to see here"
	require.Equal(t, input, m.Censor(input))
}

func TestModerator_MultipleHits(t *testing.T) {
	m := newTestModerator(t, "foo", "bar")
	require.Equal(t, "*** and *** again ***", m.Censor("foo and bar again foo"))
}

func TestModerator_EmptyInput(t *testing.T) {
	m := newTestModerator(t, "secret")
	require.Equal(t, "", m.Censor(""))
}
