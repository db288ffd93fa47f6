package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, l)
	assert.Equal(t, "DEBUG", l.String())

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelString_OutOfRange(t *testing.T) {
	assert.Equal(t, "Level(42)", Level(42).String())
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLogger(LevelInfo, &out, &errOut)

	l.Debugf("hidden %d", 1)
	l.Infof("shown %d", 2)
	l.Warn("careful")
	l.Errorf("broken %s", "thing")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "INFO :")
	assert.Contains(t, out.String(), "shown 2")
	assert.Contains(t, errOut.String(), "WARN :")
	assert.Contains(t, errOut.String(), "broken thing")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.NotPanics(t, func() {
		l.Error("nothing")
		l.Tracef("nothing %d", 1)
	})
}
