package script

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s, err := New(Wait(3*time.Second), Send(0, "q"))
		require.NoError(t, err)
		assert.Equal(t, 2, s.Len())
		assert.Equal(t, 3*time.Second, s.TotalDelay())
	})

	t.Run("negative delay", func(t *testing.T) {
		_, err := New(Wait(time.Second), Action{Delay: -time.Millisecond})
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, 1, cfgErr.Index)
		assert.Contains(t, err.Error(), "action 1")
	})

	t.Run("empty script", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)
		assert.Zero(t, s.Len())
		assert.Zero(t, s.TotalDelay())
	})

	t.Run("nil script is empty", func(t *testing.T) {
		var s *Script
		assert.Zero(t, s.Len())
		for range s.All() {
			t.Fatal("nil script yielded an action")
		}
	})

	t.Run("payload is copied", func(t *testing.T) {
		payload := []byte("ab")
		s := MustNew(Action{Payload: payload})
		payload[0] = 'x'
		for _, a := range s.All() {
			assert.Equal(t, []byte("ab"), a.Payload)
		}
	})

	t.Run("noop is tolerated", func(t *testing.T) {
		s, err := New(Action{})
		require.NoError(t, err)
		for _, a := range s.All() {
			assert.True(t, a.IsNoop())
		}
	})

	t.Run("MustNew panics", func(t *testing.T) {
		assert.Panics(t, func() { MustNew(Action{Delay: -1}) })
	})
}

func TestBuilders(t *testing.T) {
	actions := Concat(
		[]Action{Wait(Seconds(1.5))},
		Type(80*time.Millisecond, "hé"),
		Repeat(2, Send(150*time.Millisecond, Backspace)),
	)
	require.Len(t, actions, 5)
	assert.Nil(t, actions[0].Payload)
	assert.Equal(t, 1500*time.Millisecond, actions[0].Delay)
	assert.Equal(t, []byte("h"), actions[1].Payload)
	assert.Equal(t, []byte("é"), actions[2].Payload)
	assert.Equal(t, []byte("\x7f"), actions[4].Payload)
	assert.Empty(t, Repeat(-1, Wait(0)))
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, 80*time.Millisecond, Seconds(0.08))
	assert.Equal(t, time.Duration(0), Seconds(0))
	assert.Negative(t, Seconds(math.NaN()))
	assert.Negative(t, Seconds(math.Inf(1)))
}

func TestLookupKey(t *testing.T) {
	for name, want := range map[string]string{
		"up":     "\x1b[A",
		"DOWN":   "\x1b[B",
		"Esc":    "\x1b",
		"escape": "\x1b",
		"enter":  "\r",
		"ctrl-c": "\x03",
	} {
		got, ok := LookupKey(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	_, ok := LookupKey("q")
	assert.False(t, ok)
}

func TestParseAction(t *testing.T) {
	for _, tc := range []struct {
		line    string
		delay   time.Duration
		payload []byte
	}{
		{line: "3.0", delay: 3 * time.Second},
		{line: "0 q", payload: []byte("q")},
		{line: "0.3 right", delay: 300 * time.Millisecond, payload: []byte(Right)},
		{line: "250ms down down", delay: 250 * time.Millisecond, payload: []byte(Down + Down)},
		{line: `0.5 "Hello, world!" enter`, delay: 500 * time.Millisecond, payload: []byte("Hello, world!\r")},
	} {
		t.Run(tc.line, func(t *testing.T) {
			a, err := ParseAction(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.delay, a.Delay)
			assert.Equal(t, tc.payload, a.Payload)
		})
	}

	for _, line := range []string{"", "-1 q", "soon q", `0 "unterminated`, "NaN"} {
		t.Run("invalid "+line, func(t *testing.T) {
			_, err := ParseAction(line)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestParseTypeAndRepeat(t *testing.T) {
	actions, err := ParseType("0.08 Hello, World!")
	require.NoError(t, err)
	assert.Len(t, actions, len("Hello, World!"))
	assert.Equal(t, []byte(","), actions[5].Payload)
	assert.Equal(t, []byte(" "), actions[6].Payload)

	_, err = ParseType("0.08")
	assert.Error(t, err)

	actions, err = ParseRepeat("10 0.15 down")
	require.NoError(t, err)
	require.Len(t, actions, 10)
	assert.Equal(t, []byte(Down), actions[9].Payload)

	_, err = ParseRepeat("x 0.15 down")
	assert.Error(t, err)
	_, err = ParseRepeat("3")
	assert.Error(t, err)
}
