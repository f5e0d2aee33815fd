package asciicast

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecording() *Recording {
	start := time.Unix(1700000000, 0)
	return &Recording{
		Header: NewHeader(60, 15, start, nil),
		Events: []Event{
			{Time: 100512 * time.Microsecond, Kind: Output, Data: []byte("\x1b[?25lready\r\n")},
			{Time: 3100 * time.Millisecond, Kind: Output, Data: []byte("<b>&amp;</b>")},
			{Time: 3100 * time.Millisecond, Kind: Output, Data: []byte("")},
		},
	}
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleRecording()))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t,
		`{"version":2,"width":60,"height":15,"timestamp":1700000000,"env":{"SHELL":"/bin/bash","TERM":"xterm-256color"}}`,
		lines[0])
	assert.Equal(t, `[0.100512,"o","\u001b[?25lready\r\n"]`, lines[1])
	assert.Equal(t, `[3.1,"o","<b>&amp;</b>"]`, lines[2], "html characters are not escaped")
	assert.Equal(t, `[3.1,"o",""]`, lines[3])

	for i, line := range lines {
		assert.True(t, json.Valid([]byte(line)), "line %d must parse on its own", i)
	}
}

func TestFormatTime(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want string
	}{
		{0, "0"},
		{time.Second, "1"},
		{1234567891 * time.Nanosecond, "1.234568"},
		{400 * time.Nanosecond, "0"},
		{1600 * time.Nanosecond, "0.000002"},
		{90 * time.Second, "90"},
	} {
		assert.Equal(t, tc.want, FormatTime(tc.in).String(), tc.in.String())
	}
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "", DecodeText(nil))
	assert.Equal(t, "héllo ✓", DecodeText([]byte("héllo ✓")))
	assert.Equal(t, "�� ok", DecodeText([]byte("\xff\xfe ok")))
	assert.Equal(t, "a�", DecodeText([]byte("a\xe2\x9c")), "a truncated sequence is replaced")
}

func TestWriter(t *testing.T) {
	t.Run("rejects invalid header", func(t *testing.T) {
		_, err := NewWriter(&bytes.Buffer{}, Header{Version: 2, Width: 0, Height: 10})
		assert.Error(t, err)
		_, err = NewWriter(&bytes.Buffer{}, Header{Version: 1, Width: 10, Height: 10})
		assert.Error(t, err)
	})

	t.Run("rejects decreasing time", func(t *testing.T) {
		w, err := NewWriter(&bytes.Buffer{}, NewHeader(80, 24, time.Now(), nil))
		require.NoError(t, err)
		require.NoError(t, w.WriteEvent(Event{Time: time.Second, Data: []byte("a")}))
		err = w.WriteEvent(Event{Time: time.Millisecond, Data: []byte("b")})
		assert.True(t, errors.Is(err, ErrDecreasingTime))
	})

	t.Run("rejects input events", func(t *testing.T) {
		w, err := NewWriter(&bytes.Buffer{}, NewHeader(80, 24, time.Now(), nil))
		require.NoError(t, err)
		assert.Error(t, w.WriteEvent(Event{Kind: Input, Data: []byte("q")}))
	})

	t.Run("invalid bytes are replaced", func(t *testing.T) {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, NewHeader(80, 24, time.Now(), nil))
		require.NoError(t, err)
		require.NoError(t, w.WriteEvent(Event{Data: []byte("\xffx")}))
		assert.Contains(t, buf.String(), `[0,"o","`+"�"+`x"]`)
	})

	t.Run("nil env is written as an object", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := NewWriter(&buf, Header{Version: 2, Width: 1, Height: 1})
		require.NoError(t, err)
		assert.Contains(t, buf.String(), `"env":{}`)
	})
}

func TestRoundTrip(t *testing.T) {
	original := sampleRecording()
	path := filepath.Join(t.TempDir(), "demo.cast")
	require.NoError(t, WriteFile(path, original))

	parsed, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original.Header, parsed.Header)
	require.Len(t, parsed.Events, len(original.Events))
	for i := range original.Events {
		assert.Equal(t, string(original.Events[i].Data), string(parsed.Events[i].Data))
		assert.Equal(t, Output, parsed.Events[i].Kind)
		assert.InDelta(t, original.Events[i].Time.Seconds(), parsed.Events[i].Time.Seconds(), 1e-6)
	}
	assert.InDelta(t, 3.1, parsed.Duration().Seconds(), 1e-9)
}

func TestWriteFile(t *testing.T) {
	t.Run("invalid recording is not written", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.cast")
		rec := sampleRecording()
		rec.Events[1].Time = 0
		require.Error(t, WriteFile(path, rec))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("no events", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.cast")
		rec := &Recording{Header: NewHeader(60, 15, time.Now(), nil)}
		require.NoError(t, WriteFile(path, rec))
		parsed, err := ReadFile(path)
		require.NoError(t, err)
		assert.Empty(t, parsed.Events)
		assert.Zero(t, parsed.Duration())
	})
}

func TestDecode(t *testing.T) {
	t.Run("tolerates blank lines and other kinds", func(t *testing.T) {
		in := "{\"version\":2,\"width\":80,\"height\":24,\"timestamp\":1,\"env\":{}}\n\n" +
			"[0.5, \"i\", \"q\"]\n[1.25, \"o\", \"bye\"]\n"
		rec, err := Decode(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, rec.Events, 2)
		assert.Equal(t, Input, rec.Events[0].Kind)
		assert.Equal(t, 1250*time.Millisecond, rec.Events[1].Time)
	})

	for name, in := range map[string]string{
		"empty":           "",
		"bad header":      "not json\n",
		"bad version":     `{"version":1,"width":80,"height":24}` + "\n",
		"short event":     `{"version":2,"width":80,"height":24}` + "\n[1,\"o\"]\n",
		"negative time":   `{"version":2,"width":80,"height":24}` + "\n[-1,\"o\",\"x\"]\n",
		"non-string data": `{"version":2,"width":80,"height":24}` + "\n[1,\"o\",5]\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestRecordingValidate(t *testing.T) {
	rec := sampleRecording()
	assert.NoError(t, rec.Validate())
	rec.Events[0].Time = -time.Second
	assert.Error(t, rec.Validate())
}
