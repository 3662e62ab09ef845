package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSkipsBlankLinesAndParsesJSON(t *testing.T) {
	input := "\n" + `{"type":"message","text":"hi"}` + "\n\n" + `{"type":"completion"}` + "\n"
	d := NewDecoder(strings.NewReader(input))

	raw, err := d.Next()
	require.NoError(t, err)
	require.True(t, raw.IsJSON())
	assert.Equal(t, "message", raw.Value["type"])

	raw, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "completion", raw.Value["type"])

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrDone)
}

func TestDecoderTreatsMalformedLineAsRaw(t *testing.T) {
	input := "not json at all\n" + `{"ok":true}` + "\n"
	d := NewDecoder(strings.NewReader(input))

	raw, err := d.Next()
	require.NoError(t, err)
	assert.False(t, raw.IsJSON())
	assert.Equal(t, "not json at all", raw.Text)

	raw, err = d.Next()
	require.NoError(t, err)
	assert.True(t, raw.IsJSON())
}

func TestDecodeInvokesCallbackUntilExhausted(t *testing.T) {
	input := `{"n":1}` + "\n" + `{"n":2}` + "\n" + `{"n":3}` + "\n"
	var seen []float64
	err := Decode(context.Background(), strings.NewReader(input), func(r Raw) error {
		seen = append(seen, r.Value["n"].(float64))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, seen)
}

func TestDecodeStopsOnCallbackError(t *testing.T) {
	input := `{"n":1}` + "\n" + `{"n":2}` + "\n"
	boom := errors.New("boom")
	count := 0
	err := Decode(context.Background(), strings.NewReader(input), func(r Raw) error {
		count++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count)
}

func TestDecodeRespectsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Decode(ctx, strings.NewReader(`{"n":1}`+"\n"), func(r Raw) error {
		t.Fatal("callback should not run with a canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
