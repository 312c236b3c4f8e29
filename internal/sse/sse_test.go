package sse

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	require.NoError(t, w.Send(map[string]string{"type": "token", "content": "Hi"}))
	require.NoError(t, w.Comment("ping"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: {\"content\":\"Hi\",\"type\":\"token\"}\n\n: ping\n\n", rec.Body.String())
}

func TestDecoderToleratesChunkBoundaries(t *testing.T) {
	stream := "data: {\"type\":\"token\",\"content\":\"He\"}\r\n\r\n" +
		": keep-alive\n\n" +
		"event: message\ndata: {\"type\":\"token\",\n" +
		"data: \"content\":\"llo\"}\n\n" +
		"data: {\"type\":\"done\",\"content\":\"Hello\"}"

	d := NewDecoder(iotest.OneByteReader(strings.NewReader(stream)))

	type event struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	var got []event
	for {
		var ev event
		err := d.Decode(&ev)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}

	assert.Equal(t, []event{
		{Type: "token", Content: "He"},
		{Type: "token", Content: "llo"},
		{Type: "done", Content: "Hello"},
	}, got)
}

func TestDecoderEmptyStream(t *testing.T) {
	_, err := NewDecoder(strings.NewReader("")).Next()
	assert.ErrorIs(t, err, io.EOF)
}
