package codec_test

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walteh/rscls/pkg/codec"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.NoError(t, enc.Encode(body))

	dec := codec.NewDecoder(&buf)
	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDecodeMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	require.NoError(t, enc.Encode([]byte(`{"a":1}`)))
	require.NoError(t, enc.Encode([]byte(`{"b":2}`)))

	dec := codec.NewDecoder(&buf)

	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(first))

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(second))

	_, err = dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodePartialReads(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	body := []byte(`{"jsonrpc":"2.0","method":"textDocument/didOpen","params":{"big":"` + string(make([]byte, 512)) + `"}}`)
	require.NoError(t, enc.Encode(body))

	dec := codec.NewDecoder(iotest.OneByteReader(bytes.NewReader(buf.Bytes())))
	got, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDecodeMissingContentLength(t *testing.T) {
	r := strings.NewReader("X-Custom: foo\r\n\r\n")
	dec := codec.NewDecoder(r)

	_, err := dec.Decode()
	var missing *codec.MissingContentLengthError
	assert.ErrorAs(t, err, &missing)
}

func TestDecodeMalformedHeaderNoColon(t *testing.T) {
	r := strings.NewReader("not-a-header\r\n\r\n")
	dec := codec.NewDecoder(r)

	_, err := dec.Decode()
	var malformed *codec.MalformedHeaderError
	assert.ErrorAs(t, err, &malformed)
}

func TestDecodeMalformedContentLengthValue(t *testing.T) {
	r := strings.NewReader("Content-Length: not-a-number\r\n\r\n")
	dec := codec.NewDecoder(r)

	_, err := dec.Decode()
	var malformed *codec.MalformedHeaderError
	assert.ErrorAs(t, err, &malformed)
}

func TestDecodeMalformedHeaderBareLF(t *testing.T) {
	r := strings.NewReader("Content-Length: 2\n\n{}")
	dec := codec.NewDecoder(r)

	_, err := dec.Decode()
	var malformed *codec.MalformedHeaderError
	assert.ErrorAs(t, err, &malformed)
	assert.Equal(t, "no CRLF", malformed.Reason)
}

func TestDecodeEOFBetweenFrames(t *testing.T) {
	dec := codec.NewDecoder(strings.NewReader(""))
	_, err := dec.Decode()
	assert.ErrorIs(t, err, io.EOF)
}
