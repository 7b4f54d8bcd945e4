// Package codec implements the Content-Length framed transport LSP uses on
// top of a byte stream, mirroring the original rscls's tokio_util
// Encoder/Decoder in src/codec.rs: a header block terminated by a blank
// line, followed by exactly Content-Length bytes of JSON body.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.com/tozd/go/errors"
)

const contentLengthHeader = "Content-Length"

// MalformedHeaderError reports a header line that doesn't parse as
// "Name: Value", mirroring DecodeError::MalformedHeader.
type MalformedHeaderError struct {
	Reason string
	Line   string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header (%s): %q", e.Reason, e.Line)
}

// MissingContentLengthError reports a frame whose header block never
// carried a Content-Length header, mirroring DecodeError::MissingContentLength.
type MissingContentLengthError struct{}

func (e *MissingContentLengthError) Error() string {
	return "missing Content-Length header"
}

// Decoder reads framed JSON-RPC bodies off an underlying stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for framed reads. r may deliver bytes in arbitrarily
// small chunks (partial reads); Decode blocks until a full frame, or EOF,
// arrives.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads one framed message body. It returns io.EOF itself (not
// wrapped) when the underlying stream closes cleanly between frames.
func (d *Decoder) Decode() ([]byte, error) {
	contentLength := -1

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && line == "" && contentLength == -1 {
				return nil, io.EOF
			}
			return nil, errors.Errorf("reading header line: %w", err)
		}

		if !strings.HasSuffix(line, "\r\n") {
			return nil, &MalformedHeaderError{Reason: "no CRLF", Line: strings.TrimSuffix(line, "\n")}
		}
		line = strings.TrimSuffix(line, "\r\n")

		if line == "" {
			break
		}

		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, &MalformedHeaderError{Reason: "no colon", Line: line}
		}
		name := line[:idx]
		value := strings.TrimSpace(line[idx+1:])

		if name != contentLengthHeader {
			continue
		}

		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, &MalformedHeaderError{Reason: "unable to parse Content-Length", Line: line}
		}
		contentLength = n
	}

	if contentLength < 0 {
		return nil, &MissingContentLengthError{}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, errors.Errorf("reading frame body: %w", err)
	}
	return body, nil
}

// Encoder writes framed JSON-RPC bodies to an underlying stream.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes body prefixed by its Content-Length header.
func (e *Encoder) Encode(body []byte) error {
	header := fmt.Sprintf("%s: %d\r\n\r\n", contentLengthHeader, len(body))
	if _, err := io.WriteString(e.w, header); err != nil {
		return errors.Errorf("writing frame header: %w", err)
	}
	if _, err := e.w.Write(body); err != nil {
		return errors.Errorf("writing frame body: %w", err)
	}
	return nil
}
