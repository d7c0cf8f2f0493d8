package agui

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ContentTypeSSE is the media type of an AG-UI event stream.
const ContentTypeSSE = "text/event-stream"

// doneSentinel terminates OpenAI-style streams some agents emit.
const doneSentinel = "[DONE]"

// Encoder writes SSE frames, flushing after each when the writer supports it.
type Encoder struct {
	w io.Writer
	f http.Flusher
}

// NewEncoder wraps w. If w is an http.Flusher, every frame is flushed.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, f: f}
}

// WriteData writes one frame: "data: <payload>\n\n". Payload lines are
// split across multiple data fields.
func (e *Encoder) WriteData(payload []byte) error {
	var buf bytes.Buffer
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return e.write(buf.Bytes())
}

// Encode marshals ev and writes it as one frame.
func (e *Encoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ev.Type, err)
	}
	return e.WriteData(data)
}

// Retry advises the client how long to wait before reconnecting.
func (e *Encoder) Retry(d time.Duration) error {
	return e.write([]byte("retry: " + strconv.FormatInt(d.Milliseconds(), 10) + "\n\n"))
}

// Comment writes a comment line, used as a keep-alive.
func (e *Encoder) Comment(text string) error {
	return e.write([]byte(": " + text + "\n\n"))
}

func (e *Encoder) write(p []byte) error {
	if _, err := e.w.Write(p); err != nil {
		return err
	}
	if e.f != nil {
		e.f.Flush()
	}
	return nil
}

// Frame is one parsed SSE message.
type Frame struct {
	Event string
	ID    string
	Data  []byte
	Retry int
}

// Decoder reads SSE frames from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder reads frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next frame that carries any field. Comment-only blocks
// are skipped. It returns io.EOF once the stream ends cleanly; a final
// frame without its blank-line terminator is still returned.
func (d *Decoder) Next() (Frame, error) {
	var (
		f       Frame
		data    [][]byte
		touched bool
	)
	finish := func() Frame {
		if data != nil {
			f.Data = bytes.Join(data, []byte("\n"))
		}
		return f
	}

	for {
		line, err := d.r.ReadString('\n')
		if line == "" && err != nil {
			if touched && errors.Is(err, io.EOF) {
				return finish(), nil
			}
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if touched {
				return finish(), nil
			}
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, []byte(value))
				touched = true
			case "event":
				f.Event = value
				touched = true
			case "id":
				f.ID = value
				touched = true
			case "retry":
				if n, convErr := strconv.Atoi(value); convErr == nil {
					f.Retry = n
					touched = true
				}
			}
		}

		if err != nil {
			if touched && errors.Is(err, io.EOF) {
				return finish(), nil
			}
			return Frame{}, err
		}
	}
}

// NextEvent returns the next AG-UI event, skipping frames without data and
// the [DONE] sentinel.
func (d *Decoder) NextEvent() (Event, error) {
	for {
		f, err := d.Next()
		if err != nil {
			return Event{}, err
		}
		payload := bytes.TrimSpace(f.Data)
		if len(payload) == 0 || string(payload) == doneSentinel {
			continue
		}
		return ParseEvent(payload)
	}
}
