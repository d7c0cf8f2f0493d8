package runtime

import (
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/chatkit-demo/internal/logging"
)

// FlusherConfig controls when buffered deltas are written out.
type FlusherConfig struct {
	// MaxBufferBytes triggers a flush when the buffer reaches this size.
	// Default: 300 bytes.
	MaxBufferBytes int

	// IdleTimeout triggers a flush when no new delta arrives within this duration.
	// Default: 2 seconds.
	IdleTimeout time.Duration
}

// Flusher accumulates streamed assistant deltas and writes them at natural
// text boundaries (sentences, paragraphs, size limit, idle timeout).
type Flusher struct {
	cfg FlusherConfig
	w   io.Writer
	log *logging.Logger

	mu      sync.Mutex
	buf     strings.Builder
	timer   *time.Timer
	flushed bool
}

// NewFlusher creates a flusher writing chunks to w.
func NewFlusher(cfg FlusherConfig, w io.Writer, log *logging.Logger) *Flusher {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 300
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Flusher{cfg: cfg, w: w, log: log}
}

// OnDelta appends a text delta and writes out any complete chunk.
func (f *Flusher) OnDelta(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.WriteString(text)

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.flushLocked()
	})

	f.checkFlushLocked()
}

// Flush writes whatever is buffered. Call after the stream ends.
func (f *Flusher) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.flushLocked()
}

// Flushed reports whether at least one chunk was written.
func (f *Flusher) Flushed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

func (f *Flusher) checkFlushLocked() {
	content := f.buf.String()

	if len(content) >= f.cfg.MaxBufferBytes {
		f.flushLocked()
		return
	}

	if idx := strings.LastIndex(content, "\n\n"); idx >= 0 {
		f.flushAtLocked(idx + 2)
		return
	}

	if pos := lastSentenceEnd(content); pos > 0 {
		f.flushAtLocked(pos)
	}
}

// flushAtLocked writes the first pos bytes of the buffer and keeps the rest.
func (f *Flusher) flushAtLocked(pos int) {
	content := f.buf.String()
	if pos > len(content) {
		pos = len(content)
	}
	if pos == 0 {
		return
	}
	f.writeLocked(content[:pos])

	remainder := content[pos:]
	f.buf.Reset()
	f.buf.WriteString(remainder)
}

func (f *Flusher) flushLocked() {
	if f.buf.Len() == 0 {
		return
	}
	f.writeLocked(f.buf.String())
	f.buf.Reset()
}

// writeLocked keeps whitespace so the chunks concatenate back to the reply.
func (f *Flusher) writeLocked(chunk string) {
	if _, err := io.WriteString(f.w, chunk); err != nil {
		f.log.Error().Err(err).Msg("failed to write stream chunk")
	}
	f.flushed = true
}

// lastSentenceEnd returns the byte position just past the last sentence end:
// ". ! ?" followed by a space or newline, or a full-width "。！？". It returns
// -1 when there is none or the buffer is shorter than 40 bytes.
func lastSentenceEnd(s string) int {
	best := -1
	for i, r := range s {
		switch r {
		case '.', '!', '?':
			if i+1 < len(s) && (s[i+1] == ' ' || s[i+1] == '\n') {
				best = i + 1
			}
		case '。', '！', '？':
			best = i + utf8.RuneLen(r)
		}
	}
	if best > 40 {
		return best
	}
	return -1
}
