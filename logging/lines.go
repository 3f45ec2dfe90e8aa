package logging

import (
	"bytes"
	"log"
	"sync"
)

// LineWriter forwards complete lines written to it to a logger under a fixed
// prefix and remembers the last tailSize bytes for error messages. It is used
// for worker diagnostics, which are surfaced but never parsed.
type LineWriter struct {
	mu       sync.Mutex
	logger   *log.Logger
	prefix   string
	pending  []byte
	tail     []byte
	tailSize int
}

func NewLineWriter(logger *log.Logger, prefix string, tailSize int) *LineWriter {
	if logger == nil {
		logger = log.Default()
	}
	return &LineWriter{logger: logger, prefix: prefix, tailSize: tailSize}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.keepTail(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line that did not end in a newline.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

// Tail returns the last bytes written, trimmed of surrounding whitespace.
func (w *LineWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(bytes.TrimSpace(w.tail))
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	w.logger.Printf("%s %s", w.prefix, line)
}

func (w *LineWriter) keepTail(p []byte) {
	if w.tailSize <= 0 {
		return
	}
	w.tail = append(w.tail, p...)
	if over := len(w.tail) - w.tailSize; over > 0 {
		w.tail = append(w.tail[:0:0], w.tail[over:]...)
	}
}
