package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// JSONWriter collects reports and writes them on Close: a single report as
// an object, several as an array.
type JSONWriter struct {
	w     *bufio.Writer
	cfg   *writerConfig
	items []any
}

func newJSONWriter(w io.Writer, cfg *writerConfig) *JSONWriter {
	return &JSONWriter{w: bufio.NewWriter(w), cfg: cfg}
}

// Write buffers a report.
func (w *JSONWriter) Write(data any) error {
	w.items = append(w.items, w.cfg.prepare(data))
	return nil
}

// Close writes the buffered reports.
func (w *JSONWriter) Close() error {
	if len(w.items) == 0 {
		return w.w.Flush()
	}
	var value any = w.items
	if len(w.items) == 1 {
		value = w.items[0]
	}
	indent := ""
	if w.cfg.pretty {
		indent = w.cfg.indent
	}
	if err := encodeTo(w.w, value, indent); err != nil {
		return err
	}
	w.items = nil
	return w.w.Flush()
}

// JSONLWriter writes one report per line as it arrives.
type JSONLWriter struct {
	w   *bufio.Writer
	cfg *writerConfig
}

func newJSONLWriter(w io.Writer, cfg *writerConfig) *JSONLWriter {
	return &JSONLWriter{w: bufio.NewWriter(w), cfg: cfg}
}

// Write writes a single report as a JSON line.
func (w *JSONLWriter) Write(data any) error {
	if err := encodeTo(w.w, w.cfg.prepare(data), ""); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}

// encodeTo writes value followed by a newline. HTML escaping is off so
// repaired markup stays readable.
func encodeTo(w io.Writer, value any, indent string) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(value)
}

// marshal is encodeTo into a byte slice without the trailing newline.
func marshal(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, value, ""); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
