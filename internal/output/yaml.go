package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes every report as its own YAML document.
type YAMLWriter struct {
	enc *yaml.Encoder
	cfg *writerConfig
}

func newYAMLWriter(w io.Writer, cfg *writerConfig) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{enc: enc, cfg: cfg}
}

// Write encodes a report as a YAML document.
func (w *YAMLWriter) Write(data any) error {
	return w.enc.Encode(w.cfg.prepare(data))
}

// Close terminates the YAML stream.
func (w *YAMLWriter) Close() error {
	return w.enc.Close()
}
