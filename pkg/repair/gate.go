package repair

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/jmylchreest/tagmend/internal/logger"
)

const (
	envelopeOpen  = `<?xml version="1.0" encoding="UTF-8"?><html>`
	envelopeClose = `</html>`

	// maxSignatureBytes bounds the invalid run reported in a diagnostic.
	maxSignatureBytes = 4
)

// Diagnostic describes one failed strict-parse attempt.
type Diagnostic struct {
	// Message is the parser message. Invalid UTF-8 is reported in the
	// libxml form "Input is not proper UTF-8, indicate encoding ! Bytes: 0x96 0x20".
	Message string

	// Line is the 1-based line in the wrapped buffer, 0 when unknown.
	Line int

	// Signature holds the offending bytes for UTF-8 failures.
	Signature []byte

	// Err is the underlying parser error.
	Err error
}

// IsInvalidUTF8 reports whether the diagnostic names an invalid byte run.
func (d Diagnostic) IsInvalidUTF8() bool {
	return len(d.Signature) > 0
}

var utf8Message = regexp.MustCompile(`Input is not proper UTF-8, indicate encoding !\s*Bytes: ((?:0x[0-9A-Fa-f]{2}\s*)+)$`)

// gate strict-parses repaired buffers.
type gate struct {
	retryLimit  int
	artifactDir string
	removeUTF8  bool
}

// parse wraps buf in the XML envelope and parses it. Invalid byte runs are
// removed and the parse retried while removal is enabled and the retry
// limit allows. It returns the document and the buffer that parsed.
func (g gate) parse(buf string, stats *Stats) (*etree.Document, string, error) {
	start := time.Now()
	defer func() { stats.ParseDuration = time.Since(start) }()

	retries := 0
	for {
		wrapped := wrap(buf)
		stats.ParseAttempts++
		doc, diag := parseStrict(wrapped)
		if diag == nil {
			return doc, buf, nil
		}

		if !diag.IsInvalidUTF8() || !g.removeUTF8 {
			return nil, "", g.fail(ErrMarkupRepairFailed, *diag, wrapped, stats.ParseAttempts)
		}
		if retries >= g.retryLimit {
			return nil, "", g.fail(ErrUTF8RepairExhausted, *diag, wrapped, stats.ParseAttempts)
		}

		next, removed := stripInvalid(buf, string(diag.Signature))
		if removed == 0 {
			return nil, "", g.fail(ErrMarkupRepairFailed, *diag, wrapped, stats.ParseAttempts)
		}
		if logger.Enabled(slog.LevelDebug) {
			logger.Debug("removed invalid byte sequence",
				"bytes", formatBytes(diag.Signature), "occurrences", removed, "line", diag.Line)
		}
		buf = next
		retries++
		stats.InvalidUTF8Fixes += removed
	}
}

func (g gate) fail(kind error, diag Diagnostic, wrapped string, attempts int) error {
	err := &Error{Kind: kind, Diagnostic: diag, Attempts: attempts}
	if g.artifactDir != "" {
		path, werr := writeArtifact(g.artifactDir, time.Now(), wrapped)
		if werr != nil {
			logger.Warn("failed to save repair artifact", "dir", g.artifactDir, "error", werr)
		} else {
			err.Artifact = path
		}
	}
	logger.Debug("markup repair failed", "error", err)
	return err
}

func wrap(buf string) string {
	return envelopeOpen + buf + envelopeClose
}

// parseStrict validates the token stream with a strict decoder and builds
// the tree. The decoder gives line numbers and precise messages that the
// tree builder does not. Well-formedness rules the decoder skips (unique
// attributes, a single document element, no declarations inside it) are
// checked on the tokens.
func parseStrict(wrapped string) (*etree.Document, *Diagnostic) {
	dec := xml.NewDecoder(strings.NewReader(wrapped))
	dec.Strict = true
	depth := 0
	rootSeen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, diagnose(wrapped, err, dec.InputOffset())
		}

		var msg string
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && rootSeen {
				msg = "Extra content at the end of the document"
			} else if name, dup := duplicateAttr(t.Attr); dup {
				msg = "Attribute " + name + " redefined"
			}
			rootSeen = true
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && rootSeen && len(strings.TrimSpace(string(t))) > 0 {
				msg = "Extra content at the end of the document"
			}
		case xml.Directive:
			if rootSeen {
				msg = "Declaration not allowed after the document element starts"
			}
		}
		if msg != "" {
			line, _ := dec.InputPos()
			return nil, diagnose(wrapped, &xml.SyntaxError{Msg: msg, Line: line}, dec.InputOffset())
		}
	}
	// Comments and processing instructions are not checked by the decoder.
	if !utf8.ValidString(wrapped) {
		return nil, diagnose(wrapped, errors.New("invalid UTF-8"), int64(len(wrapped)))
	}

	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = false
	if err := doc.ReadFromString(wrapped); err != nil {
		return nil, &Diagnostic{Message: err.Error(), Err: err}
	}
	if doc.Root() == nil {
		err := errors.New("document has no root element")
		return nil, &Diagnostic{Message: err.Error(), Err: err}
	}
	return doc, nil
}

// duplicateAttr reports the first attribute name that occurs twice.
func duplicateAttr(attrs []xml.Attr) (string, bool) {
	for i := 1; i < len(attrs); i++ {
		for j := 0; j < i; j++ {
			if attrs[i].Name == attrs[j].Name {
				name := attrs[i].Name.Local
				if attrs[i].Name.Space != "" {
					name = attrs[i].Name.Space + ":" + name
				}
				return name, true
			}
		}
	}
	return "", false
}

// diagnose turns a decoder error into a Diagnostic. A failure at or after
// the first invalid byte run is reported as an encoding failure, whatever
// the decoder called it.
func diagnose(wrapped string, err error, offset int64) *Diagnostic {
	d := &Diagnostic{Message: err.Error(), Err: err}

	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		d.Line = syntaxErr.Line
	}

	run, at := firstInvalidRun(wrapped)
	if run == "" {
		return d
	}
	if at <= int(offset) || (syntaxErr != nil && syntaxErr.Msg == "invalid UTF-8") {
		if d.Line == 0 {
			d.Line = 1 + strings.Count(wrapped[:at], "\n")
		}
		d.Message = fmt.Sprintf("line %d: Input is not proper UTF-8, indicate encoding ! Bytes: %s",
			d.Line, formatBytes([]byte(run)))
		d.Signature = signatureFromMessage(d.Message)
	}
	return d
}

// signatureFromMessage extracts the byte list of a UTF-8 diagnostic.
func signatureFromMessage(msg string) []byte {
	m := utf8Message.FindStringSubmatch(msg)
	if m == nil {
		return nil
	}
	var sig []byte
	for _, field := range strings.Fields(m[1]) {
		b, err := strconv.ParseUint(strings.TrimPrefix(field, "0x"), 16, 8)
		if err != nil {
			return nil
		}
		sig = append(sig, byte(b))
	}
	return sig
}

// firstInvalidRun returns the first run of bytes that are not valid UTF-8,
// at most maxSignatureBytes long, and its offset.
func firstInvalidRun(s string) (string, int) {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size != 1 {
			i += size
			continue
		}
		j := i + 1
		for j < len(s) && j-i < maxSignatureBytes {
			if r, size := utf8.DecodeRuneInString(s[j:]); r != utf8.RuneError || size != 1 {
				break
			}
			j++
		}
		return s[i:j], i
	}
	return "", -1
}

// stripInvalid replaces every occurrence of sig that sits at an invalid
// position with a space. Bytes of sig that belong to valid characters are
// kept.
func stripInvalid(s, sig string) (string, int) {
	if sig == "" {
		return s, 0
	}
	var sb strings.Builder
	sb.Grow(len(s))
	removed := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 && strings.HasPrefix(s[i:], sig) {
			sb.WriteByte(' ')
			i += len(sig)
			removed++
			continue
		}
		sb.WriteString(s[i : i+size])
		i += size
	}
	return sb.String(), removed
}

func formatBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("0x%02X", c)
	}
	return strings.Join(parts, " ")
}
