package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks secrets that plugin code or call arguments may put in log lines
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default secret patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-(?:ant-)?[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`),

			// Authorization headers
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._~+/-]+=*`),
			regexp.MustCompile(`Basic\s+[a-zA-Z0-9+/]+=*`),

			// key=value and "key": "value" forms
			regexp.MustCompile(`(?i)(password|passwd|pwd|secret|api_?key)(["\s:=]+)[^\s",}]+`),
			regexp.MustCompile(`(?i)(token)(["\s:=]+)[a-zA-Z0-9._-]{16,}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s. Patterns with a key group keep the key.
func (r *Redactor) Redact(s string) string {
	for _, re := range r.patterns {
		if re.NumSubexp() >= 2 {
			s = re.ReplaceAllString(s, "${1}${2}"+redacted)
			continue
		}
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat the shorter
// redacted write as a short write
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
