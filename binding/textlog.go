package binding

import (
	"fmt"
	"os"
	"strings"
)

// TextLog is an indented plain-text record of a generation run.
type TextLog struct {
	indent string
	level  int
	b      strings.Builder
}

// NewTextLog returns a log that indents each tab level with indent.
func NewTextLog(indent string) *TextLog {
	return &TextLog{indent: indent}
}

// AppendLine formats and appends one line at the current tab level.
func (l *TextLog) AppendLine(format string, args ...any) {
	for i := 0; i < l.level; i++ {
		l.b.WriteString(l.indent)
	}
	if len(args) == 0 {
		l.b.WriteString(format)
	} else {
		fmt.Fprintf(&l.b, format, args...)
	}
	l.b.WriteByte('\n')
}

func (l *TextLog) AddTabLevel() { l.level++ }

func (l *TextLog) DecTabLevel() {
	if l.level > 0 {
		l.level--
	}
}

func (l *TextLog) String() string { return l.b.String() }

// WriteFile writes the log to path.
func (l *TextLog) WriteFile(path string) error {
	return os.WriteFile(path, []byte(l.b.String()), 0o644)
}
