package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO [item/stage] component: message key=value ...
//
// Item, stage and component are lifted out of the attributes into the prefix.
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool
	prefix    string
	fields    []field
}

type field struct {
	key   string
	value slog.Value
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = appendFields(append([]field(nil), h.fields...), h.prefix, attrs)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.prefix, []slog.Attr{attr})
		return true
	})

	var item, stage, component string
	rest := fields[:0]
	for _, f := range fields {
		var slot *string
		switch f.key {
		case FieldItem:
			slot = &item
		case FieldStage:
			slot = &stage
		case FieldComponent:
			slot = &component
		default:
			rest = append(rest, f)
			continue
		}
		if *slot == "" {
			*slot = plainString(f.value)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var buf bytes.Buffer
	buf.WriteString(ts.UTC().Format(time.RFC3339))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if tag := bracketTag(item, stage); tag != "" {
		buf.WriteString(" " + tag)
	}
	buf.WriteByte(' ')
	if component != "" {
		buf.WriteString(component + ": ")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(msg)

	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range rest {
		buf.WriteByte(' ')
		buf.WriteString(f.key)
		buf.WriteByte('=')
		buf.WriteString(quoteIfNeeded(plainString(f.value)))
	}
	buf.WriteByte('\n')

	_, err := h.out.Write(buf.Bytes())
	return err
}

func appendFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			inner := prefix
			if attr.Key != "" {
				inner = prefix + attr.Key + "."
			}
			dst = appendFields(dst, inner, value.Group())
			continue
		}
		dst = append(dst, field{key: prefix + attr.Key, value: value})
	}
	return dst
}

func plainString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func bracketTag(item, stage string) string {
	switch {
	case item != "" && stage != "":
		return "[" + item + "/" + stage + "]"
	case item != "" || stage != "":
		return "[" + item + stage + "]"
	default:
		return ""
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
