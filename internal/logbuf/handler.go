package logbuf

import (
	"context"
	"log/slog"
)

// componentKey is lifted out of the attributes into Entry.Component.
const componentKey = "component"

// Handler tees records into a Buffer and on to another handler. The buffer
// sees every record at or above its own level, whatever the inner handler
// filters.
type Handler struct {
	next   slog.Handler
	buf    *Buffer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewHandler wraps next. Records below level are not buffered.
func NewHandler(next slog.Handler, buf *Buffer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelDebug
	}
	return &Handler{next: next, buf: buf, level: level}
}

func (h *Handler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level.Level() || h.next.Enabled(ctx, l)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level.Level() {
		e := Entry{Time: r.Time, Level: r.Level, Message: r.Message}
		add := func(key string, v slog.Value) {
			if key == componentKey {
				e.Component = v.String()
				return
			}
			if e.Attrs == nil {
				e.Attrs = make(map[string]any)
			}
			e.Attrs[key] = plain(v)
		}
		// Stored attrs already carry their group prefix.
		for _, a := range h.attrs {
			add(a.Key, a.Value)
		}
		r.Attrs(func(a slog.Attr) bool {
			add(h.prefix+a.Key, a.Value)
			return true
		})
		h.buf.Add(e)
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// plain makes v safe to encode as JSON. Errors would otherwise encode as {}.
func plain(v slog.Value) any {
	v = v.Resolve()
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.next = h.next.WithGroup(name)
	c.prefix = h.prefix + name + "."
	return &c
}
