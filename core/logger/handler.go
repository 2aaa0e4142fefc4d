package logger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler writes one flat line per record. Groups become dotted
// key prefixes; attrs bound with WithAttrs are resolved once into base.
type structuredHandler struct {
	cfg    handlerConfig
	base   fields
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg, base: fields{}}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}
	f := maps.Clone(h.base)
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	addContextFields(ctx, f)
	f.finish(r, h.cfg.format == formatJSON)

	var (
		line []byte
		err  error
	)
	keys := f.ordered(h.cfg.keyOrder)
	if h.cfg.format == formatJSON {
		line, err = f.json(keys)
	} else {
		line = f.kv(keys)
	}
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = maps.Clone(h.base)
	for _, a := range attrs {
		clone.base.add(h.prefix, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

// fields is one log line before encoding.
type fields map[string]any

// add flattens a into f under prefix.
func (f fields) add(prefix string, a slog.Attr) {
	key := joinKey(prefix, a.Key)
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			f.add(key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := plainValue(key, v); ok {
		f[k] = val
	}
}

// finish fills the fixed fields and drops empty or invalid ones.
func (f fields) finish(r slog.Record, withFullRID bool) {
	ts := r.Time.UTC()
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = normalizeLevel(r.Level.String())
	if withFullRID {
		f["ts_unix_nano"] = ts.UnixNano()
	}

	if rid := f.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if withFullRID {
				f.setDefault("rid_full", rid)
			}
			f["rid"] = compact
		}
	}
	if f.str("event") == "" {
		f["event"] = cmp.Or(r.Message, "unknown")
	}
	if f.str("component") == "" {
		f["component"] = "app"
	}
	if s := f.str("status"); s != "" {
		f["status"], _ = normalizeEnum(s)
	}
	if o := f.str("outcome"); o != "" {
		if v, known := normalizeEnum(o); known {
			f["outcome"] = v
		} else {
			delete(f, "outcome")
		}
	}
	for k, v := range f {
		if v == nil || v == "" {
			delete(f, k)
		}
	}
}

func (f fields) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (f fields) setDefault(key string, v any) {
	if _, ok := f[key]; !ok {
		f[key] = v
	}
}

// ordered lists keys from order first, then the rest alphabetically.
func (f fields) ordered(order []string) []string {
	keys := make([]string, 0, len(f))
	listed := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := f[k]; ok && !listed[k] {
			keys = append(keys, k)
		}
		listed[k] = true
	}
	var rest []string
	for k := range f {
		if !listed[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func (f fields) json(keys []string) ([]byte, error) {
	b := []byte{'{'}
	for i, k := range keys {
		data, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b = append(b, ',')
		}
		b = strconv.AppendQuote(b, k)
		b = append(b, ':')
		b = append(b, data...)
	}
	return append(b, '}'), nil
}

func (f fields) kv(keys []string) []byte {
	var b []byte
	for i, k := range keys {
		if i > 0 {
			b = append(b, ' ')
		}
		b = append(b, k...)
		b = append(b, '=')
		s := fmt.Sprint(f[k])
		if strings.IndexFunc(s, needsQuote) >= 0 {
			b = strconv.AppendQuote(b, s)
		} else {
			b = append(b, s...)
		}
	}
	return b
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

// plainValue converts v to a JSON-friendly value. Durations are emitted in
// milliseconds under a _ms key.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}

// addContextFields fills correlation fields from ctx unless the record
// already set them.
func addContextFields(ctx context.Context, f fields) {
	m := metaFrom(ctx)
	if m.rid != "" {
		f.setDefault("rid", m.rid)
	}
	if m.updateID != 0 {
		f.setDefault("update_id", m.updateID)
	}
	if m.userID != 0 {
		f.setDefault("user_id", m.userID)
	}
	if m.chatID != 0 {
		f.setDefault("chat_id", m.chatID)
	}
	if m.handler != "" {
		f.setDefault("handler", m.handler)
	}
}
