package telemetry

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/constraints"
)

// Attr is a telemetry attribute that can be rendered both as an OpenTelemetry
// attribute and as a structured log attribute.
type Attr struct {
	typ attrType
	key string
	str string
	num uint64
}

type attrType int

const (
	attrTypeString attrType = iota
	attrTypeBool
	attrTypeInt64
)

// String returns a string attribute.
func String[T ~string](k string, v T) Attr {
	return Attr{
		typ: attrTypeString,
		key: k,
		str: string(v),
	}
}

// Stringer returns a string attribute. The value is the result of calling
// v.String().
func Stringer(k string, v fmt.Stringer) Attr {
	return String(k, v.String())
}

// Binary returns a string attribute containing v represented as a Go string
// with backslash escape sequences. If the value is longer than 64 bytes it is
// truncated and the key is suffixed with "_truncated".
func Binary(k string, v []byte) Attr {
	if len(v) > 64 {
		v = v[:64]
		k += "_truncated"
	}

	return Attr{
		typ: attrTypeString,
		key: k,
		str: strconv.QuoteToASCII(string(v)),
	}
}

// Bool returns a boolean attribute.
func Bool[T ~bool](k string, v T) Attr {
	var n uint64
	if v {
		n = 1
	}

	return Attr{
		typ: attrTypeBool,
		key: k,
		num: n,
	}
}

// Int returns an int64 attribute.
func Int[T constraints.Signed](k string, v T) Attr {
	return Attr{
		typ: attrTypeInt64,
		key: k,
		num: uint64(v),
	}
}

// Time returns a string attribute containing v in RFC 3339 format.
func Time(k string, v time.Time) Attr {
	return String(k, v.Format(time.RFC3339))
}

func (a Attr) otel() attribute.KeyValue {
	switch a.typ {
	case attrTypeBool:
		return attribute.Bool(a.key, a.num != 0)
	case attrTypeInt64:
		return attribute.Int64(a.key, int64(a.num))
	default:
		return attribute.String(a.key, a.str)
	}
}

func (a Attr) slog() slog.Attr {
	switch a.typ {
	case attrTypeBool:
		return slog.Bool(a.key, a.num != 0)
	case attrTypeInt64:
		return slog.Int64(a.key, int64(a.num))
	default:
		return slog.String(a.key, a.str)
	}
}

func asOtelKeyValues(attrs []Attr) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}

	kvs := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kvs[i] = a.otel()
	}

	return kvs
}

func asSlogAttrs(attrs []Attr) []slog.Attr {
	if len(attrs) == 0 {
		return nil
	}

	as := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		as[i] = a.slog()
	}

	return as
}
