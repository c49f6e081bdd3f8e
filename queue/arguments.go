package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/yanizio/keel/orm"
)

// modelTag marks an encoded argument as a model reference.
const modelTag = "$model"

// Argument is one decoded payload entry: PlainArg or ModelRef.
type Argument interface {
	isArgument()
}

// PlainArg is any non-model value, kept as raw JSON.
type PlainArg struct {
	JSON json.RawMessage
}

// ModelRef names a persisted model.  Attributes is the snapshot taken at
// dispatch time; hydration ignores it and refetches the row.
type ModelRef struct {
	Class      string
	ID         int64
	Attributes json.RawMessage
}

func (PlainArg) isArgument() {}
func (ModelRef) isArgument() {}

type attributeLister interface {
	AttributeKeys() []string
}

// EncodeArgument encodes one argument.  A persisted orm.Record with an
// integer key becomes {...attributes, "id": id, "$model": name}; anything
// else, unsaved models included, is plain JSON.
func EncodeArgument(v any) (string, error) {
	rec, ok := v.(orm.Record)
	if ok && isNilPointer(v) {
		ok = false
	}
	if !ok || !rec.Exists() || rec.ID() == 0 || rec.ModelName() == "" {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("queue: encode argument: %w", err)
		}
		return string(b), nil
	}

	var keys []string
	if l, ok := rec.(attributeLister); ok {
		keys = l.AttributeKeys()
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, k := range keys {
		if k == "id" || k == modelTag {
			continue
		}
		if err := writeField(&buf, k, rec.Get(k)); err != nil {
			return "", err
		}
		buf.WriteByte(',')
	}
	if err := writeField(&buf, "id", rec.ID()); err != nil {
		return "", err
	}
	buf.WriteByte(',')
	if err := writeField(&buf, modelTag, rec.ModelName()); err != nil {
		return "", err
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func writeField(buf *bytes.Buffer, k string, v any) error {
	kb, _ := json.Marshal(k)
	vb, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("queue: encode attribute %q: %w", k, err)
	}
	buf.Write(kb)
	buf.WriteByte(':')
	buf.Write(vb)
	return nil
}

// SerializeArguments encodes every argument.
func SerializeArguments(args []any) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, a := range args {
		s, err := EncodeArgument(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseArgument classifies one encoded entry.  Objects carrying both
// "$model" and "id" are model references.
func ParseArgument(raw string) (Argument, error) {
	b := []byte(raw)
	if !json.Valid(b) {
		return nil, fmt.Errorf("%w: argument is not JSON", ErrInvalidPayload)
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return PlainArg{JSON: json.RawMessage(b)}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	tag, hasTag := obj[modelTag]
	rawID, hasID := obj["id"]
	if !hasTag || !hasID {
		return PlainArg{JSON: json.RawMessage(b)}, nil
	}

	var class string
	if err := json.Unmarshal(tag, &class); err != nil || class == "" {
		return nil, fmt.Errorf("%w: bad %s tag", ErrInvalidPayload, modelTag)
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s id: %w", ErrInvalidPayload, class, err)
	}
	return ModelRef{Class: class, ID: id, Attributes: json.RawMessage(trimmed)}, nil
}

func parseID(raw json.RawMessage) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.Int64()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}

// HydrationError reports an argument that could not be rebuilt.
type HydrationError struct {
	Index int
	Class string
	ID    int64
	Err   error
}

func (e *HydrationError) Error() string {
	return fmt.Sprintf("queue: hydrate argument %d (%s #%d): %v", e.Index, e.Class, e.ID, e.Err)
}

func (e *HydrationError) Unwrap() error { return e.Err }

// HydrateArguments decodes raw entries.  Model references are refetched
// by id from the current context's store, so handlers see the row as it
// is at delivery time.
func HydrateArguments(ctx context.Context, raw []string) (Args, error) {
	items := make([]hydrated, len(raw))
	for i, s := range raw {
		arg, err := ParseArgument(s)
		if err != nil {
			return Args{}, fmt.Errorf("argument %d: %w", i, err)
		}
		switch a := arg.(type) {
		case PlainArg:
			items[i] = hydrated{arg: a, raw: a.JSON}
		case ModelRef:
			rec, err := orm.FindByName(ctx, a.Class, a.ID)
			if err == nil && rec == nil {
				err = orm.ErrModelNotFound
			}
			if err != nil {
				return Args{}, &HydrationError{Index: i, Class: a.Class, ID: a.ID, Err: err}
			}
			items[i] = hydrated{arg: a, raw: a.Attributes, model: rec}
		}
	}
	return Args{items: items}, nil
}

type hydrated struct {
	arg   Argument
	raw   json.RawMessage
	model orm.Record
}

// Args are hydrated job or event arguments.
type Args struct {
	items []hydrated
}

// ErrArgIndex is returned for an out of range argument index.
var ErrArgIndex = errors.New("queue: argument index out of range")

func (a Args) Len() int { return len(a.items) }

// Argument returns the decoded entry at i.
func (a Args) Argument(i int) (Argument, bool) {
	if i < 0 || i >= len(a.items) {
		return nil, false
	}
	return a.items[i].arg, true
}

// Model returns the refetched model at i.
func (a Args) Model(i int) (orm.Record, bool) {
	if i < 0 || i >= len(a.items) || a.items[i].model == nil {
		return nil, false
	}
	return a.items[i].model, true
}

// Raw returns the encoded JSON at i.
func (a Args) Raw(i int) json.RawMessage {
	if i < 0 || i >= len(a.items) {
		return nil
	}
	return a.items[i].raw
}

// Decode unmarshals the plain value at i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a.items) {
		return fmt.Errorf("%w: %d of %d", ErrArgIndex, i, len(a.items))
	}
	if a.items[i].model != nil {
		return fmt.Errorf("queue: argument %d is a model, use Model", i)
	}
	return json.Unmarshal(a.items[i].raw, v)
}

// ModelArg returns the model at i as T.
func ModelArg[T orm.Record](a Args, i int) (T, error) {
	var zero T
	rec, ok := a.Model(i)
	if !ok {
		if i < 0 || i >= a.Len() {
			return zero, fmt.Errorf("%w: %d of %d", ErrArgIndex, i, a.Len())
		}
		return zero, fmt.Errorf("queue: argument %d is not a model", i)
	}
	t, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("queue: argument %d is %s, not %T", i, rec.ModelName(), zero)
	}
	return t, nil
}
