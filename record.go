package odooconnect

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

// Record is a lazy view of one remote row. Field values are fetched one name
// at a time on first Get and cached on the Record; later Gets of the same name
// make no RPC. The cache belongs to this Record only: two Records for the same
// id never share values.
//
// A Record is not safe for concurrent use.
type Record struct {
	model  *Model
	id     int64
	values map[string]any
	loaded map[string]struct{}
}

func newRecord(model *Model, id int64) *Record {
	r := &Record{model: model, id: id}
	r.reset()
	return r
}

func (r *Record) reset() {
	r.values = map[string]any{"id": r.id}
	r.loaded = map[string]struct{}{"id": {}}
}

// ID returns the record id.
func (r *Record) ID() int64 { return r.id }

// Model returns the handle the Record was browsed from.
func (r *Record) Model() *Model { return r.model }

// Get returns the value of field name. A cached value is returned without
// RPC. Otherwise the model's field metadata decides whether name is a field:
// if it is not, Get returns an error wrapping ErrNotAField; if it is, the field
// is read for this record and every key the server returns is cached.
func (r *Record) Get(ctx context.Context, name string) (any, error) {
	if _, ok := r.loaded[name]; ok {
		return r.values[name], nil
	}

	meta, err := r.model.Fields(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.Has(name) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotAField, r.model.name, name)
	}

	records, err := r.model.Read(ctx, []int64{r.id}, Fields{name})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: for model '%s' with ID %d", ErrRecordNotFound, r.model.name, r.id)
	}

	// The server may return more keys than asked for; keep them all.
	for k, v := range records[0] {
		r.values[k] = v
		r.loaded[k] = struct{}{}
	}
	r.loaded[name] = struct{}{}
	return r.values[name], nil
}

// Cached returns the cached value of name without any RPC.
func (r *Record) Cached(name string) (any, bool) {
	if _, ok := r.loaded[name]; !ok {
		return nil, false
	}
	return r.values[name], true
}

// Invalidate drops the named fields from the cache, or every field when no
// name is given.
func (r *Record) Invalidate(names ...string) {
	if len(names) == 0 {
		r.reset()
		return
	}
	for _, name := range names {
		if name == "id" {
			continue
		}
		delete(r.values, name)
		delete(r.loaded, name)
	}
}

// Call invokes method on this record: the record id is sent as the first
// positional argument. A single mapping in args is sent as kwargs["values"].
// Any other args shape is rejected with ErrValidation before any RPC.
func (r *Record) Call(ctx context.Context, method string, args []interface{}, kwargs map[string]interface{}) (any, error) {
	kw, err := methodKwargs(args, kwargs)
	if err != nil {
		r.model.session.logger.Debug("Rejected Odoo record method arguments",
			zap.Error(err),
			zap.String("model", string(r.model.name)),
			zap.String("method", method),
		)
		return nil, err
	}
	result, err := r.model.Call(ctx, method, []int64{r.id}, nil, kw)
	if err != nil {
		return nil, err
	}
	if method == "write" {
		if values, ok := asMapping(kw["values"]); ok && asBool(result) {
			r.remember(values)
		}
	}
	return result, nil
}

// Invoke resolves name dynamically. Without arguments it is tried as a field
// first; when name is not a field, or arguments are given, it is called as a
// method on this record.
func (r *Record) Invoke(ctx context.Context, name string, args ...interface{}) (any, error) {
	if len(args) == 0 {
		v, err := r.Get(ctx, name)
		if !errors.Is(err, ErrNotAField) {
			return v, err
		}
	}
	return r.Call(ctx, name, args, nil)
}

// Set writes one field and, on success, caches value.
func (r *Record) Set(ctx context.Context, name string, value any) error {
	_, err := r.Write(ctx, Data{name: value})
	return err
}

// Write writes values to this record. On success the written fields are
// cached, except relational command lists, which are dropped from the cache
// so the next Get reads the server's result. On failure the cache is left
// untouched. A false answer from the server is reported as ErrRequest.
func (r *Record) Write(ctx context.Context, values Data) (bool, error) {
	ok, err := r.model.Write(ctx, []int64{r.id}, values)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: write on %s ID %d returned false", ErrRequest, r.model.name, r.id)
	}

	r.remember(values)
	return true, nil
}

// remember caches values after a successful write. Relational command values
// are dropped instead.
func (r *Record) remember(values map[string]any) {
	for name, v := range values {
		if name == "id" {
			continue
		}
		if isCommandValue(v) {
			delete(r.values, name)
			delete(r.loaded, name)
			continue
		}
		r.values[name] = v
		r.loaded[name] = struct{}{}
	}
}

// WithContext returns a Record for the same id under a layered context, with
// an empty cache.
func (r *Record) WithContext(overrides ...OdooContext) *Record {
	return newRecord(r.model.WithContext(overrides...), r.id)
}

// methodKwargs applies the record method argument rule: no positional
// argument, or exactly one mapping which becomes kwargs["values"].
func methodKwargs(args []interface{}, kwargs map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(kwargs)+1)
	for k, v := range kwargs {
		out[k] = v
	}

	switch len(args) {
	case 0:
		return out, nil
	case 1:
		values, ok := asMapping(args[0])
		if !ok {
			return nil, validationErrorf("a single positional argument must be a mapping of values, got %T", args[0])
		}
		if _, dup := out["values"]; dup {
			return nil, validationErrorf("values given both positionally and as a keyword argument")
		}
		out["values"] = values
		return out, nil
	}
	return nil, validationErrorf("record methods take at most one positional mapping, got %d arguments", len(args))
}

func asMapping(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Data:
		return map[string]interface{}(m), true
	case OdooContext:
		return map[string]interface{}(m), true
	}
	return stringKeyedMap(v)
}

// isCommandValue reports whether v is a relational command or a list of
// them, either typed or raw triples such as [[4, 3, 0]].
func isCommandValue(v any) bool {
	if _, ok := v.(rpcEncoder); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return false
	}
	first := rv.Index(0).Interface()
	if _, ok := first.(rpcEncoder); ok {
		return true
	}
	return isRawCommand(first)
}

// isRawCommand reports whether v is an [op, id, value] triple with a known
// command code.
func isRawCommand(v any) bool {
	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Len() != 3 {
		return false
	}
	op, ok := asInt64(rv.Index(0).Interface())
	return ok && op >= 0 && op <= 6
}
