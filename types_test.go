package odooconnect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainToRPC(t *testing.T) {
	d := Domain{{"|"}, {"name", "ilike", "acme"}, {"email", "=", false}}
	assert.Equal(t, []interface{}{
		"|",
		[]interface{}{"name", "ilike", "acme"},
		[]interface{}{"email", "=", false},
	}, d.ToRPC())

	var empty Domain
	assert.NotNil(t, empty.ToRPC())
	data, err := json.Marshal(empty.ToRPC())
	assert.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFieldsToRPC(t *testing.T) {
	assert.Equal(t, []string{"name"}, Fields(nil).ToRPC())
	assert.Equal(t, []string{"name", "email"}, Fields{"name", "email"}.ToRPC())
}

func TestOdooContextMerge(t *testing.T) {
	base := OdooContext{"lang": "en_US", "tz": "UTC", "nested": map[string]any{"a": 1}}
	handle := OdooContext{"tz": "Asia/Tokyo", "nested": map[string]any{"b": 2}}
	call := OdooContext{"lang": "fr_FR"}

	merged := base.Merge(handle, call)
	assert.Equal(t, OdooContext{
		"lang":   "fr_FR",
		"tz":     "Asia/Tokyo",
		"nested": map[string]any{"b": 2},
	}, merged)

	// Inputs are untouched.
	assert.Equal(t, "en_US", base["lang"])
	assert.Equal(t, "UTC", base["tz"])
	assert.Len(t, handle, 2)

	var nilCtx OdooContext
	assert.Equal(t, OdooContext{"x": 1}, nilCtx.Merge(nil, OdooContext{"x": 1}))
	assert.NotNil(t, nilCtx.Clone())
}

func TestToContext(t *testing.T) {
	for _, v := range []interface{}{
		OdooContext{"a": 1},
		map[string]interface{}{"a": 1},
		Data{"a": 1},
	} {
		c, ok := toContext(v)
		assert.True(t, ok)
		assert.Equal(t, 1, c["a"])
	}
	c, ok := toContext(map[string]string{"lang": "fr_FR"})
	assert.True(t, ok)
	assert.Equal(t, OdooContext{"lang": "fr_FR"}, c)
	_, ok = toContext(map[int]string{1: "x"})
	assert.False(t, ok)
	_, ok = toContext("lang=en_US")
	assert.False(t, ok)
	_, ok = toContext(nil)
	assert.False(t, ok)
}

func TestOptionsToRPC(t *testing.T) {
	var nilOpts *Options
	assert.Empty(t, nilOpts.ToRPC())

	o := &Options{
		Context: OdooContext{"lang": "es_ES"},
		Limit:   5,
		Offset:  10,
		Order:   "name desc",
		Extra:   map[string]interface{}{"active_test": false},
	}
	assert.Equal(t, map[string]interface{}{
		"context":     OdooContext{"lang": "es_ES"},
		"limit":       5,
		"offset":      10,
		"order":       "name desc",
		"active_test": false,
	}, o.ToRPC())

	assert.Equal(t, map[string]interface{}{}, (&Options{Limit: -1}).ToRPC())
	assert.Equal(t, map[string]interface{}{"limit": 2}, parseOptions(nil, &Options{Limit: 2}))
	assert.Equal(t, map[string]interface{}{}, parseOptions())
}

func TestConvertHelpers(t *testing.T) {
	n, ok := asInt64(json.Number("42"))
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = asInt64(1.5)
	assert.False(t, ok)
	_, ok = asInt64(false)
	assert.False(t, ok)

	ids, err := asInt64Slice([]any{int64(1), 2.0})
	assert.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
	_, err = asInt64Slice("x")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	_, err = asInt64Slice([]any{"x"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	assert.False(t, asBool(nil))
	assert.False(t, asBool(false))
	assert.False(t, asBool(int64(0)))
	assert.False(t, asBool(""))
	assert.True(t, asBool(true))
	assert.True(t, asBool(int64(1)))
	assert.True(t, asBool([]any{}))

	_, err = asRecords([]any{"x"})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	assert.Equal(t,
		map[string]any{"a": int64(1), "b": 1.5, "c": []any{int64(2)}},
		normalizeNumbers(map[string]any{"a": json.Number("1"), "b": json.Number("1.5"), "c": []any{json.Number("2")}}),
	)
}
