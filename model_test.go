package odooconnect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilcreatore32/odooconnect/command"
)

func TestModelSearch(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()
	acme := f.seedPartner(map[string]any{"name": "Acme", "is_company": true})
	f.seedPartner(map[string]any{"name": "Jane"})
	partners := s.Env(ModelResPartner)

	t.Run("search", func(t *testing.T) {
		ids, err := partners.Search(ctx, Domain{{"is_company", "=", true}}, &Options{Limit: 10, Order: "name"})
		require.NoError(t, err)
		assert.Equal(t, []int64{acme}, ids)
		assert.Equal(t, []any{[]any{"is_company", "=", true}}, f.lastArgs()[0])
		assert.Equal(t, float64(10), f.lastKwargs()["limit"])
		assert.Equal(t, "name", f.lastKwargs()["order"])
	})

	t.Run("search one", func(t *testing.T) {
		id, err := partners.SearchOne(ctx, Domain{{"name", "=", "Jane"}})
		require.NoError(t, err)
		assert.Equal(t, acme+1, id)
		assert.Equal(t, float64(1), f.lastKwargs()["limit"])

		_, err = partners.SearchOne(ctx, Domain{{"name", "=", "Nobody"}})
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("search count", func(t *testing.T) {
		n, err := partners.SearchCount(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("search read defaults to name", func(t *testing.T) {
		rows, err := partners.SearchRead(ctx, Domain{{"is_company", "=", true}}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, map[string]any{"id": acme, "name": "Acme"}, rows[0])
		assert.Equal(t, []any{"name"}, f.lastKwargs()["fields"])
	})

	t.Run("operators pass through", func(t *testing.T) {
		_, err := partners.Search(ctx, Domain{{"|"}, {"name", "=", "Acme"}, {"name", "=", "Jane"}})
		require.NoError(t, err)
		assert.Equal(t, "|", f.lastArgs()[0].([]any)[0])
	})
}

func TestModelRead(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()
	id := f.seedPartner(map[string]any{"name": "Acme", "email": "info@acme.test"})
	partners := s.Env(ModelResPartner)

	rows, err := partners.Read(ctx, []int64{id}, Fields{"name", "email"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": id, "name": "Acme", "email": "info@acme.test"}}, rows)

	row, err := partners.ReadOne(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme", row["name"])
	assert.Equal(t, []any{"name"}, f.lastArgs()[1])

	t.Run("empty ids make no call", func(t *testing.T) {
		before := f.count("res.partner.read")
		rows, err := partners.Read(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Equal(t, before, f.count("res.partner.read"))
	})

	t.Run("unknown id is a request error", func(t *testing.T) {
		_, err := partners.Read(ctx, []int64{id, 999999}, nil)
		assert.ErrorIs(t, err, ErrRequest)
	})
}

func TestModelCreateWriteUnlink(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()
	partners := s.Env(ModelResPartner)

	id, err := partners.Create(ctx, Data{"name": "Acme"})
	require.NoError(t, err)
	assert.Positive(t, id)

	ids, err := partners.CreateMany(ctx, []Data{{"name": "A"}, {"name": "B"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{id + 1, id + 2}, ids)

	ok, err := partners.Write(ctx, []int64{id}, Data{
		"name":      "Acme Corp",
		"child_ids": []command.Command{command.Create(map[string]any{"name": "Jane"}), command.Link(ids[0])},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{
		[]any{float64(0), float64(0), map[string]any{"name": "Jane"}},
		[]any{float64(4), float64(ids[0]), float64(0)},
	}, f.lastArgs()[1].(map[string]any)["child_ids"])

	row, err := partners.ReadOne(ctx, id, Fields{"name"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", row["name"])

	ok, err = partners.Unlink(ctx, ids)
	require.NoError(t, err)
	assert.True(t, ok)
	n, err := partners.SearchCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	t.Run("empty ids are rejected locally", func(t *testing.T) {
		before := f.count("res.partner.write")
		_, err := partners.Write(ctx, nil, Data{"name": "x"})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = partners.Unlink(ctx, []int64{})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, before, f.count("res.partner.write"))
	})

	t.Run("invalid command fails before sending", func(t *testing.T) {
		before := f.count("res.partner.write")
		_, err := partners.Write(ctx, []int64{id}, Data{"child_ids": []command.Command{command.Link(0)}})
		assert.ErrorIs(t, err, ErrValidation)
		assert.ErrorIs(t, err, command.ErrInvalidCommand)
		assert.Equal(t, before, f.count("res.partner.write"))
	})
}

func TestModelCreateWithoutID(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)

	// The fake answers true for every method on unknown models.
	_, err := s.Env("x.model").Create(context.Background(), Data{"name": "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestModelWriteEach(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()
	a := f.seedPartner(map[string]any{"name": "A"})
	b := f.seedPartner(map[string]any{"name": "B"})
	partners := s.Env(ModelResPartner)

	failed, err := partners.WriteEach(ctx, map[int64]Data{
		b: {"name": "B2"},
		a: {"name": "A2"},
	})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, 2, f.count("res.partner.write"))
	// Writes go out in id order.
	assert.Equal(t, []any{float64(b)}, f.lastArgs()[0])

	rows, err := partners.Read(ctx, []int64{a, b}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A2", rows[0]["name"])
	assert.Equal(t, "B2", rows[1]["name"])

	t.Run("record failures are collected", func(t *testing.T) {
		f.mu.Lock()
		f.failWrites = true
		f.mu.Unlock()

		failed, err := partners.WriteEach(ctx, map[int64]Data{a: {"name": "x"}, b: {"name": "y"}})
		require.NoError(t, err)
		assert.Len(t, failed, 2)
		assert.ErrorIs(t, failed[a], ErrRequest)
	})
}

func TestModelCall(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()
	partners := s.Env(ModelResPartner)

	t.Run("ids lead the positional arguments", func(t *testing.T) {
		_, err := partners.Call(ctx, "message_post", []int64{5, 6}, []interface{}{"hello"}, map[string]interface{}{"subtype_xmlid": "mail.mt_note"})
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{float64(5), float64(6)}, "hello"}, f.lastArgs())
		assert.Equal(t, "mail.mt_note", f.lastKwargs()["subtype_xmlid"])
		assert.NotNil(t, f.lastKwargs()["context"])
	})

	t.Run("model level methods take nil ids", func(t *testing.T) {
		_, err := partners.Call(ctx, "default_get", nil, []interface{}{[]string{"name"}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{[]any{"name"}}, f.lastArgs())
	})

	t.Run("write and update are different methods", func(t *testing.T) {
		_, err := partners.Call(ctx, "update", []int64{5}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, f.count("res.partner.update"))
		assert.Equal(t, 0, f.count("res.partner.write"))
	})

	t.Run("method name is required", func(t *testing.T) {
		_, err := partners.Call(ctx, "", nil, nil, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestModelFields(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)
	ctx := context.Background()

	meta, err := s.Env(ModelResPartner).Fields(ctx)
	require.NoError(t, err)
	assert.True(t, meta.Has("name"))
	assert.False(t, meta.Has("frobnicate"))
	assert.Equal(t, "one2many", meta["child_ids"]["type"])

	_, err = s.Env(ModelResPartner).WithContext(OdooContext{"lang": "fr_FR"}).Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("res.partner.fields_get"), "metadata is cached per session")

	s.InvalidateFields(ModelResPartner)
	_, err = s.Env(ModelResPartner).Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("res.partner.fields_get"))

	t.Run("fields get is never cached", func(t *testing.T) {
		_, err := s.Env(ModelResPartner).FieldsGet(ctx, []string{"name"}, []string{"type"})
		require.NoError(t, err)
		assert.Equal(t, 3, f.count("res.partner.fields_get"))
		assert.Equal(t, []any{"name"}, f.lastKwargs()["allfields"])
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := s.Env("no.such.model").Fields(ctx)
		assert.ErrorIs(t, err, ErrRequest)
		assert.ErrorIs(t, err, ErrInvalidModel)
	})

	t.Run("other sessions keep their own cache", func(t *testing.T) {
		other := newTestSession(t, f)
		_, err := other.Env(ModelResPartner).Fields(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, f.count("res.partner.fields_get"))
	})
}

func TestModelWithContextIsImmutable(t *testing.T) {
	f := newFakeOdoo(t)
	s := newTestSession(t, f)

	base := s.Env(ModelResPartner)
	fr := base.WithContext(OdooContext{"lang": "fr_FR"})
	frTz := fr.WithContext(OdooContext{"tz": "UTC"}, OdooContext{"lang": "es_ES"})

	assert.Empty(t, base.Context())
	assert.Equal(t, OdooContext{"lang": "fr_FR"}, fr.Context())
	assert.Equal(t, OdooContext{"lang": "es_ES", "tz": "UTC"}, frTz.Context())
	assert.Equal(t, ModelResPartner, frTz.Name())
	assert.Same(t, s, frTz.Session())

	records := frTz.BrowseMany(3, 1, 2)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[0].ID())
	assert.Same(t, frTz, records[2].Model())
}
