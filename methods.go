package odooconnect

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// fieldAttributes are the fields_get attributes Fields keeps per model.
var fieldAttributes = []string{"type", "string", "relation", "readonly", "required"}

// Call invokes any method on the model. It is the escape hatch for everything
// the typed helpers do not cover (action_confirm, name_search, onchange...).
//
// Parameters:
//   - ctx: The context for the request.
//   - method: The remote method name. It is forwarded as-is; "write" and
//     "update" are different methods.
//   - ids: When non-nil, sent as the first positional argument (the records
//     the method runs on). Pass nil for model-level methods.
//   - args: Further positional arguments.
//   - kwargs: Keyword arguments. A "context" entry is layered last, on top of
//     the session default and this handle's override.
//
// Returns:
//   - any: The raw result: maps, slices, strings, bools, int64 or float64.
//   - error: ErrConnection, ErrAuthentication or ErrRequest.
func (m *Model) Call(ctx context.Context, method string, ids []int64, args []interface{}, kwargs map[string]interface{}) (any, error) {
	m.session.logger.Debug("Performing Odoo custom method call",
		zap.String("model", string(m.name)),
		zap.String("method", method),
		zap.Int64s("ids", ids),
		zap.Int("args", len(args)),
		zap.String("op", "Call"),
	)

	if method == "" {
		return nil, validationErrorf("method name is required for %s", m.name)
	}

	positional := make([]interface{}, 0, len(args)+1)
	if ids != nil {
		positional = append(positional, ids)
	}
	positional = append(positional, args...)

	result, err := m.execute(ctx, "Call", method, positional, kwargs)
	if err != nil {
		return nil, err
	}

	m.session.logger.Info("Odoo custom method call completed",
		zap.String("model", string(m.name)),
		zap.String("method", method),
		zap.String("op", "Call"),
	)
	return result, nil
}

// FieldsGet returns the server's field definitions. fields limits the answer
// to the named fields and attributes to the named attributes; nil means all.
// The result is never cached; see Fields.
func (m *Model) FieldsGet(ctx context.Context, fields []string, attributes []string) (FieldMeta, error) {
	m.session.logger.Debug("Performing Odoo fields_get",
		zap.String("model", string(m.name)),
		zap.Strings("fields", fields),
		zap.String("op", "FieldsGet"),
	)

	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["allfields"] = fields
	}
	if len(attributes) > 0 {
		kwargs["attributes"] = attributes
	}

	result, err := m.execute(ctx, "FieldsGet", "fields_get", []interface{}{}, kwargs)
	if err != nil {
		return nil, err
	}
	meta, err := asFieldsMeta(result)
	if err != nil {
		return nil, err
	}

	m.session.logger.Info("Odoo fields_get completed",
		zap.String("model", string(m.name)),
		zap.Int("fields_count", len(meta)),
		zap.String("op", "FieldsGet"),
	)
	return meta, nil
}

// Fields returns the model's field definitions from the Session's metadata
// cache, fetching them once per cache lifetime.
func (m *Model) Fields(ctx context.Context) (FieldMeta, error) {
	if meta, ok := m.session.fields.get(m.name); ok {
		return meta, nil
	}
	meta, err := m.FieldsGet(ctx, nil, fieldAttributes)
	if err != nil {
		return nil, err
	}
	m.session.fields.set(m.name, meta)
	m.session.logger.Debug("Cached Odoo field metadata",
		zap.String("model", string(m.name)),
		zap.Strings("fields", maps.Keys(meta)),
	)
	return meta, nil
}
