package odooconnect

import (
	"context"

	"go.uber.org/zap"
)

// Model is a handle on one remote model, bound to a Session and a context
// override. A Model is immutable: WithContext returns a new handle. Handles
// are cheap and hold no cached data, so create them freely.
type Model struct {
	session *Session
	name    ModelName
	context OdooContext
}

// Name returns the model name, e.g. "res.partner".
func (m *Model) Name() ModelName { return m.name }

// Session returns the owning Session.
func (m *Model) Session() *Session { return m.session }

// Context returns a copy of the handle's context override.
func (m *Model) Context() OdooContext { return m.context.Clone() }

// WithContext returns a new handle on the same model whose context override is
// this handle's override with each layer applied on top, in order.
//
// Example:
//
//	partners := session.Env(odooconnect.ModelResPartner).WithContext(odooconnect.OdooContext{"lang": "es_ES"})
func (m *Model) WithContext(overrides ...OdooContext) *Model {
	return &Model{
		session: m.session,
		name:    m.name,
		context: m.context.Merge(overrides...),
	}
}

// Browse returns a Record for id sharing this handle's context. No RPC is made.
func (m *Model) Browse(id int64) *Record {
	return newRecord(m, id)
}

// BrowseMany returns one Record per id, in order.
func (m *Model) BrowseMany(ids ...int64) []*Record {
	records := make([]*Record, len(ids))
	for i, id := range ids {
		records[i] = newRecord(m, id)
	}
	return records
}

// execute sends one method call through the Session with this handle's
// context override. op names the public operation for log lines.
func (m *Model) execute(ctx context.Context, op, method string, args []interface{}, kwargs map[string]interface{}) (any, error) {
	result, err := m.session.call(ctx, &Request{
		Model:   m.name,
		Method:  method,
		Args:    args,
		Kwargs:  kwargs,
		Context: m.context,
	})
	if err != nil {
		m.session.logger.Error("Failed to execute Odoo RPC call",
			zap.Error(err),
			zap.String("model", string(m.name)),
			zap.String("method", method),
			zap.String("op", op),
		)
		return nil, err
	}
	return result, nil
}
