package odooconnect

import (
	"reflect"

	"golang.org/x/exp/maps"
)

// types.go

// ModelName is an Odoo model identifier such as "res.partner".
type ModelName string

// Commonly used Odoo models.
const (
	// Product & Inventory Models
	ModelProductProduct  ModelName = "product.product"
	ModelProductTemplate ModelName = "product.template"
	ModelStockPicking    ModelName = "stock.picking"
	ModelStockMove       ModelName = "stock.move"

	// Sales & CRM Models
	ModelSaleOrder     ModelName = "sale.order"
	ModelSaleOrderLine ModelName = "sale.order.line"
	ModelCrmLead       ModelName = "crm.lead"
	ModelResPartner    ModelName = "res.partner"

	// Accounting Models
	ModelAccountMove     ModelName = "account.move"
	ModelAccountMoveLine ModelName = "account.move.line"

	// User & System Models
	ModelResUsers     ModelName = "res.users"
	ModelResCompany   ModelName = "res.company"
	ModelIrModel      ModelName = "ir.model"
	ModelIrAttachment ModelName = "ir.attachment"
)

// DomainCondition represents a single element within an Odoo domain filter.
// It can be either a 3-element tuple [field, operator, value] for a condition,
// or a single string element for a logical operator like "|" or "&".
//
// Examples:
//
//	{"name", "=", "John Doe"} // A standard condition
//	{"|"}                    // A logical OR operator
type DomainCondition []interface{}

// Domain is a filter expression for search-like methods. The client never
// interprets it; it is passed to the server as-is after ToRPC.
type Domain []DomainCondition

// ToRPC converts the Domain to the list shape the server expects. Single-element
// operator conditions such as {"|"} become the bare string "|".
func (d Domain) ToRPC() []interface{} {
	rpcDomain := make([]interface{}, 0, len(d))
	for _, cond := range d {
		if len(cond) == 1 {
			if op, ok := cond[0].(string); ok {
				rpcDomain = append(rpcDomain, op)
				continue
			}
		}
		rpcDomain = append(rpcDomain, []interface{}(cond))
	}
	return rpcDomain
}

// Fields is a list of field names to fetch.
type Fields []string

// ToRPC returns the field names, defaulting to {"name"} when empty.
func (f Fields) ToRPC() []string {
	if len(f) == 0 {
		return []string{"name"}
	}
	return []string(f)
}

// OdooContext is the "context" dictionary sent with every call. It carries
// locale (lang), timezone (tz), company selectors and any caller-defined keys;
// the client passes them through without interpretation.
type OdooContext map[string]interface{}

// Merge returns a new context with each layer applied on top of c in order.
// A layer only overwrites the keys it defines; nested maps are replaced, not
// merged. Neither c nor the layers are modified.
func (c OdooContext) Merge(layers ...OdooContext) OdooContext {
	merged := make(OdooContext, len(c))
	maps.Copy(merged, c)
	for _, layer := range layers {
		maps.Copy(merged, layer)
	}
	return merged
}

// Clone returns a shallow copy of c. A nil context clones to an empty one.
func (c OdooContext) Clone() OdooContext {
	if c == nil {
		return OdooContext{}
	}
	return maps.Clone(c)
}

// toContext accepts any string-keyed map as a "context" kwarg.
func toContext(v interface{}) (OdooContext, bool) {
	switch c := v.(type) {
	case OdooContext:
		return c, true
	case map[string]interface{}:
		return OdooContext(c), true
	case Data:
		return OdooContext(c), true
	}
	m, ok := stringKeyedMap(v)
	return OdooContext(m), ok
}

// stringKeyedMap copies a map with string keys of any element type, such as
// map[string]string, into a map[string]interface{}.
func stringKeyedMap(v interface{}) (map[string]interface{}, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Options represents common keyword arguments for Odoo RPC methods.
// Context is the call-site context override, layered last.
type Options struct {
	Context OdooContext            `json:"context,omitempty"`
	Limit   int                    `json:"limit,omitempty"`
	Offset  int                    `json:"offset,omitempty"`
	Order   string                 `json:"order,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// ToRPC converts the Options struct into keyword arguments.
func (o *Options) ToRPC() map[string]interface{} {
	rpcOptions := make(map[string]interface{})
	if o == nil {
		return rpcOptions
	}

	if len(o.Context) > 0 {
		rpcOptions["context"] = o.Context
	}
	if o.Limit > 0 { // Odoo ignores limits <= 0
		rpcOptions["limit"] = o.Limit
	}
	if o.Offset > 0 {
		rpcOptions["offset"] = o.Offset
	}
	if o.Order != "" {
		rpcOptions["order"] = o.Order
	}
	for k, v := range o.Extra {
		rpcOptions[k] = v
	}
	return rpcOptions
}

// Data holds field values for create and write, keyed by field name.
// Relational fields take command.Command values or slices of them.
type Data map[string]interface{}

// ToRPC converts the Data type to a map[string]interface{} suitable for Odoo RPC calls.
func (d Data) ToRPC() map[string]interface{} {
	return map[string]interface{}(d)
}

// parseOptions returns the kwargs of the first non-nil Options.
func parseOptions(options ...*Options) map[string]interface{} {
	for _, o := range options {
		if o != nil {
			return o.ToRPC()
		}
	}
	return map[string]interface{}{}
}
