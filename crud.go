package odooconnect

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// --- Search & Read ---

// Search returns the ids of the records matching domain, in server order.
//
// Parameters:
//   - ctx: The context for the request, enabling cancellation and timeouts.
//   - domain: The filter, passed to the server as-is.
//     Example: `odooconnect.Domain{{"|"}, {"is_company", "=", true}, {"email", "ilike", "%example.com"}}`
//   - options: Optional limit, offset, order, call-site context and extra kwargs.
//
// Returns:
//   - []int64: The matching ids; empty when nothing matches.
//   - error: ErrConnection, ErrAuthentication or ErrRequest.
func (m *Model) Search(ctx context.Context, domain Domain, options ...*Options) ([]int64, error) {
	m.session.logger.Debug("Performing Odoo search",
		zap.String("model", string(m.name)),
		zap.Any("domain", domain),
		zap.String("op", "Search"),
	)

	result, err := m.execute(ctx, "Search", "search", []interface{}{domain.ToRPC()}, parseOptions(options...))
	if err != nil {
		return nil, err
	}
	ids, err := asInt64Slice(result)
	if err != nil {
		return nil, err
	}

	m.session.logger.Info("Odoo search completed",
		zap.String("model", string(m.name)),
		zap.Int("results", len(ids)),
		zap.String("op", "Search"),
	)
	return ids, nil
}

// SearchOne is Search limited to one record.
//
// Returns:
//   - int64: The id of the first matching record.
//   - error: ErrRecordNotFound when nothing matches, otherwise as Search.
func (m *Model) SearchOne(ctx context.Context, domain Domain, options ...*Options) (int64, error) {
	m.session.logger.Debug("Performing Odoo searchOne",
		zap.String("model", string(m.name)),
		zap.Any("domain", domain),
		zap.String("op", "SearchOne"),
	)

	kwargs := parseOptions(options...)
	kwargs["limit"] = 1

	result, err := m.execute(ctx, "SearchOne", "search", []interface{}{domain.ToRPC()}, kwargs)
	if err != nil {
		return 0, err
	}
	ids, err := asInt64Slice(result)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		m.session.logger.Info("No records found for Odoo searchOne",
			zap.String("model", string(m.name)),
			zap.Any("domain", domain),
			zap.String("op", "SearchOne"),
		)
		return 0, fmt.Errorf("%w: for model '%s' with domain %v", ErrRecordNotFound, m.name, domain.ToRPC())
	}
	if len(ids) > 1 {
		m.session.logger.Warn("SearchOne found more than one record despite limit=1, returning the first",
			zap.String("model", string(m.name)),
			zap.Int("found_count", len(ids)),
		)
	}

	m.session.logger.Info("Odoo searchOne completed",
		zap.String("model", string(m.name)),
		zap.Int64("result_id", ids[0]),
		zap.String("op", "SearchOne"),
	)
	return ids[0], nil
}

// SearchCount returns the number of records matching domain.
func (m *Model) SearchCount(ctx context.Context, domain Domain, options ...*Options) (int64, error) {
	m.session.logger.Debug("Performing Odoo search_count",
		zap.String("model", string(m.name)),
		zap.Any("domain", domain),
		zap.String("op", "SearchCount"),
	)

	result, err := m.execute(ctx, "SearchCount", "search_count", []interface{}{domain.ToRPC()}, parseOptions(options...))
	if err != nil {
		return 0, err
	}
	count, ok := asInt64(result)
	if !ok {
		return 0, fmt.Errorf("%w: search_count returned %T", ErrInvalidResponse, result)
	}

	m.session.logger.Info("Odoo search_count completed",
		zap.String("model", string(m.name)),
		zap.Int64("count", count),
		zap.String("op", "SearchCount"),
	)
	return count, nil
}

// SearchRead searches and reads in one round trip. fields defaults to {"name"}.
//
// Returns:
//   - []map[string]any: One mapping per record, in server order. Each mapping
//     carries "id" plus the requested fields.
//   - error: ErrConnection, ErrAuthentication or ErrRequest.
func (m *Model) SearchRead(ctx context.Context, domain Domain, fields Fields, options ...*Options) ([]map[string]any, error) {
	m.session.logger.Debug("Performing Odoo search_read",
		zap.String("model", string(m.name)),
		zap.Any("domain", domain),
		zap.Strings("fields", fields.ToRPC()),
		zap.String("op", "SearchRead"),
	)

	kwargs := parseOptions(options...)
	kwargs["fields"] = fields.ToRPC()

	result, err := m.execute(ctx, "SearchRead", "search_read", []interface{}{domain.ToRPC()}, kwargs)
	if err != nil {
		return nil, err
	}
	records, err := asRecords(result)
	if err != nil {
		return nil, err
	}

	m.session.logger.Info("Odoo search_read completed",
		zap.String("model", string(m.name)),
		zap.Int("records_count", len(records)),
		zap.String("op", "SearchRead"),
	)
	return records, nil
}

// Read fetches fields for ids. fields defaults to {"name"}. An id unknown to
// the server fails the whole call with ErrRequest.
//
// Parameters:
//   - ctx: The context for the request.
//   - ids: The record ids. An empty slice returns an empty result without RPC.
//   - fields: The field names to fetch.
//   - options: Optional call-site context and extra kwargs.
//
// Returns:
//   - []map[string]any: One mapping per id, each carrying "id".
//   - error: ErrConnection, ErrAuthentication or ErrRequest.
func (m *Model) Read(ctx context.Context, ids []int64, fields Fields, options ...*Options) ([]map[string]any, error) {
	m.session.logger.Debug("Performing Odoo read",
		zap.String("model", string(m.name)),
		zap.Int64s("ids", ids),
		zap.Strings("fields", fields.ToRPC()),
		zap.String("op", "Read"),
	)

	if len(ids) == 0 {
		m.session.logger.Info("No IDs provided for Odoo read, returning empty slice",
			zap.String("model", string(m.name)),
			zap.String("op", "Read"),
		)
		return []map[string]any{}, nil
	}

	result, err := m.execute(ctx, "Read", "read", []interface{}{ids, fields.ToRPC()}, parseOptions(options...))
	if err != nil {
		return nil, err
	}
	records, err := asRecords(result)
	if err != nil {
		return nil, err
	}

	m.session.logger.Info("Odoo read completed",
		zap.String("model", string(m.name)),
		zap.Int("records_count", len(records)),
		zap.String("op", "Read"),
	)
	return records, nil
}

// ReadOne reads a single record.
//
// Returns:
//   - map[string]any: The record's field values.
//   - error: ErrRecordNotFound when the server returns nothing, otherwise as Read.
func (m *Model) ReadOne(ctx context.Context, id int64, fields Fields, options ...*Options) (map[string]any, error) {
	records, err := m.Read(ctx, []int64{id}, fields, options...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: for model '%s' with ID %d", ErrRecordNotFound, m.name, id)
	}
	return records[0], nil
}

// --- Create, Write & Unlink ---

// Create creates one record and returns its id.
//
// Parameters:
//   - ctx: The context for the request.
//   - values: Field values. Relational fields take command.Command values.
//   - options: Optional call-site context and extra kwargs.
//
// Returns:
//   - int64: The new record id.
//   - error: ErrValidation when the server answers with no id, otherwise
//     ErrConnection, ErrAuthentication or ErrRequest.
func (m *Model) Create(ctx context.Context, values Data, options ...*Options) (int64, error) {
	m.session.logger.Debug("Performing Odoo create",
		zap.String("model", string(m.name)),
		zap.Strings("fields", maps.Keys(values)),
		zap.String("op", "Create"),
	)

	result, err := m.execute(ctx, "Create", "create", []interface{}{values.ToRPC()}, parseOptions(options...))
	if err != nil {
		return 0, err
	}

	// Recent servers answer a single-mapping create with an id, older ones
	// with a one-element list.
	var id int64
	switch v := result.(type) {
	case []any:
		if len(v) > 0 {
			id, _ = asInt64(v[0])
		}
	default:
		id, _ = asInt64(v)
	}
	if id <= 0 {
		return 0, validationErrorf("create on %s returned no record id (got %v)", m.name, result)
	}

	m.session.logger.Info("Odoo create completed",
		zap.String("model", string(m.name)),
		zap.Int64("new_id", id),
		zap.String("op", "Create"),
	)
	return id, nil
}

// CreateMany creates several records in one call and returns their ids in
// input order.
func (m *Model) CreateMany(ctx context.Context, values []Data, options ...*Options) ([]int64, error) {
	m.session.logger.Debug("Performing Odoo create (multiple records)",
		zap.String("model", string(m.name)),
		zap.Int("data_entries", len(values)),
		zap.String("op", "CreateMany"),
	)

	if len(values) == 0 {
		return []int64{}, nil
	}

	payload := make([]interface{}, len(values))
	for i, v := range values {
		payload[i] = v.ToRPC()
	}

	result, err := m.execute(ctx, "CreateMany", "create", []interface{}{payload}, parseOptions(options...))
	if err != nil {
		return nil, err
	}
	ids, err := asInt64Slice(result)
	if err != nil {
		return nil, err
	}
	if len(ids) != len(values) {
		return nil, validationErrorf("create on %s returned %d ids for %d records", m.name, len(ids), len(values))
	}

	m.session.logger.Info("Odoo create (multiple records) completed",
		zap.String("model", string(m.name)),
		zap.Int64s("new_ids", ids),
		zap.String("op", "CreateMany"),
	)
	return ids, nil
}

// Write sets values on every record in ids. Records obtained earlier through
// Browse keep their cached values; call Record.Invalidate on them.
//
// Returns:
//   - bool: The server's answer, normally true.
//   - error: ErrValidation when ids is empty, otherwise ErrConnection,
//     ErrAuthentication or ErrRequest.
func (m *Model) Write(ctx context.Context, ids []int64, values Data, options ...*Options) (bool, error) {
	m.session.logger.Debug("Performing Odoo write",
		zap.String("model", string(m.name)),
		zap.Int64s("ids", ids),
		zap.Strings("fields", maps.Keys(values)),
		zap.String("op", "Write"),
	)

	if len(ids) == 0 {
		return false, validationErrorf("no record IDs provided for write on %s", m.name)
	}

	result, err := m.execute(ctx, "Write", "write", []interface{}{ids, values.ToRPC()}, parseOptions(options...))
	if err != nil {
		return false, err
	}
	success := asBool(result)

	m.session.logger.Info("Odoo write completed",
		zap.String("model", string(m.name)),
		zap.Int64s("ids", ids),
		zap.Bool("success", success),
		zap.String("op", "Write"),
	)
	return success, nil
}

// WriteEach writes a different set of values to each record, one call per
// record in ascending id order. It stops at the first transport or
// authentication failure; server rejections of a single record are collected.
//
// Returns:
//   - map[int64]error: Per-record failures; empty when every write succeeded.
//   - error: A failure that aborted the batch.
func (m *Model) WriteEach(ctx context.Context, valuesByID map[int64]Data, options ...*Options) (map[int64]error, error) {
	m.session.logger.Debug("Performing Odoo writeEach",
		zap.String("model", string(m.name)),
		zap.Int("records_to_update", len(valuesByID)),
		zap.String("op", "WriteEach"),
	)

	failed := make(map[int64]error)
	ids := maps.Keys(valuesByID)
	slices.Sort(ids)

	for _, id := range ids {
		ok, err := m.Write(ctx, []int64{id}, valuesByID[id], options...)
		switch {
		case err != nil && !isRecordLevel(err):
			return failed, err
		case err != nil:
			failed[id] = err
		case !ok:
			failed[id] = fmt.Errorf("%w: write on %s id %d returned false", ErrRequest, m.name, id)
		}
		if err != nil || !ok {
			m.session.logger.Error("Failed to update single record in Odoo writeEach",
				zap.Int64("record_id", id),
				zap.String("model", string(m.name)),
				zap.Error(failed[id]),
				zap.String("op", "WriteEach"),
			)
		}
	}

	m.session.logger.Info("Odoo writeEach completed",
		zap.String("model", string(m.name)),
		zap.Int("updated", len(ids)-len(failed)),
		zap.Int("failed", len(failed)),
		zap.String("op", "WriteEach"),
	)
	return failed, nil
}

// isRecordLevel reports whether err is a server rejection of one record
// rather than a failure that would hit every following write too.
func isRecordLevel(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && !isSessionRejected(err)
}

// Unlink deletes the records in ids.
//
// Returns:
//   - bool: The server's answer, normally true.
//   - error: ErrValidation when ids is empty, otherwise ErrConnection,
//     ErrAuthentication or ErrRequest.
func (m *Model) Unlink(ctx context.Context, ids []int64, options ...*Options) (bool, error) {
	m.session.logger.Debug("Performing Odoo unlink",
		zap.String("model", string(m.name)),
		zap.Int64s("ids", ids),
		zap.String("op", "Unlink"),
	)

	if len(ids) == 0 {
		return false, validationErrorf("no record IDs provided for unlink on %s", m.name)
	}

	result, err := m.execute(ctx, "Unlink", "unlink", []interface{}{ids}, parseOptions(options...))
	if err != nil {
		return false, err
	}
	success := asBool(result)

	m.session.logger.Info("Odoo unlink completed",
		zap.String("model", string(m.name)),
		zap.Int64s("ids", ids),
		zap.Bool("success", success),
		zap.String("op", "Unlink"),
	)
	return success, nil
}
