package catalog

import (
	"context"
	"encoding/json"

	"github.com/gaspardpetit/findx/internal/bus"
)

// Append inserts env into the events audit table. Catalog implements
// bus.AuditSink so the EventBus never needs to import this package.
func (c *Catalog) Append(ctx context.Context, env bus.Envelope) error {
	payload, err := json.Marshal(env.Data)
	if err != nil {
		return wrapCatalogErr("marshal event payload", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO events (ts, topic, type, idempotency_key, payload)
		VALUES (?, ?, ?, ?, ?)
	`, env.TS, string(env.Topic), string(env.Type), env.IdempotencyKey, payload)
	return wrapCatalogErr("append event", err)
}

// AuditEvent mirrors one row of the events table, as read back for
// replay or inspection.
type AuditEvent struct {
	ID             int64
	TS             int64
	Topic          string
	Type           string
	IdempotencyKey string
	Payload        []byte
}

// ListEventsSince returns audit rows with id > afterID, ordered by id,
// for replay-from-checkpoint use cases.
func (c *Catalog) ListEventsSince(ctx context.Context, afterID int64, limit int) ([]AuditEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, ts, topic, type, idempotency_key, payload
		FROM events WHERE id > ? ORDER BY id LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, wrapCatalogErr("list events since", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Topic, &e.Type, &e.IdempotencyKey, &e.Payload); err != nil {
			return nil, wrapCatalogErr("scan event", err)
		}
		out = append(out, e)
	}
	return out, wrapCatalogErr("iterate events since", rows.Err())
}

// DeleteEventsOlderThan removes audit rows older than cutoff (unix
// seconds), returning the number of rows removed.
func (c *Catalog) DeleteEventsOlderThan(ctx context.Context, cutoff int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM events WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, wrapCatalogErr("delete old events", err)
	}
	n, err := res.RowsAffected()
	return n, wrapCatalogErr("rows affected delete old events", err)
}
