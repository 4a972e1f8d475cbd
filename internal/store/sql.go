package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlStore implements Store over database/sql. The SQL surface is kept
// portable between MySQL and SQLite: `?` placeholders, explicit
// insert-vs-update instead of vendor upsert syntax, and JSON-encoded
// text columns for slices and maps.
type sqlStore struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS connections (
		id VARCHAR(36) PRIMARY KEY,
		kind VARCHAR(32) NOT NULL,
		name VARCHAR(255) NOT NULL,
		root_path VARCHAR(512) NOT NULL,
		local_path VARCHAR(512) NOT NULL,
		credentials TEXT NOT NULL,
		enabled BOOLEAN NOT NULL,
		direction VARCHAR(32) NOT NULL,
		frequency_minutes INT NOT NULL,
		exclude_paths TEXT NOT NULL,
		include_extensions TEXT NOT NULL,
		exclude_extensions TEXT NOT NULL,
		last_sync_at DATETIME NULL,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id VARCHAR(36) PRIMARY KEY,
		connection_id VARCHAR(36) NOT NULL,
		path VARCHAR(512) NOT NULL,
		is_dir BOOLEAN NOT NULL,
		size BIGINT NOT NULL,
		content_type VARCHAR(255) NOT NULL,
		hash VARCHAR(128) NOT NULL,
		modified_at DATETIME NOT NULL,
		last_synced_at DATETIME NULL,
		status VARCHAR(32) NOT NULL,
		metadata TEXT NOT NULL,
		resolution VARCHAR(16) NOT NULL,
		UNIQUE (connection_id, path)
	)`,
	`CREATE TABLE IF NOT EXISTS operations (
		id VARCHAR(36) PRIMARY KEY,
		connection_id VARCHAR(36) NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NULL,
		status VARCHAR(32) NOT NULL,
		items_processed INT NOT NULL,
		items_total INT NULL,
		bytes_transferred BIGINT NOT NULL,
		errors TEXT NOT NULL,
		conflict_item_ids TEXT NOT NULL
	)`,
}

func (s *sqlStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

const connectionColumns = `id, kind, name, root_path, local_path, credentials, enabled, direction,
	frequency_minutes, exclude_paths, include_extensions, exclude_extensions, last_sync_at,
	metadata, created_at, updated_at`

func (s *sqlStore) CreateConnection(ctx context.Context, conn *Connection) error {
	query := `INSERT INTO connections (` + connectionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, connectionArgs(conn)...)
	return err
}

func (s *sqlStore) UpdateConnection(ctx context.Context, conn *Connection) error {
	query := `UPDATE connections SET kind = ?, name = ?, root_path = ?, local_path = ?,
			  credentials = ?, enabled = ?, direction = ?, frequency_minutes = ?,
			  exclude_paths = ?, include_extensions = ?, exclude_extensions = ?,
			  last_sync_at = ?, metadata = ?, created_at = ?, updated_at = ?
			  WHERE id = ?`
	args := append(connectionArgs(conn)[1:], conn.ID)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqlStore) DeleteConnection(ctx context.Context, id string) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE connection_id = ?`, id); err != nil {
		return false, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE connection_id = ?`, id); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *sqlStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conn, err
}

func (s *sqlStore) ListConnections(ctx context.Context) ([]*Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

const itemColumns = `id, connection_id, path, is_dir, size, content_type, hash, modified_at,
	last_synced_at, status, metadata, resolution`

func (s *sqlStore) UpsertItem(ctx context.Context, item *Item) error {
	// Identity is stable per (connection, path): an existing row keeps
	// its id and the caller's item is rewritten to match.
	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM items WHERE connection_id = ? AND path = ?`,
		item.ConnectionID, item.Path).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		query := `INSERT INTO items (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err = s.db.ExecContext(ctx, query, itemArgs(item)...)
		return err
	case err != nil:
		return err
	}

	item.ID = existingID
	query := `UPDATE items SET is_dir = ?, size = ?, content_type = ?, hash = ?, modified_at = ?,
			  last_synced_at = ?, status = ?, metadata = ?, resolution = ?
			  WHERE id = ?`
	_, err = s.db.ExecContext(ctx, query,
		item.IsDir, item.Size, item.ContentType, item.Hash, item.ModifiedAt,
		nullTime(item.LastSyncedAt), string(item.Status), marshalJSON(item.Metadata),
		string(item.Resolution), item.ID)
	return err
}

func (s *sqlStore) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *sqlStore) GetItemByPath(ctx context.Context, connectionID, path string) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE connection_id = ? AND path = ?`, connectionID, path)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return item, err
}

func (s *sqlStore) ListItems(ctx context.Context, connectionID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE connection_id = ? ORDER BY path`, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

const operationColumns = `id, connection_id, started_at, completed_at, status, items_processed,
	items_total, bytes_transferred, errors, conflict_item_ids`

func (s *sqlStore) CreateOperation(ctx context.Context, op *Operation) error {
	query := `INSERT INTO operations (` + operationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, operationArgs(op)...)
	return err
}

func (s *sqlStore) UpdateOperation(ctx context.Context, op *Operation) error {
	query := `UPDATE operations SET completed_at = ?, status = ?, items_processed = ?,
			  items_total = ?, bytes_transferred = ?, errors = ?, conflict_item_ids = ?
			  WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query,
		nullTime(op.CompletedAt), string(op.Status), op.ItemsProcessed,
		nullInt(op.ItemsTotal), op.BytesTransferred, marshalJSON(op.Errors),
		marshalJSON(op.ConflictItemIDs), op.ID)
	return err
}

func (s *sqlStore) GetOperation(ctx context.Context, id string) (*Operation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return op, err
}

func (s *sqlStore) ListOperations(ctx context.Context, connectionID string, limit, offset int) ([]*Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE connection_id = ?
		 ORDER BY started_at DESC LIMIT ? OFFSET ?`, connectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func (s *sqlStore) PruneOperations(ctx context.Context, connectionID string, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM operations WHERE connection_id = ? AND status IN (?, ?)
		 ORDER BY started_at DESC`, connectionID, string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}

	pruned := 0
	for _, id := range ids[keep:] {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func connectionArgs(conn *Connection) []interface{} {
	return []interface{}{
		conn.ID, string(conn.Kind), conn.Name, conn.RootPath, conn.LocalPath,
		marshalJSON(conn.Credentials), conn.Enabled, string(conn.Direction),
		conn.FrequencyMinutes, marshalJSON(conn.ExcludePaths),
		marshalJSON(conn.IncludeExtensions), marshalJSON(conn.ExcludeExtensions),
		nullTime(conn.LastSyncAt), marshalJSON(conn.Metadata), conn.CreatedAt, conn.UpdatedAt,
	}
}

func scanConnection(row scanner) (*Connection, error) {
	var conn Connection
	var kind, direction, metadata string
	var credentials, excludePaths, includeExts, excludeExts string
	var lastSync sql.NullTime
	err := row.Scan(&conn.ID, &kind, &conn.Name, &conn.RootPath, &conn.LocalPath,
		&credentials, &conn.Enabled, &direction, &conn.FrequencyMinutes,
		&excludePaths, &includeExts, &excludeExts, &lastSync, &metadata,
		&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conn.Kind = PlatformKind(kind)
	conn.Direction = SyncDirection(direction)
	conn.LastSyncAt = timePtr(lastSync)
	unmarshalJSON(credentials, &conn.Credentials)
	unmarshalJSON(excludePaths, &conn.ExcludePaths)
	unmarshalJSON(includeExts, &conn.IncludeExtensions)
	unmarshalJSON(excludeExts, &conn.ExcludeExtensions)
	unmarshalJSON(metadata, &conn.Metadata)
	return &conn, nil
}

func itemArgs(item *Item) []interface{} {
	return []interface{}{
		item.ID, item.ConnectionID, item.Path, item.IsDir, item.Size, item.ContentType,
		item.Hash, item.ModifiedAt, nullTime(item.LastSyncedAt), string(item.Status),
		marshalJSON(item.Metadata), string(item.Resolution),
	}
}

func scanItem(row scanner) (*Item, error) {
	var item Item
	var status, resolution, metadata string
	var lastSynced sql.NullTime
	err := row.Scan(&item.ID, &item.ConnectionID, &item.Path, &item.IsDir, &item.Size,
		&item.ContentType, &item.Hash, &item.ModifiedAt, &lastSynced, &status,
		&metadata, &resolution)
	if err != nil {
		return nil, err
	}
	item.Status = SyncStatus(status)
	item.Resolution = Resolution(resolution)
	item.LastSyncedAt = timePtr(lastSynced)
	unmarshalJSON(metadata, &item.Metadata)
	return &item, nil
}

func operationArgs(op *Operation) []interface{} {
	return []interface{}{
		op.ID, op.ConnectionID, op.StartedAt, nullTime(op.CompletedAt), string(op.Status),
		op.ItemsProcessed, nullInt(op.ItemsTotal), op.BytesTransferred,
		marshalJSON(op.Errors), marshalJSON(op.ConflictItemIDs),
	}
}

func scanOperation(row scanner) (*Operation, error) {
	var op Operation
	var status, errs, conflictIDs string
	var completed sql.NullTime
	var total sql.NullInt64
	err := row.Scan(&op.ID, &op.ConnectionID, &op.StartedAt, &completed, &status,
		&op.ItemsProcessed, &total, &op.BytesTransferred, &errs, &conflictIDs)
	if err != nil {
		return nil, err
	}
	op.Status = SyncStatus(status)
	op.CompletedAt = timePtr(completed)
	if total.Valid {
		n := int(total.Int64)
		op.ItemsTotal = &n
	}
	unmarshalJSON(errs, &op.Errors)
	unmarshalJSON(conflictIDs, &op.ConflictItemIDs)
	return &op, nil
}

func marshalJSON(v interface{}) string {
	bytes, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(bytes)
}

func unmarshalJSON(s string, v interface{}) {
	if s == "" || s == "null" {
		return
	}
	_ = json.Unmarshal([]byte(s), v)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
