package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pacetech/docflow/internal/docflow/schema"
)

const recordColumns = `local_id, form_type, status, fields, checklists, mitigations,
	workers, document, last_modified, sync_attempts, last_error,
	remote_id, document_url, signature_urls`

// Patch carries the fields UpdateStatus merges over a stored record.
// Zero values leave the stored value unchanged.
type Patch struct {
	RemoteID      string
	DocumentURL   string
	SignatureURLs schema.SignatureURLs
	LastError     string
}

// Stats holds record counts by status.
// Pending + Synced + Error always equals Total.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Error   int `json:"error"`
}

// ListFilter configures the List query.
type ListFilter struct {
	// Status filters by sync status (empty = all statuses)
	Status schema.Status
	// FormType filters by form type (empty = all types)
	FormType string
	// Since keeps records modified at or after this time (zero = no bound)
	Since time.Time
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Save persists a record and returns its local id.
//
// A record without a local id is inserted and assigned a new one; otherwise the
// stored row is replaced. Ids are only ever assigned here, so saving with an id
// that has no row (never stored, or deleted) fails with ErrNotFound. Every save re-queues the record: status is forced to
// pending, lastModified is set to now and the previous remote outcome is
// cleared. SyncAttempts is kept as supplied. The passed record is updated to
// reflect what was stored.
func (db *DB) Save(ctx context.Context, rec *schema.Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid record: %w", err)
	}

	content, err := encodeContent(rec)
	if err != nil {
		return 0, err
	}

	now := db.now()
	id := rec.LocalID

	if id == 0 {
		query := `
		INSERT INTO forms (
			form_type, status, fields, checklists, mitigations, workers, document,
			last_modified, sync_attempts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		res, err := db.conn.ExecContext(ctx, query,
			rec.FormType,
			schema.StatusPending,
			content.fields,
			content.checklists,
			content.mitigations,
			content.workers,
			content.document,
			now.UnixNano(),
			rec.SyncAttempts,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to insert record: %w", ErrStoreWrite, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("%w: failed to read assigned id: %w", ErrStoreWrite, err)
		}
	} else {
		query := `
		UPDATE forms SET
			status = ?,
			fields = ?,
			checklists = ?,
			mitigations = ?,
			workers = ?,
			document = ?,
			last_modified = ?,
			sync_attempts = ?,
			last_error = NULL,
			remote_id = NULL,
			document_url = NULL,
			signature_urls = NULL
		WHERE local_id = ? AND form_type = ?
		`
		res, err := db.conn.ExecContext(ctx, query,
			schema.StatusPending,
			content.fields,
			content.checklists,
			content.mitigations,
			content.workers,
			content.document,
			now.UnixNano(),
			rec.SyncAttempts,
			id,
			rec.FormType,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to update record %d: %w", ErrStoreWrite, id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%w: failed to read affected rows: %w", ErrStoreWrite, err)
		}
		if n == 0 {
			return 0, db.explainMissedUpdate(ctx, id)
		}
	}

	rec.LocalID = id
	rec.Status = schema.StatusPending
	rec.LastModified = now
	rec.LastError = ""
	rec.RemoteID = ""
	rec.DocumentURL = ""
	rec.SignatureURLs = nil

	return id, nil
}

// explainMissedUpdate tells apart a missing row from a form type mismatch
// after an update by id matched nothing.
func (db *DB) explainMissedUpdate(ctx context.Context, id int64) error {
	var formType string
	err := db.conn.QueryRowContext(ctx, `SELECT form_type FROM forms WHERE local_id = ?`, id).Scan(&formType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	case err != nil:
		return fmt.Errorf("%w: failed to check record %d: %w", ErrStoreWrite, id, err)
	default:
		return fmt.Errorf("record %d (%s): %w", id, formType, ErrFormTypeChanged)
	}
}

// Get retrieves a single record by local id.
// Returns ErrNotFound if the record does not exist.
func (db *DB) Get(ctx context.Context, id int64) (*schema.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM forms WHERE local_id = ?`

	rec, err := scanRecord(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", id, err)
	}

	return rec, nil
}

// GetAll returns every record, most recently modified first.
func (db *DB) GetAll(ctx context.Context) ([]*schema.Record, error) {
	return db.List(ctx, ListFilter{})
}

// List retrieves records matching the given filter.
// Results are ordered by last_modified DESC, then local_id DESC.
func (db *DB) List(ctx context.Context, filter ListFilter) ([]*schema.Record, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if filter.FormType != "" {
		conditions = append(conditions, "form_type = ?")
		args = append(args, filter.FormType)
	}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "last_modified >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := `SELECT ` + recordColumns + ` FROM forms`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_modified DESC, local_id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetPending returns exactly the records with status pending, in local id order.
// The lookup goes through idx_forms_status.
func (db *DB) GetPending(ctx context.Context) ([]*schema.Record, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM forms INDEXED BY idx_forms_status
	WHERE status = ?
	ORDER BY local_id ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, schema.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// UpdateStatus moves a record to status, merging patch over the stored values.
//
// The update is a single statement so it cannot interleave with a concurrent
// save of the same record. lastModified is refreshed; syncAttempts is
// incremented when status is error; lastError is kept only for error.
//
// Returns ErrNotFound if the record no longer exists (for example deleted while
// a sync pass was running) and ErrInvalidTransition if the record's current
// status cannot move to status.
func (db *DB) UpdateStatus(ctx context.Context, id int64, status schema.Status, patch Patch) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}

	sources := schema.TransitionSources(status)
	placeholders := make([]string, len(sources))
	for i := range sources {
		placeholders[i] = "?"
	}

	attemptDelta := 0
	lastError := sql.NullString{}
	if status == schema.StatusError {
		attemptDelta = 1
		lastError = sql.NullString{String: patch.LastError, Valid: true}
	}

	sigURLs, err := encodeJSON(patch.SignatureURLs)
	if err != nil {
		return err
	}

	query := `
	UPDATE forms SET
		status = ?,
		last_modified = ?,
		sync_attempts = sync_attempts + ?,
		last_error = ?,
		remote_id = COALESCE(?, remote_id),
		document_url = COALESCE(?, document_url),
		signature_urls = COALESCE(?, signature_urls)
	WHERE local_id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)
	`

	args := []interface{}{
		status,
		db.now().UnixNano(),
		attemptDelta,
		lastError,
		nullString(patch.RemoteID),
		nullString(patch.DocumentURL),
		sigURLs,
		id,
	}
	for _, s := range sources {
		args = append(args, s)
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update status of record %d: %w", ErrStoreWrite, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to read affected rows: %w", ErrStoreWrite, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the record is gone or its status forbids the move.
	var current schema.Status
	err = db.conn.QueryRowContext(ctx, `SELECT status FROM forms WHERE local_id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check record %d: %w", id, err)
	}
	return fmt.Errorf("record %d: %s -> %s: %w", id, current, status, ErrInvalidTransition)
}

// RequeueErrored moves records in error back to pending so the next pass
// retries them. Records whose syncAttempts reached maxAttempts stay in error;
// maxAttempts 0 means no cap. Returns the number of records re-queued.
func (db *DB) RequeueErrored(ctx context.Context, maxAttempts int) (int, error) {
	query := `
	UPDATE forms SET
		status = ?,
		last_modified = ?,
		last_error = NULL
	WHERE status = ? AND (? = 0 OR sync_attempts < ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		schema.StatusPending,
		db.now().UnixNano(),
		schema.StatusError,
		maxAttempts,
		maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to requeue errored records: %w", ErrStoreWrite, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read affected rows: %w", ErrStoreWrite, err)
	}
	return int(n), nil
}

// Delete removes a record regardless of its status.
// Returns nil if the record doesn't exist (idempotent).
func (db *DB) Delete(ctx context.Context, id int64) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM forms WHERE local_id = ?`, id); err != nil {
		return fmt.Errorf("%w: failed to delete record %d: %w", ErrStoreWrite, id, err)
	}
	return nil
}

// GetStats returns record counts computed from the status index.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM forms GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status schema.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan stats: %w", err)
		}

		switch status {
		case schema.StatusPending:
			stats.Pending = count
		case schema.StatusSynced:
			stats.Synced = count
		case schema.StatusError:
			stats.Error = count
		default:
			continue
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("error iterating stats: %w", err)
	}

	stats.Total = stats.Pending + stats.Synced + stats.Error
	return stats, nil
}

// encodedContent holds the JSON columns of a record.
type encodedContent struct {
	fields      sql.NullString
	checklists  sql.NullString
	mitigations sql.NullString
	workers     sql.NullString
	document    sql.NullString
}

func encodeContent(rec *schema.Record) (encodedContent, error) {
	var (
		c   encodedContent
		err error
	)
	if c.fields, err = encodeJSON(rec.Fields); err != nil {
		return c, err
	}
	if c.checklists, err = encodeJSON(rec.Checklists); err != nil {
		return c, err
	}
	if c.mitigations, err = encodeJSON(rec.Mitigations); err != nil {
		return c, err
	}
	if c.workers, err = encodeJSON(rec.Workers); err != nil {
		return c, err
	}
	if c.document, err = encodeJSON(rec.Document); err != nil {
		return c, err
	}
	return c, nil
}

// encodeJSON marshals v to a nullable column value. nil maps, slices and
// pointers are stored as NULL.
func encodeJSON(v interface{}) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal column: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeJSON(ns sql.NullString, v interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*schema.Record, error) {
	var rec schema.Record
	var fields, checklists, mitigations, workers, document sql.NullString
	var lastError, remoteID, documentURL, sigURLs sql.NullString
	var lastModified int64

	err := row.Scan(
		&rec.LocalID,
		&rec.FormType,
		&rec.Status,
		&fields,
		&checklists,
		&mitigations,
		&workers,
		&document,
		&lastModified,
		&rec.SyncAttempts,
		&lastError,
		&remoteID,
		&documentURL,
		&sigURLs,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(fields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
	}
	if err := decodeJSON(checklists, &rec.Checklists); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checklists: %w", err)
	}
	if err := decodeJSON(mitigations, &rec.Mitigations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mitigations: %w", err)
	}
	if err := decodeJSON(workers, &rec.Workers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workers: %w", err)
	}
	if document.Valid {
		rec.Document = &schema.Document{}
		if err := decodeJSON(document, rec.Document); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
	}
	if err := decodeJSON(sigURLs, &rec.SignatureURLs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signature urls: %w", err)
	}

	rec.LastModified = time.Unix(0, lastModified)
	rec.LastError = lastError.String
	rec.RemoteID = remoteID.String
	rec.DocumentURL = documentURL.String

	return &rec, nil
}

// scanRecords is a helper function to scan multiple records from query results.
func scanRecords(rows *sql.Rows) ([]*schema.Record, error) {
	var records []*schema.Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
