package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Save attempt statuses.
const (
	StatusSaved  = "saved"
	StatusFailed = "failed"
)

// AuditTableNames are the tables included in the monthly export.
var AuditTableNames = []string{"save_attempts"}

// SaveAttempt is one row of the audit log.
type SaveAttempt struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Form       string    `json:"form"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Payload    string    `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordSaveAttempt appends an entry; ID and CreatedAt are filled when empty.
func (db *DB) RecordSaveAttempt(ctx context.Context, a *SaveAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO save_attempts (id, employee_id, form, status, error, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EmployeeID, a.Form, a.Status, a.Error, a.Payload, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert save attempt: %w", err)
	}
	return nil
}

// RecentSaveAttempts returns the latest entries for one employee, newest first.
func (db *DB) RecentSaveAttempts(ctx context.Context, employeeID string, limit int) ([]SaveAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, employee_id, form, status, error, payload, created_at
		FROM save_attempts
		WHERE employee_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, employeeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaveAttempt
	for rows.Next() {
		var a SaveAttempt
		if err := rows.Scan(&a.ID, &a.EmployeeID, &a.Form, &a.Status, &a.Error, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteOldEntries removes entries older than olderThan.
func (db *DB) DeleteOldEntries(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC()
	res, err := db.ExecContext(ctx, `DELETE FROM save_attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	return res.RowsAffected()
}

// GetTableNames returns list of table names to export.
func (db *DB) GetTableNames(_ context.Context) ([]string, error) {
	return AuditTableNames, nil
}

// GetTableData returns all rows from a table as maps.
func (db *DB) GetTableData(ctx context.Context, tableName string) (data []map[string]interface{}, columns []string, err error) {
	validTable := false
	for _, t := range AuditTableNames {
		if t == tableName {
			validTable = true
			break
		}
	}
	if !validTable {
		return nil, nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY created_at", tableName))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err = rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		data = append(data, row)
	}

	return data, columns, rows.Err()
}
