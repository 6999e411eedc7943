// Package audit exports the save-attempt log to a monthly spreadsheet and
// prunes entries past the retention window.
package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// TableExporter provides access to database tables for export.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	// GetTableData returns rows as column->value maps plus the column order.
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// ExcelWriter writes data to Excel format.
type ExcelWriter interface {
	AddSheet(name string) error
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
}

// Notifier delivers the finished report.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// DataCleaner removes entries older than the retention window.
type DataCleaner interface {
	DeleteOldEntries(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Logger for audit operations.
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// ZerologLogger adapts a zerolog logger to Logger. Fields are key/value pairs.
type ZerologLogger struct {
	L *zerolog.Logger
}

func (z ZerologLogger) Info(msg string, fields ...interface{}) {
	z.L.Info().Fields(fields).Msg(msg)
}

func (z ZerologLogger) Error(msg string, fields ...interface{}) {
	z.L.Error().Fields(fields).Msg(msg)
}

func (z ZerologLogger) Debug(msg string, fields ...interface{}) {
	z.L.Debug().Fields(fields).Msg(msg)
}

// ReportFilename names the report covering the month of t, e.g. "audit_2026-01.xlsx".
func ReportFilename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%04d-%02d.xlsx", prefix, t.Year(), int(t.Month()))
}

// PreviousMonth returns a time inside the month before now.
func PreviousMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
}
