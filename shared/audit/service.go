package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config holds configuration for the audit service.
type Config struct {
	// DataRetentionDays is how many days of entries survive cleanup.
	DataRetentionDays int
	ExportOnStart     bool
	// AppName goes into the report caption and filename.
	AppName string
	// ReportDir, when set, receives a copy of every report.
	ReportDir string
}

// ErrNoDestination means a report was built but could not be delivered
// anywhere, so old entries must be kept.
var ErrNoDestination = errors.New("no report destination configured")

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataRetentionDays: 31,
		AppName:           "workload",
	}
}

// Service handles monthly audit exports and data cleanup.
type Service struct {
	config   *Config
	exporter TableExporter
	writer   func() ExcelWriter
	notifier Notifier
	cleaner  DataCleaner
	logger   Logger
	now      func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewService creates a new audit service.
func NewService(
	config *Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	notifier Notifier,
	cleaner DataCleaner,
	logger Logger,
) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DataRetentionDays <= 0 {
		config.DataRetentionDays = 31
	}
	if config.AppName == "" {
		config.AppName = "workload"
	}
	if logger == nil {
		logger = nopLogger{}
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		notifier: notifier,
		cleaner:  cleaner,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the audit scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunExportAndCleanup()
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("audit service started", "retention_days", s.config.DataRetentionDays)
}

// Stop gracefully stops the audit service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := NextRun(s.now())
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()
	s.logger.Info("next audit scheduled", "time", nextRun)

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunExportAndCleanup()

			nextRun = NextRun(s.now())
			timer.Reset(time.Until(nextRun))
			s.logger.Info("next audit scheduled", "time", nextRun)
		}
	}
}

// NextRun is 00:01 on the first day of the month after now.
func NextRun(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup exports first and prunes only after the report was
// delivered to the notifier or written to ReportDir.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.exportData(ctx); err != nil {
		s.logger.Error("failed to export audit data", "error", err)
		return
	}
	if err := s.cleanupOldData(ctx); err != nil {
		s.logger.Error("failed to cleanup old data", "error", err)
	}
}

func (s *Service) exportData(ctx context.Context) error {
	if s.exporter == nil || s.writer == nil {
		return fmt.Errorf("exporter or writer not configured")
	}
	if s.notifier == nil && s.config.ReportDir == "" {
		return ErrNoDestination
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		s.logger.Info("no tables to export")
		return nil
	}

	excel := s.writer()
	if excel == nil {
		return fmt.Errorf("failed to create excel writer")
	}

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error("failed to get table data", "table", tableName, "error", err)
			continue
		}
		if err := excel.AddSheet(tableName); err != nil {
			s.logger.Error("failed to add sheet", "table", tableName, "error", err)
			continue
		}
		if err := excel.WriteHeader(columns); err != nil {
			s.logger.Error("failed to write header", "table", tableName, "error", err)
			continue
		}
		for _, row := range data {
			rowData := make([]interface{}, len(columns))
			for i, col := range columns {
				rowData[i] = row[col]
			}
			if err := excel.WriteRow(rowData); err != nil {
				s.logger.Error("failed to write row", "table", tableName, "error", err)
			}
		}
		s.logger.Debug("exported table", "table", tableName, "rows", len(data))
	}

	var buf bytes.Buffer
	if err := excel.Save(&buf); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}

	month := PreviousMonth(s.now())
	filename := ReportFilename(s.config.AppName+"_audit", month)

	if s.config.ReportDir != "" {
		path, err := s.writeReport(filename, buf.Bytes())
		if err != nil {
			return err
		}
		s.logger.Info("audit report written", "path", path)
	}

	if s.notifier != nil {
		caption := fmt.Sprintf("📊 Monthly %s audit report, %s %d", s.config.AppName, month.Month(), month.Year())
		if err := s.notifier.SendDocument(ctx, filename, &buf, caption); err != nil {
			return fmt.Errorf("send document: %w", err)
		}
		s.logger.Info("audit report sent", "filename", filename)
	}
	return nil
}

func (s *Service) writeReport(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.config.ReportDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(s.config.ReportDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func (s *Service) cleanupOldData(ctx context.Context) error {
	if s.cleaner == nil {
		return nil
	}

	retention := time.Duration(s.config.DataRetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldEntries(ctx, retention)
	if err != nil {
		return fmt.Errorf("delete old entries: %w", err)
	}

	s.logger.Info("cleaned up old data",
		"deleted_count", deleted,
		"retention_days", s.config.DataRetentionDays,
	)
	return nil
}

// ExportNow builds and delivers the report immediately without pruning.
func (s *Service) ExportNow(ctx context.Context) error {
	return s.exportData(ctx)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}
