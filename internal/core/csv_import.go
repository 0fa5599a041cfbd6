package core

// csv_import.go loads records from spreadsheet exports.
//
// The header row is located within the first MaxHeaderSearchRows rows, so
// title lines above the table are tolerated. Every data row is validated and
// upserted on its own; failed rows are reported with their 1-indexed line
// number and the original cells.

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/idlookup/internal/logging"
	"github.com/JonMunkholm/idlookup/internal/schema"
)

// MaxHeaderSearchRows bounds how far down the header row may appear.
const MaxHeaderSearchRows = 10

// ContextCheckInterval is how often (in rows) the import checks for
// cancellation.
const ContextCheckInterval = 100

// ErrCSVHeaderNotFound is returned when no row within MaxHeaderSearchRows
// names the id and name columns.
var ErrCSVHeaderNotFound = errors.New("csv header not found")

// FailedRow is one CSV row that was not imported.
type FailedRow struct {
	Line   int      `json:"line"`
	Reason string   `json:"reason"`
	Data   []string `json:"data"`
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	BatchID    string        `json:"batchId"`
	TotalRows  int           `json:"totalRows"`
	Accepted   int           `json:"accepted"`
	Rejected   int           `json:"rejected"`
	FailedRows []FailedRow   `json:"failedRows,omitempty"`
	Duration   time.Duration `json:"-"`
}

// ImportCSV upserts every valid row of a CSV document with id, name and
// (optional) code columns. It shares the bulk limiter with BulkUpsert. A
// store failure stops the import and returns the partial result with the
// error.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		return ImportResult{}, s.observe(ctx, OpImport, start, err)
	}
	defer s.limiter.Release()

	rows, err := parseCSV(r)
	if err != nil {
		return ImportResult{}, s.observe(ctx, OpImport, start, err)
	}

	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		return ImportResult{}, s.observe(ctx, OpImport, start, ErrCSVHeaderNotFound)
	}
	header := schema.MakeHeaderIndex(rows[headerIdx])
	dataRows := rows[headerIdx+1:]

	res := ImportResult{BatchID: uuid.NewString()}
	logger := logging.WithFields(ctx, "batch_id", res.BatchID)
	logger.Debug("csv import started", "rows", len(dataRows))

	for i, row := range dataRows {
		line := headerIdx + i + 2

		if i%ContextCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				break
			}
		}
		if isEmptyRow(row) {
			continue
		}
		res.TotalRows++

		rec, verr := newRecord(
			header.Value(row, schema.FieldName),
			header.Value(row, schema.FieldCode),
			header.Value(row, schema.FieldID),
		)
		if verr != nil {
			res.Rejected++
			res.FailedRows = append(res.FailedRows, FailedRow{Line: line, Reason: verr.Error(), Data: row})
			continue
		}

		s.writeMu.Lock()
		err = s.upsertLocked(ctx, rec)
		s.writeMu.Unlock()
		if err != nil {
			err = fmt.Errorf("line %d: %w", line, err)
			break
		}
		res.Accepted++
	}
	res.Duration = time.Since(start)

	s.reportBulk(BulkResult{Accepted: res.Accepted, Rejected: res.Rejected})
	if res.Accepted > 0 {
		entry := AuditEntry{Action: ActionImport, BatchID: res.BatchID, RowsAffected: int64(res.Accepted)}
		if err != nil {
			entry.Reason = err.Error()
		}
		s.audit(ctx, entry)
	}

	if err != nil {
		logger.Error("csv import aborted",
			"accepted", res.Accepted,
			"rejected", res.Rejected,
			"error", err,
		)
		return res, s.observe(ctx, OpImport, start, err)
	}

	logger.Info("csv import completed",
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, s.observe(ctx, OpImport, start, nil)
}

// WriteCSV writes records under the canonical header, flushing every
// flushEvery rows. An absent code is an empty cell.
func WriteCSV(w io.Writer, records []Record) error {
	const flushEvery = 1000

	cw := csv.NewWriter(w)
	if err := cw.Write(schema.Columns()); err != nil {
		return err
	}
	for i, rec := range records {
		if err := cw.Write([]string{rec.ExternalID, rec.Name, rec.Code}); err != nil {
			return err
		}
		if (i+1)%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\uFEFF"))

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return rows, nil
}

func findHeaderRow(rows [][]string) int {
	limit := min(len(rows), MaxHeaderSearchRows)
	for i := 0; i < limit; i++ {
		if schema.MakeHeaderIndex(rows[i]).Complete() {
			return i
		}
	}
	return -1
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
