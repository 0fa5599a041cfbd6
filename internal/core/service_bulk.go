package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/idlookup/internal/logging"
)

// BulkUpsert parses text and upserts every accepted entry in input order.
//
// Rejected entries are counted, and the first maxSamples of them are echoed
// back. Entries are applied one at a time; a store failure stops the import
// and returns the partial result with the error, leaving earlier entries
// applied.
func (s *Service) BulkUpsert(ctx context.Context, text string) (BulkResult, error) {
	start := time.Now()

	if err := s.limiter.Acquire(ctx); err != nil {
		return BulkResult{}, s.observe(ctx, OpBulk, start, err)
	}
	defer s.limiter.Release()

	res := BulkResult{BatchID: uuid.NewString()}
	logger := logging.WithFields(ctx, "batch_id", res.BatchID)

	entries := ParseBulk(NormalizeBulkText(text))
	logger.Debug("bulk import started", "entries", len(entries))

	var err error
	for _, entry := range entries {
		if !entry.Accepted() {
			res.Rejected++
			if len(res.RejectedSamples) < s.maxSamples {
				res.RejectedSamples = append(res.RejectedSamples, entry.String())
			}
			continue
		}

		if err = ctx.Err(); err != nil {
			break
		}

		rec := Record{
			Name:       CanonicalName(entry.Name),
			Code:       entry.Code,
			ExternalID: entry.ExternalID,
		}
		s.writeMu.Lock()
		err = s.upsertLocked(ctx, rec)
		s.writeMu.Unlock()
		if err != nil {
			break
		}
		res.Accepted++
	}
	res.Duration = time.Since(start)

	s.reportBulk(res)
	if res.Accepted > 0 {
		entry := AuditEntry{Action: ActionBulkAdd, BatchID: res.BatchID, RowsAffected: int64(res.Accepted)}
		if err != nil {
			entry.Reason = err.Error()
		}
		s.audit(ctx, entry)
	}

	if err != nil {
		logger.Error("bulk import aborted",
			"accepted", res.Accepted,
			"rejected", res.Rejected,
			"error", err,
		)
		return res, s.observe(ctx, OpBulk, start, err)
	}

	logger.Info("bulk import completed",
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, s.observe(ctx, OpBulk, start, nil)
}
