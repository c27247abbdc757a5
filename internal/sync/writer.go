package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xelth-com/datalake/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// columns never touched by the update half of an upsert
var immutableColumns = map[string]bool{
	"id":            true,
	"created_at":    true,
	"connection_id": true,
	"external_id":   true,
	"sync_version":  true,
}

const checksumLookupChunk = 500

// BulkWriter upserts mirrored rows keyed on (connection_id, external_id)
type BulkWriter struct {
	db        *gorm.DB
	batchSize int
	now       func() time.Time
}

// WriteResult reports what an Upsert committed
type WriteResult struct {
	Written int
	Failed  int
}

// NewBulkWriter creates a writer committing batchSize rows per statement
func NewBulkWriter(db *gorm.DB, batchSize int) *BulkWriter {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &BulkWriter{db: db, batchSize: batchSize, now: time.Now}
}

// Upsert inserts new rows and updates existing ones in chunks. Rows sharing
// an external id are collapsed, keeping the last. Chunks are independent: a
// failed chunk is reported while the remaining chunks still run.
func Upsert[T models.Mirrored](ctx context.Context, w *BulkWriter, rows []T) (*WriteResult, error) {
	rows = dedupe(rows)
	result := &WriteResult{}
	if len(rows) == 0 {
		return result, nil
	}

	stmt := &gorm.Statement{DB: w.db}
	if err := stmt.Parse(rows[0]); err != nil {
		return nil, fmt.Errorf("parse %s schema: %w", rows[0].TableName(), err)
	}
	table := stmt.Schema.Table

	updates := make([]string, 0, len(stmt.Schema.DBNames))
	for _, name := range stmt.Schema.DBNames {
		if !immutableColumns[name] {
			updates = append(updates, name)
		}
	}
	assignments := clause.AssignmentColumns(updates)
	assignments = append(assignments, clause.Assignment{
		Column: clause.Column{Name: "sync_version"},
		Value:  gorm.Expr("? + 1", clause.Column{Table: table, Name: "sync_version"}),
	})
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "connection_id"}, {Name: "external_id"}},
		DoUpdates: assignments,
	}

	now := w.now().UTC()
	for _, row := range rows {
		meta := row.Meta()
		meta.SyncedAt = now
		meta.SyncVersion = 1
	}

	session := w.db.Session(&gorm.Session{SkipDefaultTransaction: true}).WithContext(ctx)

	var errs *multierror.Error
	for start := 0; start < len(rows); start += w.batchSize {
		end := start + w.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		if err := session.Clauses(onConflict).Create(chunk).Error; err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s rows %d-%d: %w", table, start, end-1, err))
			result.Failed += len(chunk)
			continue
		}
		result.Written += len(chunk)
	}
	return result, errs.ErrorOrNil()
}

func dedupe[T models.Mirrored](rows []T) []T {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		id := row.Meta().ExternalID
		if i, ok := index[id]; ok {
			out[i] = row
			continue
		}
		index[id] = len(out)
		out = append(out, row)
	}
	return out
}

// ExistingChecksums returns the stored checksum of every external id in ids
// that is already mirrored for connection
func (w *BulkWriter) ExistingChecksums(ctx context.Context, table, connection string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for start := 0; start < len(ids); start += checksumLookupChunk {
		end := start + checksumLookupChunk
		if end > len(ids) {
			end = len(ids)
		}

		var rows []struct {
			ExternalID string
			Checksum   string
		}
		err := w.db.WithContext(ctx).
			Table(table).
			Select("external_id, checksum").
			Where("connection_id = ? AND external_id IN ?", connection, ids[start:end]).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("load %s checksums: %w", table, err)
		}
		for _, r := range rows {
			out[r.ExternalID] = r.Checksum
		}
	}
	return out, nil
}
