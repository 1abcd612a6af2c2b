package storage

import (
	"context"
	"database/sql"
	"time"

	"docmark/internal/models"
)

// Records is the conversion-record index. A nil *Records is valid: every
// method becomes a no-op, so the service runs without a database (inline
// mode on serverless has nowhere durable to put one).
type Records struct {
	db *sql.DB
}

func NewRecords(db *sql.DB) *Records {
	if db == nil {
		return nil
	}
	return &Records{db: db}
}

// Insert stores one conversion record, best effort.
func (r *Records) Insert(ctx context.Context, rec *models.ConversionRecord) error {
	if r == nil || r.db == nil {
		return nil
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversions
			(session_id, file_name, mime_type, input_bytes, markdown_bytes,
			 image_count, chart_count, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.FileName, rec.MimeType, rec.InputBytes, rec.MarkdownBytes,
		rec.ImageCount, rec.ChartCount, rec.Status, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// Recent returns the newest records, capped at limit.
func (r *Records) Recent(ctx context.Context, limit int) ([]*models.ConversionRecord, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, file_name, mime_type, input_bytes, markdown_bytes,
		       image_count, chart_count, status, created_at, expires_at
		FROM conversions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.ConversionRecord
	for rows.Next() {
		rec := &models.ConversionRecord{}
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.FileName, &rec.MimeType,
			&rec.InputBytes, &rec.MarkdownBytes, &rec.ImageCount, &rec.ChartCount,
			&rec.Status, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// PruneExpired drops records past their expiry. Called after sweeps so the
// index does not outlive the files it describes.
func (r *Records) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
