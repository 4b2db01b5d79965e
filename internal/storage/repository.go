package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertRatioSampleSQL = `INSERT INTO ratio_samples (
        bucket_ts,
        wal_price,
        sui_price,
        ratio,
        state,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        wal_price = EXCLUDED.wal_price,
        sui_price = EXCLUDED.sui_price,
        ratio     = EXCLUDED.ratio,
        state     = EXCLUDED.state,
        status    = EXCLUDED.status,
        error     = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        wal_price,
        sui_price,
        ratio,
        state,
        status,
        error,
        created_at
    FROM ratio_samples
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        wal_price,
        sui_price,
        ratio,
        state,
        status,
        error,
        created_at
    FROM ratio_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM ratio_samples;`

	deleteSamplesBeforeSQL = `DELETE FROM ratio_samples WHERE bucket_ts < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        sample_ts,
        ratio,
        min_range,
        max_range,
        state,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, sample_ts, ratio, min_range, max_range, state, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        sample_ts,
        ratio,
        min_range,
        max_range,
        state,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// RatioSampleStore defines operations for ratio history persistence.
type RatioSampleStore interface {
	UpsertRatioSample(ctx context.Context, sample RatioSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]RatioSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]RatioSample, error)
	CountSamples(ctx context.Context) (int64, error)
	DeleteSamplesBefore(ctx context.Context, olderThan time.Time) error
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to ratio samples and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertRatioSample persists or updates a sample.
func (s *Store) UpsertRatioSample(ctx context.Context, sample RatioSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertRatioSampleSQL,
		sample.Bucket,
		sample.WalPrice.String(),
		sample.SuiPrice.String(),
		sample.Ratio.String(),
		sample.State,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert ratio sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]RatioSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]RatioSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// DeleteSamplesBefore deletes historical samples.
func (s *Store) DeleteSamplesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSamplesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete samples before: %w", execErr)
	}
	return nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.SampleTS,
		alert.Ratio.String(),
		alert.MinRange.String(),
		alert.MaxRange.String(),
		alert.State,
		alert.Channels,
	)

	rec, scanErr := scanAlert(row)
	if scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, hint int) ([]RatioSample, error) {
	samples := make([]RatioSample, 0, hint)
	for rows.Next() {
		sample, scanErr := scanRatioSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanRatioSample(rows pgx.Rows) (RatioSample, error) {
	var (
		bucket    time.Time
		walStr    string
		suiStr    string
		ratioStr  string
		state     string
		status    string
		errMsg    sql.NullString
		createdAt time.Time
	)

	if err := rows.Scan(
		&bucket,
		&walStr,
		&suiStr,
		&ratioStr,
		&state,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return RatioSample{}, err
	}

	wal, err := decimal.NewFromString(walStr)
	if err != nil {
		return RatioSample{}, fmt.Errorf("parse wal price: %w", err)
	}
	sui, err := decimal.NewFromString(suiStr)
	if err != nil {
		return RatioSample{}, fmt.Errorf("parse sui price: %w", err)
	}
	ratio, err := decimal.NewFromString(ratioStr)
	if err != nil {
		return RatioSample{}, fmt.Errorf("parse ratio: %w", err)
	}

	sample := RatioSample{
		Bucket:    bucket,
		WalPrice:  wal,
		SuiPrice:  sui,
		Ratio:     ratio,
		State:     state,
		Status:    status,
		CreatedAt: createdAt,
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}

	return sample, nil
}

func scanAlert(row pgx.Row) (AlertRecord, error) {
	var (
		rec      AlertRecord
		ratioStr string
		minStr   string
		maxStr   string
	)

	if err := row.Scan(
		&rec.ID,
		&rec.SampleTS,
		&ratioStr,
		&minStr,
		&maxStr,
		&rec.State,
		&rec.Channels,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	rec.Ratio, convErr = decimal.NewFromString(ratioStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse ratio: %w", convErr)
	}
	rec.MinRange, convErr = decimal.NewFromString(minStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse min range: %w", convErr)
	}
	rec.MaxRange, convErr = decimal.NewFromString(maxStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse max range: %w", convErr)
	}

	return rec, nil
}

var _ RatioSampleStore = (*Store)(nil)
var _ AlertStore = (*Store)(nil)
