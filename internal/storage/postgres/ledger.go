package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

const (
	entryColumns = `id, bundle_id, tracking_number, label_url, carrier, service, cost,
		order_ids, outcome, failed_order_ids, weight, dimensions, created_at`

	// A repair of a recorded label refreshes its outcome but keeps the
	// purchase details it cannot know.
	recordEntrySQL = `INSERT INTO bundle_labels (` + entryColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (bundle_id, tracking_number) DO UPDATE SET
			label_url        = COALESCE(NULLIF(EXCLUDED.label_url, ''), bundle_labels.label_url),
			carrier          = COALESCE(NULLIF(EXCLUDED.carrier, ''), bundle_labels.carrier),
			service          = COALESCE(NULLIF(EXCLUDED.service, ''), bundle_labels.service),
			cost             = CASE WHEN EXCLUDED.cost = 0 THEN bundle_labels.cost ELSE EXCLUDED.cost END,
			weight           = COALESCE(NULLIF(EXCLUDED.weight, ''), bundle_labels.weight),
			dimensions       = COALESCE(NULLIF(EXCLUDED.dimensions, ''), bundle_labels.dimensions),
			order_ids        = EXCLUDED.order_ids,
			outcome          = EXCLUDED.outcome,
			failed_order_ids = EXCLUDED.failed_order_ids,
			updated_at       = EXCLUDED.updated_at`

	latestEntrySQL = `SELECT ` + entryColumns + ` FROM bundle_labels
		WHERE bundle_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`

	listBundleIDsSQL = `SELECT DISTINCT bundle_id FROM bundle_labels`

	entriesSinceSQL = `SELECT ` + entryColumns + ` FROM bundle_labels
		WHERE created_at >= $1 ORDER BY created_at, id`
)

var _ bundle.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements bundle.Ledger backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Record inserts the entry, or refreshes the existing row for the same
// bundle and tracking number.
func (r *LedgerRepository) Record(ctx context.Context, e bundle.Entry) error {
	failed := e.FailedOrders
	if failed == nil {
		failed = []string{}
	}
	_, err := r.pool.Exec(ctx, recordEntrySQL,
		e.ID, string(e.BundleID), e.TrackingNumber, e.LabelURL, e.Carrier, e.Service, e.Cost,
		e.OrderIDs, string(e.Outcome), failed, e.Weight, e.Dimensions, e.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "record label %s of %s", e.TrackingNumber, e.BundleID)
	}
	return nil
}

// Latest returns the most recently created entry of a bundle.
func (r *LedgerRepository) Latest(ctx context.Context, id bundle.ID) (*bundle.Entry, error) {
	rows, err := r.pool.Query(ctx, latestEntrySQL, string(id))
	if err != nil {
		return nil, errors.Wrapf(err, "query bundle %s", id)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bundle.ErrEntryNotFound
		}
		return nil, errors.Wrapf(err, "scan bundle %s", id)
	}
	return &e, nil
}

// ListBundleIDs returns every bundle id that has a recorded label.
func (r *LedgerRepository) ListBundleIDs(ctx context.Context) ([]bundle.ID, error) {
	rows, err := r.pool.Query(ctx, listBundleIDsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "query bundle ids")
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (bundle.ID, error) {
		var id string
		err := row.Scan(&id)
		return bundle.ID(id), err
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan bundle ids")
	}
	return ids, nil
}

// Each streams entries created at or after since, oldest first, until fn
// returns an error.
func (r *LedgerRepository) Each(ctx context.Context, since time.Time, fn func(bundle.Entry) error) error {
	rows, err := r.pool.Query(ctx, entriesSinceSQL, since)
	if err != nil {
		return errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return errors.Wrap(err, "scan entry")
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return errors.Wrap(rows.Err(), "iterate entries")
}

func scanEntry(row pgx.CollectableRow) (bundle.Entry, error) {
	var (
		e        bundle.Entry
		bundleID string
		outcome  string
	)
	err := row.Scan(
		&e.ID, &bundleID, &e.TrackingNumber, &e.LabelURL, &e.Carrier, &e.Service, &e.Cost,
		&e.OrderIDs, &outcome, &e.FailedOrders, &e.Weight, &e.Dimensions, &e.CreatedAt,
	)
	e.BundleID = bundle.ID(bundleID)
	e.Outcome = bundle.Outcome(outcome)
	return e, err
}
