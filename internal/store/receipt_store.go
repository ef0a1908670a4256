package store

import (
	"context"
	"fmt"

	"chaincast/internal/domain"
)

// PutReceipt inserts one delivery receipt. Receipts are write-once audit
// records; there is no update path.
func (s *PostgresStore) PutReceipt(ctx context.Context, r *domain.Receipt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO receipts (id, subscription_id, ts, ttl, success, status_code)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.SubscriptionID, r.Timestamp, r.TTL, r.Result.Success, r.Result.StatusCode)
	if err != nil {
		return fmt.Errorf("inserting receipt: %w", err)
	}
	return nil
}

// ListReceipts returns a subscription's most recent receipts.
func (s *PostgresStore) ListReceipts(ctx context.Context, subscriptionID string, limit int) ([]domain.Receipt, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, ts, ttl, success, status_code
		FROM receipts
		WHERE subscription_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying receipts: %w", err)
	}
	defer rows.Close()

	var receipts []domain.Receipt
	for rows.Next() {
		var r domain.Receipt
		err := rows.Scan(
			&r.ID, &r.SubscriptionID, &r.Timestamp, &r.TTL,
			&r.Result.Success, &r.Result.StatusCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning receipt: %w", err)
		}
		receipts = append(receipts, r)
	}

	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	return receipts, nil
}

// PurgeExpiredReceipts deletes receipts past their TTL. Run periodically;
// the TTL is advisory until this sweeps.
func (s *PostgresStore) PurgeExpiredReceipts(ctx context.Context, now int64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM receipts WHERE ttl < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purging receipts: %w", err)
	}
	return tag.RowsAffected(), nil
}
