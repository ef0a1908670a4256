package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"chaincast/internal/domain"
)

// CreateSubscription persists a fully-populated subscription. The caller
// supplies id, secret, and transport handle; filters are stored as JSONB.
func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	filtersJSON, err := json.Marshal(sub.Filters)
	if err != nil {
		return fmt.Errorf("marshaling filters: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (id, owner, name, description, kind, status, webhook_url, secret, filters, transport_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, sub.ID, sub.Owner, sub.Name, sub.Description, sub.Kind, sub.Status,
		sub.WebhookURL, sub.Secret, filtersJSON, sub.TransportHandle,
	).Scan(&sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.querySubscription(ctx, `
		SELECT id, owner, name, description, kind, status, webhook_url, secret, filters, transport_handle, created_at
		FROM subscriptions WHERE id = $1
	`, id)
}

// GetSubscriptionByTransportHandle resolves the subscription bound to a
// transport-level handle, the lookup the delivery path uses.
func (s *PostgresStore) GetSubscriptionByTransportHandle(ctx context.Context, handle string) (*domain.Subscription, error) {
	return s.querySubscription(ctx, `
		SELECT id, owner, name, description, kind, status, webhook_url, secret, filters, transport_handle, created_at
		FROM subscriptions WHERE transport_handle = $1
	`, handle)
}

func (s *PostgresStore) querySubscription(ctx context.Context, query string, arg any) (*domain.Subscription, error) {
	var sub domain.Subscription
	var filtersJSON []byte

	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&sub.ID, &sub.Owner, &sub.Name, &sub.Description, &sub.Kind, &sub.Status,
		&sub.WebhookURL, &sub.Secret, &filtersJSON, &sub.TransportHandle, &sub.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}

	if err := json.Unmarshal(filtersJSON, &sub.Filters); err != nil {
		return nil, fmt.Errorf("unmarshaling filters: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, owner string) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner, name, description, kind, status, webhook_url, filters, transport_handle, created_at
		FROM subscriptions
		WHERE owner = $1
		ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		var filtersJSON []byte
		err := rows.Scan(
			&sub.ID, &sub.Owner, &sub.Name, &sub.Description, &sub.Kind, &sub.Status,
			&sub.WebhookURL, &filtersJSON, &sub.TransportHandle, &sub.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		if err := json.Unmarshal(filtersJSON, &sub.Filters); err != nil {
			return nil, fmt.Errorf("unmarshaling filters: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}
	return subs, nil
}

// UpdateSubscriptionStatus flips a subscription's status. Deactivation
// also clears the transport handle: a deactivated subscription must not
// retain a usable binding. The update is idempotent.
func (s *PostgresStore) UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) error {
	query := `UPDATE subscriptions SET status = $2 WHERE id = $1`
	if status == domain.StatusDeactivated {
		query = `UPDATE subscriptions SET status = $2, transport_handle = '' WHERE id = $1`
	}

	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s not found", id)
	}
	return nil
}

// GenerateSecret returns a 64-character hex shared secret. It is shown to
// the owner once at creation and never re-derivable afterwards.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
