package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
)

type servicesRepo struct {
	db dbtx
}

func joinService(ctx context.Context, db dbtx, userID, serviceID string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO user_services (user_id, service_id, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, service_id) DO NOTHING`,
		userID, serviceID, at.UTC(),
	)
	return err
}

func (r *servicesRepo) Join(ctx context.Context, userID, serviceID string) error {
	return joinService(ctx, r.db, userID, serviceID, time.Now())
}

func (r *servicesRepo) Leave(ctx context.Context, userID, serviceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_services WHERE user_id = ? AND service_id = ?`, userID, serviceID)
	return err
}

func (r *servicesRepo) ListPeers(ctx context.Context, userID string) ([]domain.User, error) {
	return queryUsers(ctx, r.db, `
		SELECT `+userColumns+`
		FROM users u
		WHERE u.id <> ?1 AND EXISTS (
			SELECT 1
			FROM user_services mine
			JOIN user_services theirs ON theirs.service_id = mine.service_id
			WHERE mine.user_id = ?1 AND theirs.user_id = u.id
		)
		ORDER BY u.id`, userID)
}
