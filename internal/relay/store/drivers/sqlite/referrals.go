package sqlite

import (
	"context"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
)

type referralsRepo struct {
	db dbtx
}

func (r *referralsRepo) CreateReferral(ctx context.Context, ref domain.Referral) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO referrals (referred_id, referrer_id, created_at) VALUES (?, ?, ?)`,
		ref.ReferredID, ref.ReferrerID, ref.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *referralsRepo) ListReferred(ctx context.Context, referrerID string) ([]domain.User, error) {
	return queryUsers(ctx, r.db, `
		SELECT `+userColumns+`
		FROM referrals f
		JOIN users u ON u.id = f.referred_id
		WHERE f.referrer_id = ?
		ORDER BY f.created_at, u.id`, referrerID)
}
