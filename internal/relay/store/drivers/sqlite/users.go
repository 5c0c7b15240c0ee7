package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
)

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `u.id = ?`, id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx, `u.username = ?`, username)
}

func (r *usersRepo) GetUserByInvitationCode(ctx context.Context, code string) (domain.User, error) {
	return r.getOne(ctx, `u.invitation_code = ?`, code)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, role, super_admin, state, district,
			parent_id, state_partner_id, district_partner_id, referred_by,
			invitation_code, is_active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.SuperAdmin, u.State, u.District,
		nullString(u.ParentID), nullString(u.StatePartnerID), nullString(u.DistrictPartnerID), nullString(u.ReferredBy),
		u.InvitationCode, u.IsActive, u.CreatedAt.UTC(),
	)
	if err != nil {
		return mapConstraint(err)
	}

	for _, svc := range u.ConnectedServices {
		if err := joinService(ctx, r.db, u.ID, svc, u.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r *usersRepo) UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`, username, email,
	).Scan(&n)
	return n > 0, err
}

func (r *usersRepo) InvitationCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE invitation_code = ?`, code).Scan(&n)
	return n > 0, err
}

func (r *usersRepo) UpdateConnection(ctx context.Context, id, connectionID string, online bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET connection_id = ?, is_online = ? WHERE id = ?`,
		nullString(connectionID), online, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) ClearConnection(ctx context.Context, id, connectionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET connection_id = NULL, is_online = 0 WHERE id = ? AND connection_id = ?`,
		id, connectionID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *usersRepo) ListOnline(ctx context.Context) ([]store.Presence, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(connection_id, '') FROM users WHERE is_online = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Presence
	for rows.Next() {
		var p store.Presence
		if err := rows.Scan(&p.UserID, &p.ConnectionID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	return err
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return queryUsers(ctx, r.db, `SELECT `+userColumns+` FROM users u ORDER BY u.id`)
}

func (r *usersRepo) ListUsersByState(ctx context.Context, state string) ([]domain.User, error) {
	return queryUsers(ctx, r.db, `SELECT `+userColumns+` FROM users u WHERE u.state = ? ORDER BY u.id`, state)
}

func (r *usersRepo) ListUsersByDistrict(ctx context.Context, district string) ([]domain.User, error) {
	return queryUsers(ctx, r.db, `SELECT `+userColumns+` FROM users u WHERE u.district = ? ORDER BY u.id`, district)
}

func (r *usersRepo) ListUsersByStatePartner(ctx context.Context, statePartnerID string) ([]domain.User, error) {
	return queryUsers(ctx, r.db,
		`SELECT `+userColumns+` FROM users u WHERE u.state_partner_id = ? ORDER BY u.id`, statePartnerID)
}

func (r *usersRepo) ListUsersByDistrictPartner(ctx context.Context, districtPartnerID string) ([]domain.User, error) {
	return queryUsers(ctx, r.db,
		`SELECT `+userColumns+` FROM users u WHERE u.district_partner_id = ? ORDER BY u.id`, districtPartnerID)
}
