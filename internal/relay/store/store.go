package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories so a transaction hands out the same repos bound to itself.
type Store interface {
	Users() Users
	Referrals() Referrals
	Services() Services
	Messages() Messages

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller MUST Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing iff fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Presence is the persisted connection state of one user.
type Presence struct {
	UserID       string
	ConnectionID string
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByInvitationCode(ctx context.Context, code string) (domain.User, error)

	// CreateUser inserts u. A duplicate username, email or invitation code
	// returns ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	CountUsers(ctx context.Context) (int, error)
	UsernameOrEmailTaken(ctx context.Context, username, email string) (bool, error)
	InvitationCodeExists(ctx context.Context, code string) (bool, error)

	// UpdateConnection atomically sets connection_id and is_online together.
	UpdateConnection(ctx context.Context, id, connectionID string, online bool) error

	// ClearConnection marks the user offline only while connectionID is the
	// stored connection id. It reports whether a row changed.
	ClearConnection(ctx context.Context, id, connectionID string) (bool, error)

	// ListOnline returns every user persisted as online.
	ListOnline(ctx context.Context) ([]Presence, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	ListUsers(ctx context.Context) ([]domain.User, error)
	ListUsersByState(ctx context.Context, state string) ([]domain.User, error)
	ListUsersByDistrict(ctx context.Context, district string) ([]domain.User, error)
	ListUsersByStatePartner(ctx context.Context, statePartnerID string) ([]domain.User, error)
	ListUsersByDistrictPartner(ctx context.Context, districtPartnerID string) ([]domain.User, error)
}

type Referrals interface {
	CreateReferral(ctx context.Context, r domain.Referral) error

	// ListReferred returns the users registered with referrerID's code,
	// oldest first.
	ListReferred(ctx context.Context, referrerID string) ([]domain.User, error)
}

type Services interface {
	// Join and Leave are idempotent.
	Join(ctx context.Context, userID, serviceID string) error
	Leave(ctx context.Context, userID, serviceID string) error

	// ListPeers returns every other user sharing at least one service with
	// userID.
	ListPeers(ctx context.Context, userID string) ([]domain.User, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, m domain.Message) error
	GetMessage(ctx context.Context, id string) (domain.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) error

	// Conversation returns the messages exchanged between a and b in
	// ascending time order, optionally restricted to one service.
	Conversation(ctx context.Context, a, b, serviceID string) ([]domain.Message, error)

	// Unread returns messages addressed to userID not yet marked read.
	Unread(ctx context.Context, userID string) ([]domain.Message, error)
}
