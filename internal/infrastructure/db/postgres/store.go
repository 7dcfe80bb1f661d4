package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

const identityColumns = `id, email, name, username, password_hash, role, status, active,
	subscription_status, invite_token, invite_expires_at, reset_token, reset_expires_at,
	product_name, product_id, created_at, updated_at, last_login_at, unsubscribed_at`

// Store is the Credential Store backed by the identities table.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewStore(pool *pgxpool.Pool, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{pool: pool, timeout: timeout}
}

type identityRow struct {
	ID                 string     `db:"id"`
	Email              string     `db:"email"`
	Name               string     `db:"name"`
	Username           *string    `db:"username"`
	PasswordHash       *string    `db:"password_hash"`
	Role               string     `db:"role"`
	Status             string     `db:"status"`
	Active             bool       `db:"active"`
	SubscriptionStatus *string    `db:"subscription_status"`
	InviteToken        *string    `db:"invite_token"`
	InviteExpiresAt    *time.Time `db:"invite_expires_at"`
	ResetToken         *string    `db:"reset_token"`
	ResetExpiresAt     *time.Time `db:"reset_expires_at"`
	ProductName        string     `db:"product_name"`
	ProductID          string     `db:"product_id"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	LastLoginAt        *time.Time `db:"last_login_at"`
	UnsubscribedAt     *time.Time `db:"unsubscribed_at"`
}

func (r *identityRow) toDomain() *domain.Identity {
	i := &domain.Identity{
		ID:              r.ID,
		Email:           r.Email,
		Name:            r.Name,
		Username:        r.Username,
		PasswordHash:    r.PasswordHash,
		Role:            domain.Role(r.Role),
		Status:          domain.Status(r.Status),
		Active:          r.Active,
		InviteToken:     r.InviteToken,
		InviteExpiresAt: utc(r.InviteExpiresAt),
		ResetToken:      r.ResetToken,
		ResetExpiresAt:  utc(r.ResetExpiresAt),
		ProductName:     r.ProductName,
		ProductID:       r.ProductID,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		LastLoginAt:     utc(r.LastLoginAt),
		UnsubscribedAt:  utc(r.UnsubscribedAt),
	}
	if r.SubscriptionStatus != nil {
		i.SubscriptionStatus = domain.SubscriptionStatus(*r.SubscriptionStatus)
	}
	return i
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrIdentityNotFound
	}
	return s.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
}

func (s *Store) FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []identityRow
	err := pgxscan.Select(ctx, s.pool, &rows,
		`SELECT `+identityColumns+` FROM identities WHERE email = $1 OR username = $1 LIMIT 2`, identifier)
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	switch len(rows) {
	case 0:
		return nil, domain.ErrIdentityNotFound
	case 1:
		return rows[0].toDomain(), nil
	default:
		return nil, domain.ErrAmbiguousIdentifier
	}
}

func (s *Store) FindByInviteToken(ctx context.Context, token string) (*domain.Identity, error) {
	return s.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE invite_token = $1`, token)
}

func (s *Store) FindByResetToken(ctx context.Context, token string) (*domain.Identity, error) {
	return s.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE reset_token = $1`, token)
}

func (s *Store) List(ctx context.Context) ([]*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []identityRow
	if err := pgxscan.Select(ctx, s.pool, &rows, `SELECT `+identityColumns+` FROM identities ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	out := make([]*domain.Identity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id := identity.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	created := identity.CreatedAt
	if created.IsZero() {
		created = now
	}

	var row identityRow
	err := pgxscan.Get(ctx, s.pool, &row, `
		INSERT INTO identities (
			id, email, name, username, password_hash, role, status, active,
			subscription_status, invite_token, invite_expires_at,
			product_name, product_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+identityColumns,
		id, identity.Email, identity.Name, identity.Username, identity.PasswordHash,
		string(identity.Role), string(identity.Status), identity.Active,
		nullableSubscription(identity.SubscriptionStatus), identity.InviteToken, identity.InviteExpiresAt,
		identity.ProductName, identity.ProductID, created, now,
	)
	if err != nil {
		return nil, mapError("create identity", err)
	}
	return row.toDomain(), nil
}

func (s *Store) Update(ctx context.Context, id string, patch domain.IdentityPatch) (*domain.Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrIdentityNotFound
	}

	set := newSetList()
	if patch.Name != nil {
		set.add("name", *patch.Name)
	}
	if patch.Username != nil {
		if *patch.Username == "" {
			set.raw("username = NULL")
		} else {
			set.add("username", *patch.Username)
		}
	}
	if patch.Role != nil {
		set.add("role", string(*patch.Role))
	}
	if patch.Active != nil {
		set.add("active", *patch.Active)
	}
	if patch.SubscriptionStatus != nil {
		set.add("subscription_status", nullableSubscription(*patch.SubscriptionStatus))
	}
	if patch.UnsubscribedAt != nil {
		set.add("unsubscribed_at", *patch.UnsubscribedAt)
	}
	if patch.ProductName != nil {
		set.add("product_name", *patch.ProductName)
	}
	if patch.ProductID != nil {
		set.add("product_id", *patch.ProductID)
	}
	if patch.PasswordHash != nil {
		set.add("password_hash", *patch.PasswordHash)
		set.raw("status = 'ACTIVE'", "active = TRUE", "invite_token = NULL", "invite_expires_at = NULL")
	}
	set.add("updated_at", time.Now().UTC())

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row identityRow
	query := fmt.Sprintf(`UPDATE identities SET %s WHERE id = $%d RETURNING %s`,
		set.String(), set.next(), identityColumns)
	if err := pgxscan.Get(ctx, s.pool, &row, query, append(set.args, id)...); err != nil {
		return nil, mapError("update identity", err)
	}
	return row.toDomain(), nil
}

// Delete relies on ON DELETE CASCADE to remove owned letters in the same statement.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrIdentityNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return mapError("delete identity", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (s *Store) IssueInviteToken(ctx context.Context, id string, grant domain.TokenGrant, reuseLive bool, now time.Time) (domain.TokenGrant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.TokenGrant{}, domain.ErrIdentityNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := grant
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			status string
			token  *string
			expiry *time.Time
		)
		err := tx.QueryRow(ctx,
			`SELECT status, invite_token, invite_expires_at FROM identities WHERE id = $1 FOR UPDATE`, id,
		).Scan(&status, &token, &expiry)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrIdentityNotFound
		}
		if err != nil {
			return err
		}
		if domain.Status(status) != domain.StatusInvited {
			return domain.ErrNotInvited
		}
		if reuseLive && token != nil && expiry != nil && now.Before(*expiry) {
			result = domain.TokenGrant{Token: *token, ExpiresAt: expiry.UTC()}
			return nil
		}
		_, err = tx.Exec(ctx,
			`UPDATE identities SET invite_token = $2, invite_expires_at = $3, updated_at = $4 WHERE id = $1`,
			id, grant.Token, grant.ExpiresAt, time.Now().UTC())
		return err
	})
	if err != nil {
		return domain.TokenGrant{}, mapError("issue invite token", err)
	}
	return result, nil
}

func (s *Store) ConsumeInviteToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	return s.consume(ctx, "invite_token", "invite_expires_at", "status = 'INVITED'", token, now,
		`UPDATE identities SET password_hash = $2, status = 'ACTIVE', active = TRUE,
			invite_token = NULL, invite_expires_at = NULL, updated_at = $3
		 WHERE id = $1 RETURNING `+identityColumns, passwordHash)
}

func (s *Store) SetResetToken(ctx context.Context, id string, grant domain.TokenGrant) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrIdentityNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET reset_token = $2, reset_expires_at = $3, updated_at = $4 WHERE id = $1`,
		id, grant.Token, grant.ExpiresAt, time.Now().UTC())
	if err != nil {
		return mapError("set reset token", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	return s.consume(ctx, "reset_token", "reset_expires_at", "TRUE", token, now,
		`UPDATE identities SET password_hash = $2, reset_token = NULL, reset_expires_at = NULL, updated_at = $3
		 WHERE id = $1 RETURNING `+identityColumns, passwordHash)
}

func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `UPDATE identities SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return mapError("record login", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// consume locks the row owning token, checks expiry and applies update in
// one transaction. tokenCol, expiryCol and cond are constants supplied by
// callers; rows failing cond are treated as not holding the token.
func (s *Store) consume(ctx context.Context, tokenCol, expiryCol, cond, token string, now time.Time, update, passwordHash string) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row identityRow
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			id     string
			expiry *time.Time
		)
		err := tx.QueryRow(ctx,
			fmt.Sprintf(`SELECT id, %s FROM identities WHERE %s = $1 AND %s FOR UPDATE`, expiryCol, tokenCol, cond), token,
		).Scan(&id, &expiry)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrInvalidToken
		}
		if err != nil {
			return err
		}
		if expiry == nil || !now.Before(*expiry) {
			return domain.ErrExpiredToken
		}
		return pgxscan.Get(ctx, tx, &row, update, id, passwordHash, time.Now().UTC())
	})
	if err != nil {
		return nil, mapError("consume token", err)
	}
	return row.toDomain(), nil
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*domain.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row identityRow
	if err := pgxscan.Get(ctx, s.pool, &row, query, args...); err != nil {
		return nil, mapError("find identity", err)
	}
	return row.toDomain(), nil
}

// mapError translates driver errors into the domain taxonomy. Domain errors
// returned from inside a transaction pass through unchanged.
func mapError(op string, err error) error {
	switch {
	case pgxscan.NotFound(err), errors.Is(err, pgx.ErrNoRows):
		return domain.ErrIdentityNotFound
	case errors.Is(err, domain.ErrIdentityNotFound),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrExpiredToken),
		errors.Is(err, domain.ErrNotInvited):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, domain.ErrConflict)
		case pgCheckViolation:
			return domain.NewValidationError("constraint violated", strings.TrimPrefix(pgErr.ConstraintName, "identities_"))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableSubscription(s domain.SubscriptionStatus) *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// setList accumulates "col = $n" assignments for a dynamic UPDATE.
type setList struct {
	parts []string
	args  []any
}

func newSetList() *setList { return &setList{} }

func (l *setList) add(col string, v any) {
	l.args = append(l.args, v)
	l.parts = append(l.parts, col+" = $"+strconv.Itoa(len(l.args)))
}

func (l *setList) raw(parts ...string) {
	l.parts = append(l.parts, parts...)
}

func (l *setList) next() int { return len(l.args) + 1 }

func (l *setList) String() string { return strings.Join(l.parts, ", ") }
