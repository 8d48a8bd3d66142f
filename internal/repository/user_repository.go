package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/game-tracker/internal/model"
)

const userColumns = `u.id, u.username, u.email, u.password_hash, u.email_verified,
	u.verification_code, u.verification_code_expiry, u.role, u.steam_id, u.created_at, u.updated_at`

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (model.User, error) {
	var (
		u       model.User
		email   sql.NullString
		code    sql.NullString
		expiry  sql.NullTime
		steamID sql.NullString
		role    string
	)
	err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.EmailVerified,
		&code, &expiry, &role, &steamID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	u.Email = email.String
	u.Role = model.Role(role)
	if code.Valid {
		u.VerificationCode = &code.String
	}
	if expiry.Valid {
		u.VerificationCodeExpiry = &expiry.Time
	}
	if steamID.Valid {
		u.SteamID = &steamID.String
	}
	return u, nil
}

// Create inserts u and returns its id. Username and email collisions
// return a *DuplicateError naming the key.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	return createUser(ctx, r.DB, u)
}

func createUser(ctx context.Context, db execer, u model.User) (uint64, error) {
	role := u.Role
	if role == "" {
		role = model.RoleUser
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, email_verified, verification_code, verification_code_expiry, role, steam_id)
		 VALUES (?,?,?,?,?,?,?,?)`,
		u.Username, nullString(strings.ToLower(strings.TrimSpace(u.Email))), u.PasswordHash, u.EmailVerified,
		u.VerificationCode, u.VerificationCodeExpiry, string(role), u.SteamID)
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// CreateWithSteam stores the Steam identity and a user linked to it in
// one transaction.
func (r *UserRepo) CreateWithSteam(ctx context.Context, u model.User, id model.SteamIdentity) (uint64, error) {
	var uid uint64
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := upsertSteamIdentity(ctx, tx, id); err != nil {
			return err
		}
		sid := id.SteamID
		u.SteamID = &sid
		var err error
		uid, err = createUser(ctx, tx, u)
		return err
	})
	return uid, err
}

func upsertSteamIdentity(ctx context.Context, tx *sql.Tx, id model.SteamIdentity) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO steam_identities (steam_id, persona_name, profile_url, avatar_url) VALUES (?,?,?,?)
		 ON DUPLICATE KEY UPDATE persona_name=VALUES(persona_name), profile_url=VALUES(profile_url), avatar_url=VALUES(avatar_url)`,
		id.SteamID, id.PersonaName, id.ProfileURL, id.AvatarURL)
	return err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=? LIMIT 1`, id))
}

// GetByUsername fetches a user by exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.username=? LIMIT 1`, username))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email=? LIMIT 1`, email))
}

// GetBySteamID fetches the user linked to a Steam id.
func (r *UserRepo) GetBySteamID(ctx context.Context, steamID string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.steam_id=? LIMIT 1`, steamID))
}

// GetSteamIdentity fetches a stored Steam identity.
func (r *UserRepo) GetSteamIdentity(ctx context.Context, steamID string) (model.SteamIdentity, error) {
	var s model.SteamIdentity
	err := r.DB.QueryRowContext(ctx,
		`SELECT steam_id, persona_name, profile_url, avatar_url FROM steam_identities WHERE steam_id=? LIMIT 1`,
		steamID).Scan(&s.SteamID, &s.PersonaName, &s.ProfileURL, &s.AvatarURL)
	return s, err
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users u ORDER BY u.id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update writes the mutable account fields of u.
func (r *UserRepo) Update(ctx context.Context, u model.User) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET username=?, email=?, password_hash=?, role=? WHERE id=?`,
		u.Username, nullString(strings.ToLower(strings.TrimSpace(u.Email))), u.PasswordHash, string(u.Role), u.ID)
	if err != nil {
		return classify(err)
	}
	return requireAffected(res)
}

// SetVerification stores the verification state. A nil code clears the
// pending code and its expiry.
func (r *UserRepo) SetVerification(ctx context.Context, userID uint64, verified bool, code *string, expiry *time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email_verified=?, verification_code=?, verification_code_expiry=? WHERE id=?`,
		verified, code, expiry, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes a user. Instances and reviews go with it.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// requireAffected maps a statement that matched no row to sql.ErrNoRows.
// The DSN sets clientFoundRows so unchanged updates still count.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
