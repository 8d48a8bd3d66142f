package model

import "time"

// Role is the authorization role stored on users.role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

// Authorities returns the authorization scopes granted by the role. The
// slice is embedded in access tokens at issuance time.
func (r Role) Authorities() []string {
	if r == "" {
		r = RoleUser
	}
	return []string{"ROLE_" + string(r)}
}

// User represents an application account as stored in the `users`
// table. Accounts created through Steam login have no email and a random
// password hash that can never be matched.
//
// Fields:
//
//	ID                     – primary key identifier.
//	Username               – unique login name.
//	Email                  – unique email address; empty for Steam-only accounts.
//	PasswordHash           – bcrypt hash.
//	EmailVerified          – whether the verification code was confirmed.
//	VerificationCode       – pending 6 digit code (nil once verified).
//	VerificationCodeExpiry – when the pending code stops being accepted.
//	Role                   – USER or ADMIN.
//	SteamID                – linked Steam identity (nullable foreign key).
type User struct {
	ID                     uint64     // users.id
	Username               string     // users.username
	Email                  string     // users.email (nullable)
	PasswordHash           string     // users.password_hash
	EmailVerified          bool       // users.email_verified
	VerificationCode       *string    // users.verification_code (nullable)
	VerificationCodeExpiry *time.Time // users.verification_code_expiry (nullable)
	Role                   Role       // users.role
	SteamID                *string    // users.steam_id (nullable)
	CreatedAt              time.Time  // users.created_at
	UpdatedAt              time.Time  // users.updated_at
}

// HasSteam reports whether a Steam identity is linked to the user.
func (u User) HasSteam() bool { return u.SteamID != nil && *u.SteamID != "" }

// SteamIdentity mirrors the `steam_identities` table. The row is fetched
// from Steam's profile API when the account is linked and is not re-synced.
type SteamIdentity struct {
	SteamID     string `json:"steam_id"`     // steam_identities.steam_id
	PersonaName string `json:"persona_name"` // steam_identities.persona_name
	ProfileURL  string `json:"profile_url"`  // steam_identities.profile_url
	AvatarURL   string `json:"avatar_url"`   // steam_identities.avatar_url
}

// UserProfile is the public view of a user. It never carries the
// password hash or verification data.
type UserProfile struct {
	ID            uint64         `json:"id"`
	Username      string         `json:"username"`
	Email         string         `json:"email,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Role          Role           `json:"role"`
	Steam         *SteamIdentity `json:"steam_user,omitempty"`
}
