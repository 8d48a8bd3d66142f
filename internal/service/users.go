package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/apperr"
	"github.com/iliyamo/game-tracker/internal/model"
	"github.com/iliyamo/game-tracker/internal/repository"
	"github.com/iliyamo/game-tracker/internal/utils"
)

// VerificationTTL is how long an email verification code stays valid.
const VerificationTTL = 24 * time.Hour

// VerificationNotifier delivers verification codes. Delivery may be
// asynchronous; an error only means the message could not be handed off.
type VerificationNotifier interface {
	SendVerification(ctx context.Context, email, username, code string) error
}

// UserService is the credential store: it owns user records, password
// hashing and the email verification workflow.
type UserService struct {
	store      UserStore
	notifier   VerificationNotifier
	bcryptCost int
	now        func() time.Time
}

func NewUserService(store UserStore, notifier VerificationNotifier, bcryptCost int, now func() time.Time) *UserService {
	return &UserService{store: store, notifier: notifier, bcryptCost: bcryptCost, now: clockOrDefault(now)}
}

// RegisterInput is the payload of Register.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates an unverified account and sends its verification code.
// A failed hand-off to the notifier is logged; the user can request a
// resend.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (model.UserProfile, error) {
	return s.create(ctx, in, model.RoleUser)
}

// Create is the admin variant of Register: the caller picks the role. The
// account still has to verify its email before a password login.
func (s *UserService) Create(ctx context.Context, actor Actor, in RegisterInput, role model.Role) (model.UserProfile, error) {
	if !actor.IsAdmin() {
		return model.UserProfile{}, apperr.ErrForbidden
	}
	if role == "" {
		role = model.RoleUser
	}
	if !role.Valid() {
		return model.UserProfile{}, apperr.ErrValidation
	}
	return s.create(ctx, in, role)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, role model.Role) (model.UserProfile, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.store.GetByUsername(ctx, username); err == nil {
		return model.UserProfile{}, apperr.ErrUsernameExists
	} else if err = notFound(err, nil); err != nil {
		return model.UserProfile{}, err
	}
	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return model.UserProfile{}, apperr.ErrEmailExists
	} else if err = notFound(err, nil); err != nil {
		return model.UserProfile{}, err
	}

	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}
	code, expiry, err := s.newCode()
	if err != nil {
		return model.UserProfile{}, err
	}
	u := model.User{
		Username:               username,
		Email:                  email,
		PasswordHash:           hash,
		Role:                   role,
		VerificationCode:       &code,
		VerificationCodeExpiry: &expiry,
	}
	id, err := s.store.Create(ctx, u)
	if err != nil {
		return model.UserProfile{}, duplicateUserErr(err)
	}
	u.ID = id
	log.Ctx(ctx).Info().Uint64("user_id", id).Str("username", username).Str("role", string(role)).Msg("user registered")
	s.notify(ctx, u, code)
	return s.Profile(ctx, u), nil
}

// VerifyEmail confirms the account owning email with code.
func (s *UserService) VerifyEmail(ctx context.Context, email, code string) error {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return apperr.ErrEmailAlreadyVerified
	}
	if u.VerificationCode == nil || u.VerificationCodeExpiry == nil {
		return apperr.ErrInvalidVerification
	}
	if s.now().After(*u.VerificationCodeExpiry) {
		return apperr.ErrVerificationExpired
	}
	if *u.VerificationCode != strings.TrimSpace(code) {
		return apperr.ErrInvalidVerification
	}
	if err := s.store.SetVerification(ctx, u.ID, true, nil, nil); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Uint64("user_id", u.ID).Msg("email verified")
	return nil
}

// ResendVerification issues a fresh code for an unverified account.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return apperr.ErrEmailAlreadyVerified
	}
	code, expiry, err := s.newCode()
	if err != nil {
		return err
	}
	if err := s.store.SetVerification(ctx, u.ID, false, &code, &expiry); err != nil {
		return err
	}
	s.notify(ctx, u, code)
	return nil
}

func (s *UserService) newCode() (string, time.Time, error) {
	code, err := utils.VerificationCode()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification code: %w", err)
	}
	return code, s.now().UTC().Add(VerificationTTL), nil
}

func (s *UserService) notify(ctx context.Context, u model.User, code string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendVerification(ctx, u.Email, u.Username, code); err != nil {
		log.Ctx(ctx).Warn().Err(err).Uint64("user_id", u.ID).Msg("verification mail not queued")
	}
}

// FindByID loads a user or fails with apperr.ErrUserNotFound.
func (s *UserService) FindByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.store.GetByID(ctx, id)
	return u, notFound(err, apperr.ErrUserNotFound)
}

// FindByUsername loads a user or fails with apperr.ErrUserNotFound.
func (s *UserService) FindByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := s.store.GetByUsername(ctx, strings.TrimSpace(username))
	return u, notFound(err, apperr.ErrUserNotFound)
}

// FindByEmail loads a user or fails with apperr.ErrUserNotFound.
func (s *UserService) FindByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	return u, notFound(err, apperr.ErrUserNotFound)
}

// FindBySteamID loads the user linked to steamID or fails with
// apperr.ErrUserNotFound.
func (s *UserService) FindBySteamID(ctx context.Context, steamID string) (model.User, error) {
	u, err := s.store.GetBySteamID(ctx, steamID)
	return u, notFound(err, apperr.ErrUserNotFound)
}

// CheckPassword verifies plain against the user's hash. A nil user still
// costs one bcrypt comparison.
func (s *UserService) CheckPassword(u *model.User, plain string) bool {
	if u == nil {
		utils.BurnPasswordCheck(plain)
		return false
	}
	return utils.VerifyPassword(u.PasswordHash, plain)
}

// CreateSteamUser creates the account for a first Steam login. The
// password is the hash of a random uuid nobody knows. If a concurrent
// login created the user first, that user is returned. When steam_<id> is
// already taken by an unrelated account a random suffix is appended.
func (s *UserService) CreateSteamUser(ctx context.Context, identity model.SteamIdentity) (model.User, error) {
	hash, err := utils.HashPassword(uuid.NewString(), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	sid := identity.SteamID
	u := model.User{
		Username:     "steam_" + sid,
		PasswordHash: hash,
		Role:         model.RoleUser,
		SteamID:      &sid,
	}
	for attempt := 0; ; attempt++ {
		id, err := s.store.CreateWithSteam(ctx, u, identity)
		if err == nil {
			return s.FindByID(ctx, id)
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, err
		}
		existing, ferr := s.FindBySteamID(ctx, sid)
		if ferr == nil {
			return existing, nil
		}
		if !errors.Is(ferr, apperr.ErrUserNotFound) || attempt >= 2 {
			return model.User{}, fmt.Errorf("create steam user %s: %w", sid, err)
		}
		u.Username = "steam_" + sid + "_" + uuid.NewString()[:8]
		log.Ctx(ctx).Warn().Str("steam_id", sid).Str("username", u.Username).Msg("steam username taken; using suffixed name")
	}
}

// Profile builds the public view of u, attaching the Steam identity when
// one is linked.
func (s *UserService) Profile(ctx context.Context, u model.User) model.UserProfile {
	p := model.UserProfile{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
	}
	if u.HasSteam() {
		id, err := s.store.GetSteamIdentity(ctx, *u.SteamID)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Uint64("user_id", u.ID).Msg("steam identity lookup failed")
		} else {
			p.Steam = &id
		}
	}
	return p
}

// Get returns the profile of user id.
func (s *UserService) Get(ctx context.Context, id uint64) (model.UserProfile, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	return s.Profile(ctx, u), nil
}

// List returns one page of profiles.
func (s *UserService) List(ctx context.Context, page, size int) ([]model.UserProfile, error) {
	limit, offset, _ := pageBounds(page, size, 100)
	users, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]model.UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, s.Profile(ctx, u))
	}
	return out, nil
}

// UpdateUserInput carries optional changes; nil fields are left alone.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Password *string
	Role     *model.Role
}

// Update applies in to user id. Users may edit themselves; admins may edit
// anyone and are the only ones allowed to change a role.
func (s *UserService) Update(ctx context.Context, actor Actor, id uint64, in UpdateUserInput) (model.UserProfile, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return model.UserProfile{}, apperr.ErrForbidden
	}
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	if in.Username != nil {
		u.Username = strings.TrimSpace(*in.Username)
	}
	if in.Email != nil {
		u.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Password != nil {
		if u.PasswordHash, err = utils.HashPassword(*in.Password, s.bcryptCost); err != nil {
			return model.UserProfile{}, fmt.Errorf("hash password: %w", err)
		}
	}
	if in.Role != nil && *in.Role != u.Role {
		if !actor.IsAdmin() {
			return model.UserProfile{}, apperr.ErrForbidden
		}
		if !in.Role.Valid() {
			return model.UserProfile{}, apperr.ErrValidation
		}
		u.Role = *in.Role
	}
	if err := s.store.Update(ctx, u); err != nil {
		return model.UserProfile{}, duplicateUserErr(notFound(err, apperr.ErrUserNotFound))
	}
	return s.Profile(ctx, u), nil
}

// Delete removes user id.
func (s *UserService) Delete(ctx context.Context, id uint64) error {
	return notFound(s.store.Delete(ctx, id), apperr.ErrUserNotFound)
}

// SeedDevUsers creates the verified "test" and "admin" accounts when they
// do not exist yet. It is only called in the dev environment.
func (s *UserService) SeedDevUsers(ctx context.Context) error {
	seeds := []struct {
		username, email, password string
		role                      model.Role
	}{
		{"test", "test@example.com", "password", model.RoleUser},
		{"admin", "admin@example.com", "admin", model.RoleAdmin},
	}
	for _, sd := range seeds {
		if _, err := s.store.GetByUsername(ctx, sd.username); err == nil {
			continue
		}
		hash, err := utils.HashPassword(sd.password, s.bcryptCost)
		if err != nil {
			return err
		}
		_, err = s.store.Create(ctx, model.User{
			Username: sd.username, Email: sd.email, PasswordHash: hash, EmailVerified: true, Role: sd.role,
		})
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("seed %s: %w", sd.username, err)
		}
		log.Ctx(ctx).Info().Str("username", sd.username).Msg("seeded dev user")
	}
	return nil
}

func duplicateUserErr(err error) error {
	var de *repository.DuplicateError
	if !errors.As(err, &de) {
		return err
	}
	if strings.Contains(de.Key, "email") {
		return apperr.ErrEmailExists
	}
	return apperr.ErrUsernameExists
}
