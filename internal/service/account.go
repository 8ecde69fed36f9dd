// Package service: account business logic.
//
// AccountService sits between the HTTP handlers and everything that touches
// state:
//
//	AccountHandler (HTTP) → AccountService → UserRepository (sqlite)
//	                                       ↘ PasswordHasher (bcrypt)
//	                                       ↘ ImageStore (content directory)
//	                                       ↘ SessionGate (session store)
//
// Both flows are a straight sequence of fallible steps. Each step either
// succeeds or returns, so a later step never runs after an earlier failure.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/account-portal/internal/apperror"
	"github.com/sakif/account-portal/internal/auth"
	"github.com/sakif/account-portal/internal/model"
	"github.com/sakif/account-portal/internal/repository"
	"github.com/sakif/account-portal/internal/upload"
)

// InvalidLoginMessage is shown for every failed login. It does not say
// whether the username or the password was wrong.
const InvalidLoginMessage = "invalid username or password"

// MissingFieldsMessage is shown when a registration form is incomplete.
const MissingFieldsMessage = "please fill all fields and upload an image"

var (
	// ErrUserNotFound and ErrInvalidCredentials tell the two login faults
	// apart for logs and tests. Both are wrapped together with
	// apperror.ErrUnauthorized and carry InvalidLoginMessage.
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// PasswordHasher is satisfied by *auth.PasswordService.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Matches(hash, plaintext string) bool
}

// ImageStore is satisfied by *upload.Intake.
type ImageStore interface {
	Store(ctx context.Context, originalName string, data []byte) (string, error)
	Remove(ctx context.Context, ref string) error
}

// SessionGate is satisfied by *session.Gate.
type SessionGate interface {
	Establish(ctx context.Context, user *model.User) (string, error)
	Authenticate(ctx context.Context, token string) (*model.SessionUser, bool)
	Destroy(ctx context.Context, token string) error
}

// AccountService handles registration, login and logout.
//
// DEPENDENCIES (injected via NewAccountService):
//   - users      repository.UserRepository → read/write user records
//   - passwords  PasswordHasher            → bcrypt digests
//   - images     ImageStore                → profile image files
//   - sessions   SessionGate               → server-side sessions
//   - logger     *slog.Logger              → structured logging
type AccountService struct {
	users     repository.UserRepository
	passwords PasswordHasher
	images    ImageStore
	sessions  SessionGate
	logger    *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
func NewAccountService(
	users repository.UserRepository,
	passwords PasswordHasher,
	images ImageStore,
	sessions SessionGate,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:     users,
		passwords: passwords,
		images:    images,
		sessions:  sessions,
		logger:    logger,
	}
}

// RegisterInput is a submitted registration form.
type RegisterInput struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
	BirthDate string

	ImageName string // client-supplied filename, untrusted
	ImageData []byte
}

// LoginInput is a submitted login form. PreviousToken is the session token
// the client already held, if any; it is destroyed on a successful login.
type LoginInput struct {
	Username      string
	Password      string
	PreviousToken string
}

// LoginResult bundles the logged-in user with the session token so the
// handler can set the cookie and redirect in one step.
type LoginResult struct {
	User  model.SessionUser
	Token string
}

// Register creates a new account.
//
// Steps, in order:
//
//  1. validate every field and the image (no side effects on failure)
//
// Values are taken verbatim: a field counts as missing only when it is
// empty, and the username is stored exactly as submitted, so Login must be
// given the same string. The image may be any non-empty blob; its
// format is sniffed for the log only.
//  2. store the image and obtain its reference
//  3. hash the password
//  4. insert the user record
//
// If step 3 or 4 fails the image from step 2 is removed again, so a
// rejected registration (including a duplicate username) leaves no file
// behind.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	imageRef, err := s.images.Store(ctx, in.ImageName, in.ImageData)
	if err != nil {
		return nil, fmt.Errorf("service/account: storing image: %w", err)
	}
	s.logger.Debug("image stored",
		slog.String("ref", imageRef),
		slog.String("format", imageFormat(in.ImageData)),
	)

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		s.discardImage(ctx, imageRef)
		return nil, fmt.Errorf("service/account: hashing password: %w", err)
	}

	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		BirthDate:    in.BirthDate,
		ImageRef:     imageRef,
	}

	if err := s.users.Create(ctx, user); err != nil {
		s.discardImage(ctx, imageRef)
		return nil, fmt.Errorf("service/account: creating user %q: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login verifies credentials and establishes a session.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if in.Password == "" {
		return nil, apperror.ValidationFailed("password", "password is required")
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("login failed", slog.String("reason", "unknown user"))
			return nil, loginFailed(ErrUserNotFound)
		}
		return nil, fmt.Errorf("service/account: looking up user: %w", err)
	}

	if !s.passwords.Matches(user.PasswordHash, in.Password) {
		s.logger.Info("login failed",
			slog.String("reason", "wrong password"),
			slog.String("username", user.Username),
		)
		return nil, loginFailed(ErrInvalidCredentials)
	}

	if in.PreviousToken != "" {
		if err := s.sessions.Destroy(ctx, in.PreviousToken); err != nil {
			s.logger.Warn("destroying previous session", slog.String("error", err.Error()))
		}
	}

	token, err := s.sessions.Establish(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("service/account: establishing session: %w", err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{
		User:  user.SessionView(),
		Token: token,
	}, nil
}

// Logout destroys the session named by token. A missing or unknown token
// is not an error.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return fmt.Errorf("service/account: destroying session: %w", err)
	}
	return nil
}

// Authenticate returns the user bound to token, if the session is live.
// It is the check RequireSession runs on every protected request.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.SessionUser, bool) {
	return s.sessions.Authenticate(ctx, token)
}

// discardImage rolls back a stored image. It runs even if ctx is already
// cancelled; a failure is only logged.
func (s *AccountService) discardImage(ctx context.Context, ref string) {
	if err := s.images.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Warn("removing orphaned image",
			slog.String("ref", ref),
			slog.String("error", err.Error()),
		)
	}
}

// imageFormat names the decoder that recognises data, or "unknown".
func imageFormat(data []byte) string {
	format, err := upload.DetectFormat(data)
	if err != nil {
		return "unknown"
	}
	return format
}

func loginFailed(reason error) *apperror.AppError {
	return &apperror.AppError{
		Err:     fmt.Errorf("%w: %w", apperror.ErrUnauthorized, reason),
		Message: InvalidLoginMessage,
	}
}

func validateRegistration(in RegisterInput) error {
	required := []struct {
		field string
		value string
	}{
		{"username", in.Username},
		{"password", in.Password},
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"email", in.Email},
		{"birthDate", in.BirthDate},
	}
	for _, r := range required {
		if r.value == "" {
			return apperror.ValidationFailed(r.field, MissingFieldsMessage)
		}
	}

	if len(in.ImageData) == 0 {
		return apperror.ValidationFailed("image", MissingFieldsMessage)
	}

	if len(in.Password) > auth.MaxPasswordBytes {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	return nil
}
