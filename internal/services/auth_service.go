package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/repositories"
	"github.com/prudhvinik1/storefront/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingFields      = errors.New("email and password are required")
)

type AuthService struct {
	accountRepo    repositories.AccountRepository
	credentialRepo repositories.CredentialRepository
	jwtSecret      string
	jwtExpiry      time.Duration
	bcryptCost     int
	now            func() time.Time
}

// Identity is the result of a successful authentication.
type Identity struct {
	UserID     string
	Credential string
	ExpiresAt  time.Time
}

type TokenClaims struct {
	AccountID    uuid.UUID
	CredentialID string
	ExpiresAt    time.Time
}

func NewAuthService(
	accountRepo repositories.AccountRepository,
	credentialRepo repositories.CredentialRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
	bcryptCost int,
) *AuthService {
	return &AuthService{
		accountRepo:    accountRepo,
		credentialRepo: credentialRepo,
		jwtSecret:      jwtSecret,
		jwtExpiry:      jwtExpiry,
		bcryptCost:     bcryptCost,
		now:            time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return ErrMissingFields
	}

	// Check if email already exists
	existing, err := s.accountRepo.GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return ErrEmailExists
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		if utils.IsWeakPassword(err) {
			return err
		}
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		Email:        email,
		PasswordHash: hashedPassword,
	}
	err = s.accountRepo.Create(ctx, account)
	if errors.Is(err, repositories.ErrDuplicate) {
		return ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// Authenticate checks email/password and issues a revocable bearer credential.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	account, err := s.accountRepo.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !utils.CheckPassword(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	credential := &models.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.jwtExpiry),
		CreatedAt: now,
	}
	if err := s.credentialRepo.Create(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	token, err := s.generateToken(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &Identity{
		UserID:     account.ID.String(),
		Credential: token,
		ExpiresAt:  credential.ExpiresAt,
	}, nil
}

func (s *AuthService) generateToken(credential *models.Session) (string, error) {
	claims := jwt.MapClaims{
		"sub": credential.AccountID.String(),
		"jti": credential.ID,
		"exp": credential.ExpiresAt.Unix(),
		"iat": credential.CreatedAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken checks the signature and expiry of a bearer token. It does not
// consult the credential store; use Authorize for that.
func (s *AuthService) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	accountIDStr, err := claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	accountID, err := uuid.Parse(accountIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	credentialID, ok := claims["jti"].(string)
	if !ok || credentialID == "" {
		return nil, ErrInvalidToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}

	return &TokenClaims{
		AccountID:    accountID,
		CredentialID: credentialID,
		ExpiresAt:    exp.Time,
	}, nil
}

// Authorize verifies the token, that its credential has not been revoked and
// that its account still exists.
func (s *AuthService) Authorize(ctx context.Context, tokenString string) (*TokenClaims, error) {
	claims, _, err := s.authorize(ctx, tokenString)
	return claims, err
}

func (s *AuthService) authorize(ctx context.Context, tokenString string) (*TokenClaims, *models.Account, error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}

	_, err = s.credentialRepo.GetByID(ctx, claims.CredentialID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get credential: %w", err)
	}

	account, err := s.accountRepo.GetByID(ctx, claims.AccountID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, ErrInvalidToken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get account: %w", err)
	}
	return claims, account, nil
}

// ChangePassword replaces the password after checking the current one. The
// account's other credentials are revoked; the caller's stays valid.
func (s *AuthService) ChangePassword(ctx context.Context, tokenString, current, next string) error {
	if current == "" || next == "" {
		return ErrMissingFields
	}

	claims, account, err := s.authorize(ctx, tokenString)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(account.PasswordHash, current) {
		return ErrInvalidCredentials
	}

	hashedPassword, err := utils.HashPassword(next, s.bcryptCost)
	if err != nil {
		if utils.IsWeakPassword(err) {
			return err
		}
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.accountRepo.UpdatePassword(ctx, account.ID, hashedPassword)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	credentials, err := s.credentialRepo.ListByAccountID(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	var errs []error
	for _, c := range credentials {
		if c.ID == claims.CredentialID {
			continue
		}
		if err := s.credentialRepo.Delete(ctx, c.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to revoke credentials: %w", err)
	}
	return nil
}

// DeleteAccount soft-deletes the token's account and revokes all of its
// credentials.
func (s *AuthService) DeleteAccount(ctx context.Context, tokenString string) error {
	claims, err := s.Authorize(ctx, tokenString)
	if err != nil {
		return err
	}

	err = s.accountRepo.Delete(ctx, claims.AccountID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if err := s.credentialRepo.DeleteAllForAccount(ctx, claims.AccountID); err != nil {
		return fmt.Errorf("failed to revoke all credentials: %w", err)
	}
	return nil
}

// SignOut revokes the credential. Signing out an expired, revoked or
// unparsable credential is a no-op so the call can be repeated safely.
func (s *AuthService) SignOut(ctx context.Context, tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil
	}

	err = s.credentialRepo.Delete(ctx, claims.CredentialID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}
	return nil
}

// SignOutAll revokes every credential of the token's account.
func (s *AuthService) SignOutAll(ctx context.Context, tokenString string) error {
	claims, err := s.Authorize(ctx, tokenString)
	if err != nil {
		return err
	}

	if err := s.credentialRepo.DeleteAllForAccount(ctx, claims.AccountID); err != nil {
		return fmt.Errorf("failed to revoke all credentials: %w", err)
	}
	return nil
}

// AuthErrorMessage turns identity errors into text fit for the user.
func AuthErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingFields):
		return "Please fill in all fields"
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect email or password"
	case errors.Is(err, ErrEmailExists):
		return "Email is already registered"
	case utils.IsWeakPassword(err):
		return "Password should be at least 6 characters"
	case errors.Is(err, ErrInvalidToken):
		return "Your session is no longer valid. Please log in again"
	case errors.Is(err, context.DeadlineExceeded):
		return "Network error. Please check your connection"
	default:
		return "An unexpected error occurred"
	}
}
