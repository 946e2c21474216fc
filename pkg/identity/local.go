package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
	"github.com/ethpandaops/portfolioor/pkg/config"
)

// CredentialStore persists email/password logins for the local provider.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *store.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*store.Credential, error)
}

// Compile-time interface check.
var _ Provider = (*Local)(nil)

// Local is a self-contained provider: bcrypt password hashes in the
// database and HS256 ID tokens signed with a shared secret.
type Local struct {
	log    logrus.FieldLogger
	creds  CredentialStore
	secret []byte
	issuer string
	ttl    time.Duration
	verify bool
	now    func() time.Time
}

// NewLocal creates the local provider.
func NewLocal(
	log logrus.FieldLogger,
	cfg *config.LocalAuthConfig,
	verify bool,
	creds CredentialStore,
) *Local {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "portfolioor"
	}

	return &Local{
		log:    log.WithField("component", "identity-local"),
		creds:  creds,
		secret: []byte(cfg.Secret),
		issuer: issuer,
		ttl:    cfg.TokenDuration(),
		verify: verify,
		now:    time.Now,
	}
}

// Name returns "local".
func (l *Local) Name() string {
	return config.AuthProviderLocal
}

// SignUp registers a new email/password login.
func (l *Local) SignUp(
	ctx context.Context, email, password, displayName string,
) (*Principal, error) {
	email = store.NormalizeEmail(email)

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	cred := &store.Credential{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  strings.TrimSpace(displayName),
	}

	if err := l.creds.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrEmailExists
		}

		return nil, fmt.Errorf("storing credential: %w", err)
	}

	l.log.WithField("uid", cred.UID).Info("Registered local credential")

	return l.issue(cred)
}

// SignIn checks an email/password pair and issues a fresh ID token.
func (l *Local) SignIn(
	ctx context.Context, email, password string,
) (*Principal, error) {
	cred, err := l.creds.GetCredentialByEmail(ctx, store.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("looking up credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(cred.PasswordHash), []byte(password),
	); err != nil {
		return nil, ErrInvalidCredentials
	}

	return l.issue(cred)
}

// Verify checks a token issued by this provider.
func (l *Local) Verify(_ context.Context, token string) (*Principal, error) {
	if !l.verify {
		return parseUnverified(token)
	}

	parsed, err := jwt.ParseWithClaims(
		token,
		&Claims{},
		func(*jwt.Token) (any, error) { return l.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(l.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	return claims.principal()
}

func (l *Local) issue(cred *store.Credential) (*Principal, error) {
	now := l.now()

	claims := &Claims{
		Email: cred.Email,
		Name:  cred.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.UID,
			Issuer:    l.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Principal{
		UID:         cred.UID,
		Email:       cred.Email,
		DisplayName: cred.DisplayName,
		Token:       signed,
	}, nil
}
