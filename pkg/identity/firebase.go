package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/portfolioor/pkg/config"
)

const (
	firebaseHTTPTimeout = 10 * time.Second
	firebaseIssuerBase  = "https://securetoken.google.com/"
)

// Compile-time interface check.
var _ Provider = (*Firebase)(nil)

// Firebase authenticates against the Firebase Identity Toolkit REST API and
// verifies Firebase ID tokens against Google's published signing keys.
type Firebase struct {
	log        logrus.FieldLogger
	baseURL    string
	apiKey     string
	projectID  string
	verify     bool
	keys       keyfunc.Keyfunc
	httpClient *http.Client
}

// FirebaseOption configures a Firebase provider.
type FirebaseOption func(*Firebase)

// WithKeyfunc supplies the token signing keys instead of fetching them
// from the configured JWKS URL.
func WithKeyfunc(k keyfunc.Keyfunc) FirebaseOption {
	return func(f *Firebase) {
		f.keys = k
	}
}

// NewFirebase creates the Firebase provider. When verification is enabled
// and no keys were supplied, the JWKS is fetched (and kept refreshed in
// the background) from cfg.JWKSURL.
func NewFirebase(
	ctx context.Context,
	log logrus.FieldLogger,
	cfg *config.FirebaseAuthConfig,
	verify bool,
	opts ...FirebaseOption,
) (*Firebase, error) {
	baseURL := cfg.IdentityToolkitURL
	if baseURL == "" {
		baseURL = config.DefaultIdentityToolkitURL
	}

	f := &Firebase{
		log:        log.WithField("component", "identity-firebase"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		projectID:  cfg.ProjectID,
		verify:     verify,
		httpClient: &http.Client{Timeout: firebaseHTTPTimeout},
	}

	for _, opt := range opts {
		opt(f)
	}

	if verify && f.keys == nil {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = config.DefaultFirebaseJWKSURL
		}

		keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("loading firebase signing keys: %w", err)
		}

		f.keys = keys
	}

	return f, nil
}

// Name returns "firebase".
func (f *Firebase) Name() string {
	return config.AuthProviderFirebase
}

type toolkitAuthRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type toolkitUpdateRequest struct {
	IDToken           string `json:"idToken"`
	DisplayName       string `json:"displayName"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type toolkitAuthResponse struct {
	IDToken     string `json:"idToken"`
	Email       string `json:"email"`
	LocalID     string `json:"localId"`
	DisplayName string `json:"displayName"`
}

type toolkitErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignUp creates a Firebase account and sets its display name.
func (f *Firebase) SignUp(
	ctx context.Context, email, password, displayName string,
) (*Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	var resp toolkitAuthResponse
	if err := f.call(ctx, "accounts:signUp", toolkitAuthRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp); err != nil {
		return nil, err
	}

	principal := &Principal{
		UID:   resp.LocalID,
		Email: strings.ToLower(resp.Email),
		Token: resp.IDToken,
	}

	if displayName = strings.TrimSpace(displayName); displayName != "" {
		var updated toolkitAuthResponse
		if err := f.call(ctx, "accounts:update", toolkitUpdateRequest{
			IDToken:           resp.IDToken,
			DisplayName:       displayName,
			ReturnSecureToken: true,
		}, &updated); err != nil {
			f.log.WithError(err).WithField("uid", resp.LocalID).
				Warn("Failed to set display name")
		} else if updated.IDToken != "" {
			principal.Token = updated.IDToken
		}

		principal.DisplayName = displayName
	}

	return principal, nil
}

// SignIn exchanges an email/password pair for a Firebase ID token.
func (f *Firebase) SignIn(
	ctx context.Context, email, password string,
) (*Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	var resp toolkitAuthResponse
	if err := f.call(ctx, "accounts:signInWithPassword", toolkitAuthRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}, &resp); err != nil {
		return nil, err
	}

	return &Principal{
		UID:         resp.LocalID,
		Email:       strings.ToLower(resp.Email),
		DisplayName: resp.DisplayName,
		Token:       resp.IDToken,
	}, nil
}

// Verify checks a Firebase ID token: RS256 signature from Google's keys,
// issuer and audience bound to the project, and expiry.
func (f *Firebase) Verify(_ context.Context, token string) (*Principal, error) {
	if !f.verify {
		return parseUnverified(token)
	}

	parsed, err := jwt.ParseWithClaims(
		token,
		&Claims{},
		f.keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(firebaseIssuerBase+f.projectID),
		jwt.WithAudience(f.projectID),
		jwt.WithExpirationRequired(),
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

func (f *Firebase) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	endpoint := f.baseURL + "/" + method + "?" + url.Values{"key": {f.apiKey}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp toolkitErrorResponse
		if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error.Message == "" {
			return fmt.Errorf("%w: %s returned status %d", ErrUpstream, method, resp.StatusCode)
		}

		return toolkitError(errResp.Error.Message)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUpstream, err)
	}

	return nil
}

// toolkitError maps an Identity Toolkit error message to a package error.
// Messages look like "EMAIL_EXISTS" or "WEAK_PASSWORD : Password should be
// at least 6 characters".
func toolkitError(message string) error {
	code, _, _ := strings.Cut(message, " ")

	switch code {
	case "EMAIL_EXISTS":
		return ErrEmailExists
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return ErrInvalidCredentials
	case "INVALID_EMAIL", "WEAK_PASSWORD", "MISSING_PASSWORD", "MISSING_EMAIL":
		return fmt.Errorf("%w: %s", ErrInvalidInput, message)
	default:
		return fmt.Errorf("%w: %s", ErrUpstream, message)
	}
}
