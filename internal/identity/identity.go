// Package identity resolves bearer tokens to verified users.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
)

// ErrUnauthenticated is returned for missing, malformed or rejected tokens.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Identity is a verified caller.
type Identity struct {
	UserID   string
	TenantID string
	Email    string
	Name     string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// TokenVerifier is implemented by *auth.Client.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type FirebaseVerifier struct {
	client TokenVerifier
	logger *zap.Logger
}

func NewFirebaseVerifier(client TokenVerifier, logger *zap.Logger) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, logger: logger}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		v.logger.Debug("ID token rejected", zap.Error(err))
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if decoded.UID == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	id := Identity{
		UserID:   decoded.UID,
		TenantID: decoded.Firebase.Tenant,
	}
	id.Email, _ = decoded.Claims["email"].(string)
	id.Name, _ = decoded.Claims["name"].(string)
	return id, nil
}
