package identity

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTokens map[string]*auth.Token

func (f fakeTokens) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if t, ok := f[idToken]; ok {
		return t, nil
	}
	return nil, errors.New("ID token has invalid signature")
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		token, ok := ParseBearer(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.token, token, tt.header)
	}
}

func TestFirebaseVerifier(t *testing.T) {
	v := NewFirebaseVerifier(fakeTokens{
		"good": {
			UID:      "uid-1",
			Firebase: auth.FirebaseInfo{Tenant: "tenant-a"},
			Claims:   map[string]interface{}{"email": "ana@example.com", "name": "Ana"},
		},
		"anonymous": {UID: "uid-2"},
	}, zap.NewNop())

	id, err := v.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "uid-1", TenantID: "tenant-a", Email: "ana@example.com", Name: "Ana"}, id)

	id, err = v.Verify(context.Background(), "anonymous")
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "uid-2"}, id)

	_, err = v.Verify(context.Background(), "forged")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
