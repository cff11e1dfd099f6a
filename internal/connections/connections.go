// Package connections runs the OAuth connect flow for external providers and
// reports which providers a user has connected.
package connections

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/frontdesk/internal/models"
	"github.com/xaenox/frontdesk/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

var (
	ErrInvalidState        = errors.New("connections: invalid state")
	ErrUnknownProvider     = errors.New("connections: unknown provider")
	ErrMissingRefreshToken = errors.New("connections: missing refresh token")
)

// Scopes requested for each provider.
var Scopes = map[models.Provider][]string{
	models.ProviderCalendar: {
		"https://www.googleapis.com/auth/calendar.events",
		"https://www.googleapis.com/auth/calendar",
	},
	models.ProviderGmail: {
		"https://www.googleapis.com/auth/gmail.readonly",
		"https://www.googleapis.com/auth/gmail.send",
		"https://www.googleapis.com/auth/gmail.modify",
	},
}

// OAuthConfig builds the Google OAuth client for a provider.
func OAuthConfig(clientID, clientSecret, redirectURL string, provider models.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes[provider],
		Endpoint:     google.Endpoint,
	}
}

// State travels through the provider and back to the callback.
type State struct {
	Provider models.Provider `json:"provider"`
	UID      string          `json:"uid"`
	TenantID string          `json:"tenantId,omitempty"`
}

func EncodeState(s State) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeState(value string) (State, error) {
	if value == "" {
		return State{}, ErrInvalidState
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if _, ok := models.ParseProvider(string(s.Provider)); !ok || s.UID == "" {
		return State{}, ErrInvalidState
	}
	return s, nil
}

// ProfileLookup resolves the mailbox address of a freshly connected Gmail account.
type ProfileLookup func(ctx context.Context, ts oauth2.TokenSource) (string, error)

// GmailProfile asks the Gmail API for the connected address.
func GmailProfile(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return "", err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return strings.ToLower(profile.EmailAddress), nil
}

type Service struct {
	configs map[models.Provider]*oauth2.Config
	store   storage.ConnectionStore
	profile ProfileLookup
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(configs map[models.Provider]*oauth2.Config, store storage.ConnectionStore, profile ProfileLookup, logger *zap.Logger) *Service {
	return &Service{
		configs: configs,
		store:   store,
		profile: profile,
		now:     time.Now,
		logger:  logger,
	}
}

// AuthURL returns the consent page URL for the provider.
func (s *Service) AuthURL(provider models.Provider, uid, tenantID string) (string, error) {
	cfg, ok := s.configs[provider]
	if !ok {
		return "", ErrUnknownProvider
	}
	state, err := EncodeState(State{Provider: provider, UID: uid, TenantID: tenantID})
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

// Complete exchanges the callback code and stores the credential.
func (s *Service) Complete(ctx context.Context, code, rawState string) (*models.Connection, error) {
	state, err := DecodeState(rawState)
	if err != nil {
		return nil, err
	}
	cfg, ok := s.configs[state.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, ErrMissingRefreshToken
	}

	conn := &models.Connection{
		UserID:       state.UID,
		TenantID:     state.TenantID,
		Provider:     state.Provider,
		RefreshToken: token.RefreshToken,
		UpdatedAt:    s.now(),
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		conn.Scopes = strings.Fields(scope)
	}

	if state.Provider == models.ProviderGmail && s.profile != nil {
		email, err := s.profile(ctx, cfg.TokenSource(ctx, token))
		if err != nil {
			s.logger.Warn("Gmail profile lookup failed", zap.String("user_id", state.UID), zap.Error(err))
		} else {
			conn.EmailAddress = email
		}
	}

	if err := s.store.SaveConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("saving connection: %w", err)
	}
	s.logger.Info("Provider connected",
		zap.String("user_id", state.UID),
		zap.String("provider", string(state.Provider)),
		zap.Int("scopes", len(conn.Scopes)))
	return conn, nil
}

// Status reports every known provider for the user.
func (s *Service) Status(ctx context.Context, uid string) (map[models.Provider]models.ConnectionRecord, error) {
	out := make(map[models.Provider]models.ConnectionRecord, len(models.Providers))
	for _, p := range models.Providers {
		conn, err := s.store.GetConnection(ctx, uid, p)
		if errors.Is(err, storage.ErrNotFound) {
			rec := (*models.Connection)(nil).Record()
			rec.Provider = p
			out[p] = rec
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s connection: %w", p, err)
		}
		out[p] = conn.Record()
	}
	return out, nil
}
