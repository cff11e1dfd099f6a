package models

import "time"

// Provider names an external service a user can connect
type Provider string

const (
	ProviderCalendar Provider = "calendar"
	ProviderGmail    Provider = "gmail"
)

// Providers lists every provider a user can connect.
var Providers = []Provider{ProviderCalendar, ProviderGmail}

// ParseProvider reports whether name is a known provider.
func ParseProvider(name string) (Provider, bool) {
	for _, p := range Providers {
		if string(p) == name {
			return p, true
		}
	}
	return "", false
}

// Connection holds the stored credential for one user and provider
type Connection struct {
	UserID       string    `json:"user_id" firestore:"user_id"`
	TenantID     string    `json:"tenant_id,omitempty" firestore:"tenant_id"`
	Provider     Provider  `json:"provider" firestore:"provider"`
	RefreshToken string    `json:"-" firestore:"refresh_token"`
	Scopes       []string  `json:"scopes" firestore:"scopes"`
	EmailAddress string    `json:"email_address,omitempty" firestore:"email_address"`
	UpdatedAt    time.Time `json:"updated_at" firestore:"updated_at"`
}

// ConnectionRecord is the public status of a connection. It never carries the credential.
type ConnectionRecord struct {
	Provider  Provider `json:"-"`
	Connected bool     `json:"connected"`
	Scopes    []string `json:"scopes"`
}

// Record returns the status view of the connection.
func (c *Connection) Record() ConnectionRecord {
	if c == nil {
		return ConnectionRecord{Scopes: []string{}}
	}
	scopes := c.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return ConnectionRecord{
		Provider:  c.Provider,
		Connected: c.RefreshToken != "",
		Scopes:    scopes,
	}
}
