package cmd

import (
	"github.com/dukex/botportal/pkg/session"
)

// NewTokenStore picks the token store by URL scheme. An explicit token
// wins over any stored one and is kept in memory only.
func NewTokenStore(storeURL, token string) (session.TokenStore, error) {
	if token != "" {
		return session.NewMemoryStore(token), nil
	}

	if storeURL == "" {
		return session.NewFileStore(session.DefaultTokenPath()), nil
	}

	return session.NewTokenStore(storeURL)
}
