package api

import (
	"errors"
	"net/http"

	"hairstudio/internal/config"
)

// HTTPAuth resolves the API client of a request. Public endpoints call it only
// to unlock admin-only options; admin endpoints are wrapped with Require.
type HTTPAuth struct {
	enabled bool
	keys    *keyring
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		enabled: cfg.Auth.Enabled,
		keys:    newKeyring(cfg.Auth),
	}
}

// identify returns nil without error when the request carries no credentials.
// With auth disabled every caller is an unrestricted client.
func (a *HTTPAuth) identify(r *http.Request) (*config.APIClientKey, error) {
	if !a.enabled {
		return &config.APIClientKey{Name: "anonymous"}, nil
	}

	apiKey := r.Header.Get(a.keys.apiKeyHeader)
	extra := r.Header.Get(a.keys.extraHeader)
	client, err := a.keys.authenticate(apiKey, extra)
	if errors.Is(err, errMissingKey) && apiKey == "" && extra == "" {
		return nil, nil
	}
	return client, err
}

// Require rejects requests without a client holding the permission.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := a.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if client == nil {
			writeError(w, http.StatusUnauthorized, errMissingKey.Error())
			return
		}
		if !hasPermission(client, permission) {
			writeError(w, http.StatusForbidden, errPermissionDenied.Error())
			return
		}
		next(w, r)
	}
}

// allows reports whether the request belongs to a client with the permission.
func (a *HTTPAuth) allows(r *http.Request, permission string) (bool, error) {
	client, err := a.identify(r)
	if err != nil {
		return false, err
	}
	return hasPermission(client, permission), nil
}
