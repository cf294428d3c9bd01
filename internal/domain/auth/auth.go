// Package auth carries the caller's upstream credentials through the request.
package auth

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// Context holds the credentials forwarded to the marketplace API on every
// collaborator call. It is extracted once per incoming request and passed
// explicitly; nothing downstream reads headers or sessions on its own.
type Context struct {
	Token     string
	RequestID string
}

// FromRequest extracts the bearer token from the Authorization header.
func FromRequest(r *http.Request) (Context, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return Context{}, ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Context{}, ErrMissingToken
	}
	return Context{Token: token}, nil
}

// Apply sets the forwarded credentials on an outgoing upstream request.
func (c Context) Apply(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.RequestID != "" {
		req.Header.Set("X-Request-ID", c.RequestID)
	}
}
