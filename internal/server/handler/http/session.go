package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/atinyakov/passe/internal/gateway"
	"github.com/atinyakov/passe/internal/models"
	"github.com/atinyakov/passe/internal/secret"
	"github.com/atinyakov/passe/internal/session"
)

// maxSecretBody bounds the body accepted by SubmitSecret.
const maxSecretBody = 64 << 10

// SessionService defines the session operations required by the
// SessionHandler. *session.Session implements it.
type SessionService interface {
	Status() session.Status
	SelectIdentity(name string) error
	SubmitSecret(pw []byte) error
	AddSiteAndReveal(ctx context.Context, site string, opts ...gateway.Option) (models.Credential, error)
	ViewSite(ctx context.Context, site string, opts ...gateway.Option) (models.Credential, error)
	Sites() ([]string, error)
	Lock()
}

// SessionHandler handles HTTP requests that drive the daemon's session.
type SessionHandler struct {
	Session SessionService
}

// StatusResponse describes the session. Sites is only set while browsing.
type StatusResponse struct {
	State    string   `json:"state"`
	Identity string   `json:"identity,omitempty"`
	Sites    []string `json:"sites,omitempty"`
}

// RevealRequest names a site and optional derivation parameters.
type RevealRequest struct {
	Site     string `json:"site"`
	Counter  int    `json:"counter,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Template string `json:"template,omitempty"`
}

func (req RevealRequest) options() ([]gateway.Option, error) {
	var opts []gateway.Option
	if req.Counter != 0 {
		opts = append(opts, gateway.WithCounter(req.Counter))
	}
	opts = append(opts, gateway.WithScope(req.Scope))
	if req.Template != "" {
		t, err := gateway.ParseTemplate(req.Template)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gateway.WithTemplate(t))
	}
	return opts, nil
}

// secretField decodes a JSON string into bytes. Strings without escapes
// are copied straight from the request buffer so no immutable copy of the
// master secret is created.
type secretField []byte

func (s *secretField) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("secret must be a string")
	}
	inner := data[1 : len(data)-1]
	if bytes.IndexByte(inner, '\\') < 0 {
		*s = append((*s)[:0], inner...)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = append((*s)[:0], str...)
	return nil
}

// Status handles GET /api/session.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.Session.Status()
	resp := StatusResponse{State: st.State.String(), Identity: st.Identity}
	if st.State == session.Browsing {
		if sites, err := h.Session.Sites(); err == nil {
			resp.Sites = sites
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// SelectIdentity handles POST /api/session/identity.
func (h *SessionHandler) SelectIdentity(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Session.SelectIdentity(req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	h.Status(w, r)
}

// SubmitSecret handles POST /api/session/secret. The request buffer and
// the decoded secret are wiped before returning.
func (h *SessionHandler) SubmitSecret(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSecretBody))
	defer secret.Zero(body)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	var req struct {
		Secret secretField `json:"secret"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		secret.Zero(req.Secret)
		writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	// SubmitSecret zeroes req.Secret on every path.
	if err := h.Session.SubmitSecret(req.Secret); err != nil {
		writeError(w, r, err)
		return
	}
	h.Status(w, r)
}

// AddSiteAndReveal handles POST /api/session/sites.
func (h *SessionHandler) AddSiteAndReveal(w http.ResponseWriter, r *http.Request) {
	h.reveal(w, r, h.Session.AddSiteAndReveal)
}

// ViewSite handles POST /api/session/view.
func (h *SessionHandler) ViewSite(w http.ResponseWriter, r *http.Request) {
	h.reveal(w, r, h.Session.ViewSite)
}

// Lock handles POST /api/session/lock.
func (h *SessionHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.Session.Lock()
	h.Status(w, r)
}

type revealFunc func(ctx context.Context, site string, opts ...gateway.Option) (models.Credential, error)

func (h *SessionHandler) reveal(w http.ResponseWriter, r *http.Request, fn revealFunc) {
	var req RevealRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	opts, err := req.options()
	if err != nil {
		writeError(w, r, err)
		return
	}
	cred, err := fn(r.Context(), req.Site, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}
