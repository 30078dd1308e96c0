package http

import (
	"context"
	"net/http"
)

// RegistryService defines the vault registry operations required by the
// RegistryHandler. *service.Registry implements it.
type RegistryService interface {
	ListIdentities() []string
	ListSites(identity string) ([]string, error)
	CreateIdentity(ctx context.Context, name string) error
	DeleteIdentity(ctx context.Context, name string) error
	AddSite(ctx context.Context, identity, site string) error
	RemoveSite(ctx context.Context, identity, site string) error
}

// RegistryHandler handles HTTP requests that manage identities and their
// site catalogs.
type RegistryHandler struct {
	Registry RegistryService
}

// NameRequest is the payload for identity creation and selection.
type NameRequest struct {
	Name string `json:"name"`
}

// SiteRequest is the payload for site registration.
type SiteRequest struct {
	Site string `json:"site"`
}

// ListIdentities handles GET /api/identities.
func (h *RegistryHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"identities": h.Registry.ListIdentities()})
}

// CreateIdentity handles POST /api/identities.
func (h *RegistryHandler) CreateIdentity(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Registry.CreateIdentity(r.Context(), req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// DeleteIdentity handles DELETE /api/identities/{name}.
func (h *RegistryHandler) DeleteIdentity(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.DeleteIdentity(r.Context(), pathParam(r, "name")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSites handles GET /api/identities/{name}/sites.
func (h *RegistryHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.Registry.ListSites(pathParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sites": sites})
}

// AddSite handles POST /api/identities/{name}/sites.
func (h *RegistryHandler) AddSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Registry.AddSite(r.Context(), pathParam(r, "name"), req.Site); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveSite handles DELETE /api/identities/{name}/sites/{site}.
func (h *RegistryHandler) RemoveSite(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.RemoveSite(r.Context(), pathParam(r, "name"), pathParam(r, "site")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
