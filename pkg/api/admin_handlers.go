package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/identity"
)

const maxIdentityPage = 500

// AdminHandlers serves identity administration. Callers mount it behind
// an admin role check.
type AdminHandlers struct {
	accounts *accounts.Service
	sync     Synchronizer
}

// NewAdminHandlers creates admin handlers; sync may be nil
func NewAdminHandlers(svc *accounts.Service, sync Synchronizer) *AdminHandlers {
	return &AdminHandlers{
		accounts: svc,
		sync:     sync,
	}
}

// RegisterRoutes registers admin routes on a router scoped to /api/admin
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/identities", h.listIdentities).Methods("GET")
	router.HandleFunc("/identities/{id}", h.getIdentity).Methods("GET")
	router.HandleFunc("/identities/{id}/lock", h.lock).Methods("POST")
	router.HandleFunc("/identities/{id}/unlock", h.unlock).Methods("POST")
	router.HandleFunc("/identities/{id}/role", h.changeRole).Methods("PUT")
	router.HandleFunc("/identities/{id}/verify", h.verify).Methods("POST")
	router.HandleFunc("/identities/{id}", h.softDelete).Methods("DELETE")
	router.HandleFunc("/identities/{id}/restore", h.restore).Methods("POST")

	if h.sync != nil {
		router.HandleFunc("/identities/{id}/sync", h.syncOne).Methods("POST")
		router.HandleFunc("/sync", h.syncAll).Methods("POST")
		router.HandleFunc("/sync/integrity", h.integrity).Methods("GET")
	}
}

// listIdentities handles GET /identities?after=&limit=
func (h *AdminHandlers) listIdentities(w http.ResponseWriter, r *http.Request) {
	after, err := httputil.ParseQueryInt(r, "after", 0)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit <= 0 || limit > maxIdentityPage {
		httputil.WriteBadRequest(w, r, "limit must be between 1 and 500")
		return
	}

	records, err := h.accounts.List(r.Context(), int64(after), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []*identity.Record{}
	}

	resp := map[string]interface{}{"identities": records}
	if len(records) == limit {
		resp["next_after"] = records[len(records)-1].ID
	}
	httputil.WriteSuccess(w, resp)
}

// getIdentity handles GET /identities/{id}
func (h *AdminHandlers) getIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	record, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

type adminAction func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error)

// serveAction runs an admin action on the {id} identity
func (h *AdminHandlers) serveAction(w http.ResponseWriter, r *http.Request, action adminAction) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	record, err := action(r, auth.PrincipalFromContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, record)
}

// lock handles POST /identities/{id}/lock with an optional {"reason"}
func (h *AdminHandlers) lock(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength > 0 {
			if err := httputil.ParseJSON(r, &req); err != nil {
				return nil, &accounts.ValidationError{Field: "body", Message: "invalid JSON"}
			}
		}
		return h.accounts.Lock(r.Context(), admin, id, req.Reason)
	})
}

func (h *AdminHandlers) unlock(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		return h.accounts.Unlock(r.Context(), admin, id)
	})
}

// changeRole handles PUT /identities/{id}/role with {"role"}
func (h *AdminHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		var req struct {
			Role string `json:"role"`
		}
		if err := httputil.ParseJSON(r, &req); err != nil {
			return nil, &accounts.ValidationError{Field: "body", Message: "invalid JSON"}
		}
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			return nil, &accounts.ValidationError{Field: "role", Message: err.Error()}
		}
		return h.accounts.ChangeRole(r.Context(), admin, id, role)
	})
}

func (h *AdminHandlers) verify(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		return h.accounts.VerifyManually(r.Context(), admin, id)
	})
}

func (h *AdminHandlers) softDelete(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		return h.accounts.SoftDelete(r.Context(), admin, id)
	})
}

func (h *AdminHandlers) restore(w http.ResponseWriter, r *http.Request) {
	h.serveAction(w, r, func(r *http.Request, admin *auth.Principal, id int64) (*identity.Record, error) {
		return h.accounts.Restore(r.Context(), admin, id)
	})
}

// syncOne handles POST /identities/{id}/sync
func (h *AdminHandlers) syncOne(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	result, err := h.sync.Synchronize(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// syncAll handles POST /sync; it runs in the request and honours its
// cancellation
func (h *AdminHandlers) syncAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.sync.SynchronizeAll(r.Context())
	if err != nil && summary == nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, summary)
}

// integrity handles GET /sync/integrity
func (h *AdminHandlers) integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.ValidateIntegrity(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, report)
}
