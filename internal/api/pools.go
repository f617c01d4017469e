package api

import (
	"net/http"

	"github.com/mtlprog/vault/internal/domain"
	"github.com/mtlprog/vault/internal/pool"
	"github.com/mtlprog/vault/internal/vaulterr"
)

type addPoolBody struct {
	Token0   string `json:"token0"`
	Token1   string `json:"token1"`
	Provider string `json:"provider"`
}

func pathAccount(r *http.Request) (domain.Account, error) {
	a, err := domain.ParseAccount(r.PathValue("account"))
	if err != nil {
		return "", vaulterr.NewValidation(vaulterr.ModuleAPI, 4, "invalid account")
	}
	return a, nil
}

// ListPools handles GET /api/v1/pools.
func (h *Handler) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := h.pools.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, pools)
}

// GetPool handles GET /api/v1/pools/{id}.
func (h *Handler) GetPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.pools.Get(r.Context(), pool.ID(r.PathValue("id")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, p)
}

// AddPool handles POST /api/v1/pools.
func (h *Handler) AddPool(w http.ResponseWriter, r *http.Request) {
	var body addPoolBody
	if err := decodeBody(r, &body); err != nil {
		writeErr(w, err)
		return
	}
	id, err := h.pools.Add(r.Context(), body.Token0, body.Token1, pool.Provider(body.Provider))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]pool.ID{"id": id})
}

// DeletePool handles DELETE /api/v1/pools/{id}.
func (h *Handler) DeletePool(w http.ResponseWriter, r *http.Request) {
	if err := h.pools.Delete(r.Context(), pool.ID(r.PathValue("id"))); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}
