package httpapi

import (
	"net/http"
	"sync/atomic"

	"jobtrack-engine/internal/config"
	"jobtrack-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
	// SetPassword defaults to the OS keychain.
	SetPassword func(account, password string) error
}

type setIMAPPasswordReq struct {
	Password string `json:"password"`
}

func (h SecretsHandler) SetIMAPPassword(w http.ResponseWriter, r *http.Request) {
	var req setIMAPPasswordReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	set := h.SetPassword
	if set == nil {
		set = secrets.SetIMAPPassword
	}
	cfg := h.CfgVal.Load().(config.Config)
	if err := set(secrets.IMAPKeyringAccount(cfg), req.Password); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "failed to store password: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
