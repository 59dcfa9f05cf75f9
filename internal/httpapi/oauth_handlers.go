package httpapi

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"jobtrack-engine/internal/mailbox"
)

type OAuthHandler struct {
	Tokens TokenSaver
}

type saveTokenReq struct {
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// Save accepts a token obtained by the client's consent flow and stores it
// encrypted. Tokens are never echoed back.
func (h OAuthHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveTokenReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	user := strings.TrimSpace(req.UserID)
	if user == "" || req.AccessToken == "" {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "user_id and access_token are required")
		return
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = mailbox.GmailProviderName
	}

	tok := &oauth2.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
	}
	if err := h.Tokens.SaveToken(r.Context(), user, provider, tok); err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, "failed to store token: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h OAuthHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := strings.TrimSpace(q.Get("user"))
	if user == "" {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "user is required")
		return
	}
	provider := strings.ToLower(strings.TrimSpace(q.Get("provider")))
	if provider == "" {
		provider = mailbox.GmailProviderName
	}
	if err := h.Tokens.DeleteToken(r.Context(), user, provider); err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
