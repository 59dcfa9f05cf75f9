package httpapi

import (
	"net/http"
	"time"

	"jobtrack-engine/internal/comments"
	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/store"
)

type SharesHandler struct {
	Store *store.DB
	Now   func() time.Time
}

type createShareReq struct {
	ExpiresAt  *time.Time `json:"expires_at"`
	CanComment bool       `json:"can_comment"`
}

type shareResp struct {
	domain.ShareRecord
	Token string `json:"token"`
}

func (h SharesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createShareReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s, err := h.Store.CreateShare(r.Context(), store.ShareInsert{ExpiresAt: req.ExpiresAt, CanComment: req.CanComment})
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, shareResp{ShareRecord: s, Token: s.Token})
}

type updateShareReq struct {
	IsActive *bool `json:"is_active"`
}

// ByPath serves /shares/{token} and /shares/{token}/comments.
func (h SharesHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/shares/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodPatch:
		h.update(w, r, parts[0])
	case len(parts) == 1:
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	case len(parts) == 2 && parts[1] == "comments":
		h.commentRoutes(w, r, parts[0])
	default:
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "not found")
	}
}

// update toggles whether a share link accepts visitors and comments.
func (h SharesHandler) update(w http.ResponseWriter, r *http.Request, token string) {
	var req updateShareReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.IsActive == nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "is_active is required")
		return
	}
	share, err := h.Store.GetShareByToken(r.Context(), token)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if share == nil {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "share not found")
		return
	}
	if err := h.Store.SetShareActive(r.Context(), share.ID, *req.IsActive); err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	share.IsActive = *req.IsActive
	writeJSON(w, shareResp{ShareRecord: *share, Token: share.Token})
}

func (h SharesHandler) commentRoutes(w http.ResponseWriter, r *http.Request, token string) {

	switch r.Method {
	case http.MethodPost:
		h.post(w, r, token)
	case http.MethodGet:
		h.list(w, r, token)
	default:
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h SharesHandler) post(w http.ResponseWriter, r *http.Request, token string) {
	var in comments.Input
	if err := decodeJSON(r, &in); err != nil {
		WriteJSON(w, http.StatusBadRequest, comments.Result{Err: &comments.Error{Code: comments.CodeValidation, Message: err.Error()}})
		return
	}
	res := comments.PostComment(r.Context(), token, in, comments.Deps{Store: h.Store, Now: h.Now})
	WriteJSON(w, commentStatus(res), res)
}

// commentStatus maps handler outcomes onto HTTP. Only malformed input and
// unknown links are transport errors; every other failure is a 200 with the
// error envelope so the share page can render the message.
func commentStatus(res comments.Result) int {
	if res.Err == nil {
		return http.StatusOK
	}
	switch res.Err.Code {
	case comments.CodeValidation:
		return http.StatusBadRequest
	case comments.CodeInvalidToken:
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (h SharesHandler) list(w http.ResponseWriter, r *http.Request, token string) {
	share, err := h.Store.GetShareByToken(r.Context(), token)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if share == nil || !share.IsActive {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "share not found")
		return
	}
	list, err := h.Store.ListComments(r.Context(), share.ID)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if list == nil {
		list = []domain.Comment{}
	}
	writeJSON(w, list)
}
