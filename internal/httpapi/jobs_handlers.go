package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"jobtrack-engine/internal/domain"
	"jobtrack-engine/internal/events"
	"jobtrack-engine/internal/store"
)

type JobsHandler struct {
	Store *store.DB
	Hub   events.Publisher
}

type createJobReq struct {
	UserID  string        `json:"user_id"`
	Company string        `json:"company"`
	Title   string        `json:"title"`
	URL     string        `json:"url"`
	Status  domain.Status `json:"status"`
	// Domain optionally teaches the matcher which sender domain belongs to
	// Company.
	Domain string `json:"domain"`
}

func (h JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "user is required")
		return
	}
	jobs, err := h.Store.ListJobs(r.Context(), user, queryInt(r, "limit", 500))
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	writeJSON(w, jobs)
}

func (h JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createJobReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if req.Status != domain.StatusNone && !req.Status.Valid() {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "unknown status "+string(req.Status))
		return
	}
	job, err := h.Store.CreateJob(r.Context(), store.JobInsert{
		UserID:  strings.TrimSpace(req.UserID),
		Company: req.Company,
		Title:   req.Title,
		URL:     strings.TrimSpace(req.URL),
		Status:  req.Status,
	})
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if d := strings.TrimSpace(req.Domain); d != "" {
		if err := h.Store.UpsertCompanyDomain(r.Context(), job.Company, d); err != nil {
			WriteError(w, r, http.StatusInternalServerError, CodeInternal, "job created but domain not saved: "+err.Error())
			return
		}
	}

	events.Emit(h.Hub, RequestIDFrom(r.Context()), "job_created", map[string]any{"id": job.ID})
	WriteJSON(w, http.StatusCreated, job)
}

// ByPath serves /jobs/{id} and /jobs/{id}/history.
func (h JobsHandler) ByPath(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/jobs/")
	if len(parts) == 0 || len(parts) > 2 {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "not found")
		return
	}
	id, ok := parseID(parts[0])
	if !ok {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid id")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		h.history(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.get(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case len(parts) == 2 && parts[1] == "history":
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	case len(parts) == 1:
		WriteError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	default:
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "not found")
	}
}

func (h JobsHandler) get(w http.ResponseWriter, r *http.Request, id int64) {
	job, err := h.Store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	dom, err := h.Store.GetCompanyDomain(r.Context(), job.Company)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, jobResp{Job: job, CompanyDomain: dom})
}

// jobResp adds the sender domain the matcher uses for this job's company.
type jobResp struct {
	domain.Job
	CompanyDomain string `json:"company_domain,omitempty"`
}

func (h JobsHandler) delete(w http.ResponseWriter, r *http.Request, id int64) {
	err := h.Store.DeleteJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, r, http.StatusNotFound, CodeNotFound, "job not found")
		return
	}
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	events.Emit(h.Hub, RequestIDFrom(r.Context()), "job_deleted", map[string]any{"id": id})
	writeJSON(w, map[string]any{"ok": true, "id": id})
}

func (h JobsHandler) history(w http.ResponseWriter, r *http.Request, id int64) {
	hist, err := h.Store.StatusHistory(r.Context(), id)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if hist == nil {
		hist = []domain.StatusEvent{}
	}
	writeJSON(w, hist)
}

type EmailsHandler struct {
	Store *store.DB
}

func (h EmailsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	if user == "" {
		WriteError(w, r, http.StatusBadRequest, CodeBadRequest, "user is required")
		return
	}
	list, err := h.Store.ListTrackedEmails(r.Context(), user, queryInt(r, "limit", 200))
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	if list == nil {
		list = []store.TrackedEmail{}
	}
	writeJSON(w, list)
}
