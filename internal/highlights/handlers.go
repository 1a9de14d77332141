package highlights

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/common"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Middlewares groups the auth wrappers the routes need
type Middlewares struct {
	Authenticate func(http.Handler) http.Handler
	OptionalAuth func(http.Handler) http.Handler
	RequireAdmin func(http.Handler) http.Handler
}

func RegisterRoutes(router *mux.Router, handler *Handler, mw Middlewares) {
	// Admin
	admin := router.PathPrefix("/api/v1/admin/highlights").Subrouter()
	admin.Use(mw.Authenticate, mw.RequireAdmin)
	admin.HandleFunc("", handler.AdminList).Methods("GET")
	admin.HandleFunc("", handler.AdminCreate).Methods("POST")
	admin.HandleFunc("/stats", handler.Stats).Methods("GET")
	admin.HandleFunc("/{id}", handler.Moderate).Methods("PATCH")
	admin.HandleFunc("/{id}", handler.Delete).Methods("DELETE")

	// Public
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Handle("/highlights", mw.OptionalAuth(http.HandlerFunc(handler.ListVisible))).Methods("GET")
	api.Handle("/highlights/feed", mw.OptionalAuth(http.HandlerFunc(handler.Feed))).Methods("GET")
	api.Handle("/highlights", mw.Authenticate(http.HandlerFunc(handler.Submit))).Methods("POST")
	api.Handle("/highlights/{id}/view", mw.OptionalAuth(http.HandlerFunc(handler.RecordView))).Methods("POST")
}

func actorFromRequest(r *http.Request) (Actor, error) {
	viewer, err := common.GetViewer(r.Context())
	if err != nil {
		return Actor{}, err
	}
	return Actor{
		ID:        viewer.ID,
		Name:      viewer.Name,
		Email:     viewer.Email,
		AvatarURL: viewer.AvatarURL,
		IsAdmin:   viewer.IsAdmin(),
	}, nil
}

func (h *Handler) ListVisible(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Visible(r.Context())
	if err != nil {
		h.logger.Error("list visible highlights", zap.Error(err))
		common.InternalError(w, "Failed to get highlights")
		return
	}

	public := make([]*Item, len(items))
	for i, item := range items {
		public[i] = item.Public()
	}
	common.Success(w, "", public)
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Feed(r.Context())
	if err != nil {
		h.logger.Error("build highlight feed", zap.Error(err))
		common.InternalError(w, "Failed to get highlights feed")
		return
	}

	if r.URL.Query().Get("expand") == "items" {
		for _, g := range groups {
			for i, item := range g.Items {
				g.Items[i] = item.Public()
			}
		}
		common.Success(w, "", groups)
		return
	}
	common.Success(w, "", Thumbnails(groups))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		common.Unauthorized(w, "Unauthorized")
		return
	}

	var req SubmitRequest
	if errs := common.DecodeAndValidate(r, &req); errs != nil {
		common.ValidationError(w, errs)
		return
	}

	item, err := h.service.Submit(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err, "Failed to submit highlight")
		return
	}

	common.Created(w, "Highlight submitted for review", item)
}

func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RecordView(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err, "Failed to record view")
		return
	}
	common.Success(w, "View recorded", nil)
}

func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	common.NoStore(w)

	q := r.URL.Query()
	filter := ListFilter{
		AuthorID: q.Get("author_id"),
		Search:   q.Get("search"),
	}

	switch status := q.Get("status"); status {
	case "", "all":
	default:
		filter.Status = Status(status)
		if !filter.Status.Valid() {
			common.BadRequest(w, "Invalid status filter")
			return
		}
	}

	if v := q.Get("admin_only"); v != "" {
		adminOnly, err := strconv.ParseBool(v)
		if err != nil {
			common.BadRequest(w, "Invalid admin_only flag")
			return
		}
		filter.AdminOnly = adminOnly
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("admin list highlights", zap.Error(err))
		common.InternalError(w, "Failed to get highlights")
		return
	}

	common.SuccessWithMeta(w, "", items, &common.Meta{Limit: filter.Limit, Offset: filter.Offset, Total: total})
}

func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	common.NoStore(w)

	actor, err := actorFromRequest(r)
	if err != nil {
		common.Unauthorized(w, "Unauthorized")
		return
	}

	var req SubmitRequest
	if errs := common.DecodeAndValidate(r, &req); errs != nil {
		common.ValidationError(w, errs)
		return
	}

	item, err := h.service.CreateAdmin(r.Context(), actor, &req)
	if err != nil {
		h.writeError(w, err, "Failed to create highlight")
		return
	}

	common.Created(w, "Highlight published", item)
}

func (h *Handler) Moderate(w http.ResponseWriter, r *http.Request) {
	common.NoStore(w)

	actor, err := actorFromRequest(r)
	if err != nil {
		common.Unauthorized(w, "Unauthorized")
		return
	}

	var req ModerateRequest
	if errs := common.DecodeAndValidate(r, &req); errs != nil {
		common.ValidationError(w, errs)
		return
	}

	item, err := h.service.Moderate(r.Context(), actor, mux.Vars(r)["id"], &req)
	if err != nil {
		h.writeError(w, err, "Failed to update highlight")
		return
	}

	common.Success(w, "Highlight updated", item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	common.NoStore(w)

	actor, err := actorFromRequest(r)
	if err != nil {
		common.Unauthorized(w, "Unauthorized")
		return
	}

	if err := h.service.Delete(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err, "Failed to delete highlight")
		return
	}

	common.Success(w, "Highlight deleted", nil)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	common.NoStore(w)

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("highlight stats", zap.Error(err))
		common.InternalError(w, "Failed to get stats")
		return
	}
	common.Success(w, "", stats)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.NotFound(w, "Highlight not found")
	case errors.Is(err, ErrReasonRequired):
		common.ValidationError(w, map[string]string{"rejection_reason": ErrReasonRequired.Error()})
	case errors.Is(err, ErrInvalidMedia):
		common.ValidationError(w, map[string]string{"media_url": ErrInvalidMedia.Error()})
	case errors.Is(err, ErrInvalidExpiry):
		common.ValidationError(w, map[string]string{"expires_at": ErrInvalidExpiry.Error()})
	case errors.Is(err, ErrNotAdminAuthored), errors.Is(err, ErrForbidden):
		common.Forbidden(w, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStatusChanged):
		common.Conflict(w, err.Error())
	case errors.Is(err, ErrRateLimited):
		common.TooManyRequests(w, "Too many submissions, try again later")
	default:
		h.logger.Error(fallback, zap.Error(err))
		common.InternalError(w, fallback)
	}
}
