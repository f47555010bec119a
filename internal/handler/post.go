package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edume/internal/feed"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/middleware"
	"github.com/edume/internal/model"
	"github.com/edume/internal/moderation"
	"github.com/edume/internal/service"
	"github.com/edume/internal/ws"
)

type PostHandler struct {
	posts         *service.PostService
	feed          *feed.Geofeed
	defaultRadius float64
}

// NewPostHandler: geofeed, общая для процесса лента, уже запущенная вызывающим.
func NewPostHandler(posts *service.PostService, geofeed *feed.Geofeed, defaultRadius float64) *PostHandler {
	return &PostHandler{posts: posts, feed: geofeed, defaultRadius: defaultRadius}
}

type locationRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	AreaRadius float64 `json:"area_radius"`
	City       *string `json:"city"`
	State      *string `json:"state"`
}

type PublishRequest struct {
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Category          string           `json:"category"`
	Location          *locationRequest `json:"location"`
	Price             *float64         `json:"price"`
	IsPriceNegotiable bool             `json:"is_price_negotiable"`
	ContactEmail      string           `json:"contact_email"`
}

type publishResponse struct {
	Post      ws.PostView `json:"post"`
	Moderated bool        `json:"moderated"`
}

type rejectedResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (h *PostHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d := service.Draft{
		Title:             req.Title,
		Description:       req.Description,
		Category:          model.Category(req.Category),
		Author:            middleware.GetParticipant(r.Context()),
		Price:             req.Price,
		IsPriceNegotiable: req.IsPriceNegotiable,
		ContactEmail:      req.ContactEmail,
	}
	if req.Location != nil {
		d.Location = &model.UserLocation{
			Latitude:   req.Location.Latitude,
			Longitude:  req.Location.Longitude,
			AreaRadius: req.Location.AreaRadius,
			City:       req.Location.City,
			State:      req.Location.State,
		}
	}

	p, decision, err := h.posts.Publish(r.Context(), d)
	var rejected *moderation.RejectionError
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, rejectedResponse{Error: rejected.Error(), Reason: rejected.Reason})
		return
	case err != nil:
		logger.Errorf("publish post: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to publish post")
		return
	}
	writeJSON(w, http.StatusCreated, publishResponse{
		Post:      ws.NewPostView(*p, time.Now()),
		Moderated: !decision.Degraded,
	})
}

// List: видимые посты по query: lat, lon, radius (метры), category.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	lat, okLat := queryFloat(r, "lat")
	lon, okLon := queryFloat(r, "lon")
	radius, okRadius := queryFloat(r, "radius")
	if !okLat || !okLon || !okRadius {
		writeError(w, http.StatusBadRequest, "invalid query")
		return
	}
	var radiusMeters float64
	if radius != nil {
		radiusMeters = *radius
	}
	f, err := feed.NewFilter(lat, lon, radiusMeters, r.URL.Query().Get("category"), h.defaultRadius)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	select {
	case <-h.feed.Ready():
	case <-r.Context().Done():
		return
	case <-time.After(5 * time.Second):
		writeError(w, http.StatusServiceUnavailable, "feed is loading")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": ws.NewPostViews(h.feed.Visible(f), time.Now())})
}

func (h *PostHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListMine(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("list my posts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	feed.SortNewestFirst(posts)
	writeJSON(w, http.StatusOK, map[string]any{"posts": ws.NewPostViews(posts, time.Now())})
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	err := h.posts.Delete(r.Context(), postID, middleware.GetUserID(r.Context()))
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case err != nil:
		logger.Errorf("delete post %s: %v", postID, err)
		writeError(w, http.StatusInternalServerError, "failed to delete post")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
