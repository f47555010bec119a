package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edume/internal/chat"
	"github.com/edume/internal/feed"
	"github.com/edume/internal/middleware"
	"github.com/edume/internal/moderation"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/service"
	"github.com/edume/internal/storage/memory"
)

type allowAll struct{}

func (allowAll) Classify(context.Context, string) (moderation.Result, error) {
	return moderation.Result{}, nil
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { store.Close() })

	geofeed := feed.New(store)
	require.NoError(t, geofeed.Start(context.Background()))
	t.Cleanup(geofeed.Cancel)

	postH := NewPostHandler(service.NewPostService(store, moderation.NewGate(allowAll{})), geofeed, feed.DefaultRadiusMeters)
	chatH := NewChatHandler(chat.NewRegistry(store),
		repository.NewPostRepository(store),
		repository.NewChatRepository(store),
		repository.NewMessageRepository(store))

	r := chi.NewRouter()
	r.Use(middleware.DevIdentity)
	r.Get("/api/posts", postH.List)
	r.Post("/api/posts", postH.Publish)
	r.Get("/api/posts/mine", postH.ListMine)
	r.Delete("/api/posts/{id}", postH.Delete)
	r.Get("/api/chats", chatH.List)
	r.Post("/api/chats", chatH.Open)
	r.Get("/api/chats/{id}/messages", chatH.Messages)
	return r
}

func call(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-Id", user)
	req.Header.Set("X-User-Name", "Name of "+user)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func publish(t *testing.T, h http.Handler, user string, req PublishRequest) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/api/posts", user, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
		Moderated bool `json:"moderated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Moderated)
	return out.Post.ID
}

func tutoring() PublishRequest {
	return PublishRequest{
		Title:       "Math tutor",
		Description: "Algebra and calculus homework help",
		Category:    "Tutoring",
		Location:    &locationRequest{Latitude: 0, Longitude: 0.0001},
	}
}

func TestPublish_StatusCodes(t *testing.T) {
	h := newRouter(t)

	publish(t, h, "owner", tutoring())

	bad := tutoring()
	bad.Category = "Gardening"
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodPost, "/api/posts", "owner", bad).Code)

	flagged := tutoring()
	flagged.Title = "Selling stolen phones"
	rec := call(t, h, http.MethodPost, "/api/posts", "owner", flagged)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "theft")

	assert.Equal(t, http.StatusUnauthorized, call(t, h, http.MethodPost, "/api/posts", "", tutoring()).Code)
}

func TestListPosts_Filters(t *testing.T) {
	h := newRouter(t)
	near := publish(t, h, "owner", tutoring())
	far := tutoring()
	far.Location = &locationRequest{Latitude: 10, Longitude: 10}
	publish(t, h, "owner", far)

	var out struct {
		Posts []struct {
			ID       string `json:"id"`
			TimeAgo  string `json:"time_ago"`
			Category string `json:"category"`
		} `json:"posts"`
	}
	require.Eventually(t, func() bool {
		rec := call(t, h, http.MethodGet, "/api/posts", "viewer", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return len(out.Posts) == 2
	}, 2*time.Second, 10*time.Millisecond)

	rec := call(t, h, http.MethodGet, "/api/posts?lat=0&lon=0&radius=1000", "viewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Posts, 1)
	assert.Equal(t, near, out.Posts[0].ID)

	rec = call(t, h, http.MethodGet, "/api/posts?category=Pets", "viewer", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.Posts)

	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/posts?lat=abc&lon=0", "viewer", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/posts?category=Nope", "viewer", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/posts?lat=NaN&lon=0", "viewer", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/posts?lat=0&lon=0&radius=NaN", "viewer", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, h, http.MethodGet, "/api/posts?lat=0&lon=0&radius=Inf", "viewer", nil).Code)
}

func TestDeletePost(t *testing.T) {
	h := newRouter(t)
	id := publish(t, h, "owner", tutoring())

	assert.Equal(t, http.StatusForbidden, call(t, h, http.MethodDelete, "/api/posts/"+id, "viewer", nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, h, http.MethodDelete, "/api/posts/"+id, "owner", nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, h, http.MethodDelete, "/api/posts/"+id, "owner", nil).Code)
}

func TestOpenChat(t *testing.T) {
	h := newRouter(t)
	postID := publish(t, h, "owner", tutoring())

	open := func(user string) (int, string, string) {
		rec := call(t, h, http.MethodPost, "/api/chats", user, OpenChatRequest{PostID: postID})
		var out struct {
			ID                   string `json:"id"`
			OtherParticipantName string `json:"other_participant_name"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		return rec.Code, out.ID, out.OtherParticipantName
	}

	code, first, other := open("viewer")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Name of owner", other)
	code, second, _ := open("viewer")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first, second)

	code, _, _ = open("owner")
	assert.Equal(t, http.StatusBadRequest, code, "cannot chat with yourself")

	rec := call(t, h, http.MethodPost, "/api/chats", "viewer", OpenChatRequest{PostID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, h, http.MethodGet, "/api/chats", "owner", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), first)

	assert.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/api/chats/"+first+"/messages", "viewer", nil).Code)
	assert.Equal(t, http.StatusForbidden, call(t, h, http.MethodGet, "/api/chats/"+first+"/messages", "stranger", nil).Code)
}
