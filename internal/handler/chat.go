package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edume/internal/chat"
	"github.com/edume/internal/logger"
	"github.com/edume/internal/middleware"
	"github.com/edume/internal/model"
	"github.com/edume/internal/repository"
	"github.com/edume/internal/ws"
)

type ChatHandler struct {
	registry *chat.Registry
	posts    *repository.PostRepository
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
}

func NewChatHandler(registry *chat.Registry, posts *repository.PostRepository, chats *repository.ChatRepository, messages *repository.MessageRepository) *ChatHandler {
	return &ChatHandler{registry: registry, posts: posts, chats: chats, messages: messages}
}

type OpenChatRequest struct {
	PostID string `json:"post_id"`
}

// Open: «Написать автору»: существующий чат зрителя по посту или новый.
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PostID == "" {
		writeError(w, http.StatusBadRequest, "post_id required")
		return
	}
	post, err := h.posts.GetByID(r.Context(), req.PostID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		logger.Errorf("open chat: load post %s: %v", req.PostID, err)
		writeError(w, http.StatusInternalServerError, "failed to open chat")
		return
	}

	viewer := middleware.GetParticipant(r.Context())
	owner := model.Participant{ID: post.UserID, Name: post.UserName}
	c, err := h.registry.CreateOrGet(r.Context(), chat.PostRef{ID: post.ID, Title: post.Title}, owner, viewer)
	switch {
	case errors.Is(err, chat.ErrSelfChat):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logger.Errorf("open chat: post=%s viewer=%s: %v", post.ID, viewer.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to open chat")
		return
	}
	writeJSON(w, http.StatusOK, ws.NewChatView(*c, viewer.ID, time.Now()))
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chats, err := h.chats.ListByUser(r.Context(), userID)
	if err != nil {
		logger.Errorf("list chats user=%s: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	now := time.Now()
	out := make([]ws.ChatView, len(chats))
	for i, c := range chats {
		out[i] = ws.NewChatView(c, userID, now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

// Messages: история чата для участника.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "id")
	userID := middleware.GetUserID(r.Context())
	c, err := h.chats.GetByID(r.Context(), chatID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		logger.Errorf("chat messages %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if !c.HasParticipant(userID) {
		writeError(w, http.StatusForbidden, "not a member")
		return
	}
	msgs, err := h.messages.ListByChat(r.Context(), chatID)
	if err != nil {
		logger.Errorf("chat messages %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
