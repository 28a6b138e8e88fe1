package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialink/realtime-platform/internal/middleware"
	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/internal/ws"
	"github.com/socialink/realtime-platform/pkg/logger"
)

// testUserHeader carries the acting user in tests, standing in for the JWT
// middleware.
const testUserHeader = "X-Test-User"

func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.UserIDKey, r.Header.Get(testUserHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newChatTestRouter(t *testing.T, users ...string) (http.Handler, *service.ConversationService) {
	t.Helper()
	mem := store.NewMemory()
	for _, u := range users {
		mem.AddUser(u)
	}
	svc := service.NewConversationService(mem, mem, mem, logger.NewNop())
	gateway := ws.NewChatGateway(ws.ChatGatewayConfig{}, svc, logger.NewNop())
	h := NewChatHandler(svc, gateway, logger.NewNop())

	r := chi.NewRouter()
	r.Use(asUser)
	r.Route("/chat", func(r chi.Router) {
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{id}", h.GetConversation)
		r.Get("/conversations/{id}/messages", h.GetMessages)
		r.Post("/conversations/{id}/read-all", h.MarkAllRead)
		r.Get("/direct/{userId}", h.GetOrCreateDirectConversation)
		r.Post("/messages", h.SendMessage)
		r.Post("/messages/{id}/read", h.MarkMessageRead)
		r.Delete("/messages/{id}", h.DeleteMessage)
	})
	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set(testUserHeader, userID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestCreateAndListConversations(t *testing.T) {
	router, _ := newChatTestRouter(t, "alice", "bob")

	w := doJSON(t, router, http.MethodPost, "/chat/conversations", "alice",
		model.CreateConversationRequest{ParticipantIDs: []string{"bob"}})
	require.Equal(t, http.StatusCreated, w.Code)

	var conv model.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&conv))
	assert.NotEmpty(t, conv.ID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Participants)

	w = doJSON(t, router, http.MethodGet, "/chat/conversations", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var convs []model.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&convs))
	require.Len(t, convs, 1)
	assert.Equal(t, conv.ID, convs[0].ID)
}

func TestCreateConversationUnknownParticipant(t *testing.T) {
	router, _ := newChatTestRouter(t, "alice")

	w := doJSON(t, router, http.MethodPost, "/chat/conversations", "alice",
		model.CreateConversationRequest{ParticipantIDs: []string{"ghost"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrCreateDirectConversation(t *testing.T) {
	aliceID := uuid.Must(uuid.NewV7()).String()
	bobID := uuid.Must(uuid.NewV7()).String()
	router, _ := newChatTestRouter(t, aliceID, bobID)

	w := doJSON(t, router, http.MethodGet, "/chat/direct/"+bobID, aliceID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var first model.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))

	w = doJSON(t, router, http.MethodGet, "/chat/direct/"+aliceID, bobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var second model.Conversation
	require.NoError(t, json.NewDecoder(w.Body).Decode(&second))
	assert.Equal(t, first.ID, second.ID)

	// The path parameter is validated like every other ID parameter.
	w = doJSON(t, router, http.MethodGet, "/chat/direct/not-a-uuid", aliceID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// A self-direct request is rejected, not served from an existing pair.
	w = doJSON(t, router, http.MethodGet, "/chat/direct/"+aliceID, aliceID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAndFetchMessages(t *testing.T) {
	router, svc := newChatTestRouter(t, "alice", "bob")
	conv, err := svc.CreateConversation(context.Background(), "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/chat/messages", "alice",
		model.SendMessageRequest{ConversationID: conv.ID, Content: "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg model.Message
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msg))
	assert.Equal(t, []string{"alice"}, msg.ReadBy)

	w = doJSON(t, router, http.MethodGet, "/chat/conversations/"+conv.ID+"/messages", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []model.Message
	require.NoError(t, json.NewDecoder(w.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.False(t, msgs[0].IsRead)
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	router, _ := newChatTestRouter(t, "alice")

	w := doJSON(t, router, http.MethodPost, "/chat/messages", "alice",
		model.SendMessageRequest{ConversationID: "whatever"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesForbiddenForOutsider(t *testing.T) {
	router, svc := newChatTestRouter(t, "alice", "bob", "mallory")
	conv, err := svc.CreateConversation(context.Background(), "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodGet, "/chat/conversations/"+conv.ID+"/messages", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkMessageReadEndpoint(t *testing.T) {
	router, svc := newChatTestRouter(t, "alice", "bob")
	conv, err := svc.CreateConversation(context.Background(), "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(context.Background(), "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hello",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/chat/messages/"+msg.ID+"/read", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/chat/conversations/"+conv.ID+"/read-all", "bob", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteMessageEndpoint(t *testing.T) {
	router, svc := newChatTestRouter(t, "alice", "bob")
	conv, err := svc.CreateConversation(context.Background(), "alice", &model.CreateConversationRequest{
		ParticipantIDs: []string{"bob"},
	})
	require.NoError(t, err)
	msg, err := svc.SendMessage(context.Background(), "alice", &model.SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "oops",
	})
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/chat/messages/"+msg.ID, "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/chat/messages/"+msg.ID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestGetConversationValidatesID(t *testing.T) {
	router, _ := newChatTestRouter(t, "alice")

	w := doJSON(t, router, http.MethodGet, "/chat/conversations/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
