package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/service"
	"github.com/leafflow/chat-service/internal/store/storetest"
)

// staticVerifier maps raw tokens to principals, bypassing JWT in tests.
type staticVerifier map[string]chat.Principal

func (v staticVerifier) Verify(token string) (chat.Principal, error) {
	if p, ok := v[token]; ok {
		return p, nil
	}
	return chat.Principal{}, chat.ErrForbidden
}

func newTestServer(f *storetest.Fake) http.Handler {
	srv := &Server{
		Chat: service.New(f),
		Verifier: staticVerifier{
			"user-7":  {Kind: chat.KindUser, SubjectID: 7},
			"user-99": {Kind: chat.KindUser, SubjectID: 99},
			"admin-1": {Kind: chat.KindAdmin, SubjectID: 1},
		},
	}
	return srv.Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seedSupport(f *storetest.Fake, userID int64) chat.Conversation {
	conv := chat.Conversation{
		ID:        uuid.New(),
		TopicType: "support",
		Status:    chat.ConversationOpen,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.SeedConversation(conv, userID)
	return conv
}

func TestHealthz(t *testing.T) {
	h := newTestServer(storetest.New())
	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(storetest.New())

	rec := doRequest(t, h, http.MethodGet, "/v1/conversations", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/conversations", "bogus", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestOpenSupportConversationStatusCodes(t *testing.T) {
	h := newTestServer(storetest.New())

	rec := doRequest(t, h, http.MethodPost, "/v1/conversations/support", "user-7", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("first open: status = %d, want 201, body %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/conversations/support", "user-7", "")
	if rec.Code != http.StatusOK {
		t.Errorf("second open: status = %d, want 200", rec.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)
	clientMsgID := uuid.New()
	body := `{"client_msg_id":"` + clientMsgID.String() + `","body":"hello"}`

	rec := doRequest(t, h, http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/messages", "user-7", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body)
	}

	var got struct {
		ID             string `json:"id"`
		ConversationID string `json:"conversation_id"`
		Type           string `json:"type"`
		Body           string `json:"body"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ConversationID != conv.ID.String() || got.Type != "text" || got.Body != "hello" {
		t.Errorf("response = %+v", got)
	}

	// Replay: 200 with the same message id.
	rec = doRequest(t, h, http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/messages", "user-7", body)
	if rec.Code != http.StatusOK {
		t.Errorf("replay: status = %d, want 200", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)
	path := "/v1/conversations/" + conv.ID.String() + "/messages"

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{{"},
		{"missing client_msg_id", `{"body":"x"}`},
		{"bad message type", `{"client_msg_id":"` + uuid.NewString() + `","type":"gif"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, path, "user-7", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422", rec.Code)
			}
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"unknown conversation", "/v1/conversations/" + uuid.NewString(), "user-7", http.StatusNotFound},
		{"non-participant", "/v1/conversations/" + conv.ID.String(), "user-99", http.StatusForbidden},
		{"malformed id", "/v1/conversations/nope", "user-7", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodGet, tt.path, tt.token, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestListMessagesPaging(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		f.Msgs = append(f.Msgs, chat.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderKind:     chat.KindUser,
			SenderID:       7,
			Type:           chat.MessageText,
			ClientMsgID:    uuid.New(),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	rec := doRequest(t, h, http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/messages?limit=2", "user-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var page struct {
		Items      []json.RawMessage `json:"items"`
		NextCursor *string           `json:"next_cursor"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	if page.NextCursor == nil {
		t.Fatal("next_cursor missing")
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/messages?limit=10&cursor="+*page.NextCursor, "user-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("second page: status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode second page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("second page items = %d, want 2", len(page.Items))
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)

	body := `{"last_message_id":"` + uuid.NewString() + `"}`
	rec := doRequest(t, h, http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/read", "user-7", body)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204, body %s", rec.Code, rec.Body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	f := storetest.New()
	h := newTestServer(f)
	conv := seedSupport(f, 7)

	// Plain users are rejected.
	rec := doRequest(t, h, http.MethodGet, "/v1/admin/conversations", "user-7", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("user on admin list: status = %d, want 403", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/admin/conversations", "admin-1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("admin list: status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/admin/conversations/"+conv.ID.String()+"/assign", "admin-1", `{"admin_id":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: status = %d, body %s", rec.Code, rec.Body)
	}
	var got struct {
		AssigneeAdminID *int64 `json:"assignee_admin_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AssigneeAdminID == nil || *got.AssigneeAdminID != 42 {
		t.Errorf("assignee = %v, want 42", got.AssigneeAdminID)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/admin/conversations/"+conv.ID.String()+"/assign", "admin-1", `{"admin_id":0}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("assign without admin_id: status = %d, want 422", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/admin/conversations/"+conv.ID.String()+"/close", "admin-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status = %d, body %s", rec.Code, rec.Body)
	}
	var closed struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if closed.Status != "closed" {
		t.Errorf("status = %q, want closed", closed.Status)
	}
}

func TestAdminListStatusValidation(t *testing.T) {
	h := newTestServer(storetest.New())
	rec := doRequest(t, h, http.MethodGet, "/v1/admin/conversations?status=weird", "admin-1", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestCorrelationIDHeader(t *testing.T) {
	h := newTestServer(storetest.New())

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "")
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("response should carry a generated X-Correlation-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Errorf("correlation id = %q, want echo of abc-123", got)
	}
}
