package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/store"
)

// AdminListConversations handles GET /v1/admin/conversations with
// optional status and assignee_admin_id filters.
func (s *Server) AdminListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ConversationFilter{
		Cursor: q.Get("cursor"),
		Limit:  parseLimit(q.Get("limit"), 20, 100),
	}

	if raw := q.Get("status"); raw != "" {
		st := chat.ConversationStatus(raw)
		if st != chat.ConversationOpen && st != chat.ConversationClosed {
			writeError(w, fmt.Errorf("%w: unknown status %q", chat.ErrValidation, raw))
			return
		}
		f.Status = &st
	}
	if raw := q.Get("assignee_admin_id"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: bad assignee_admin_id", chat.ErrValidation))
			return
		}
		f.AssigneeAdminID = &n
	}

	items, err := s.Chat.ListConversationsForAdmin(r.Context(), principal(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationPage(items))
}

// AdminGetConversation handles GET /v1/admin/conversations/{id}.
func (s *Server) AdminGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p := principal(r)
	if !p.IsAdmin() {
		writeError(w, fmt.Errorf("admin access required: %w", chat.ErrForbidden))
		return
	}

	conv, err := s.Chat.GetConversation(r.Context(), id, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationJSON(conv))
}

type assignReq struct {
	AdminID int64 `json:"admin_id"`
}

// AssignConversation handles POST /v1/admin/conversations/{id}/assign.
func (s *Server) AssignConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req assignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", chat.ErrValidation))
		return
	}
	if req.AdminID <= 0 {
		writeError(w, fmt.Errorf("%w: admin_id required", chat.ErrValidation))
		return
	}

	conv, err := s.Chat.AssignConversation(r.Context(), id, req.AdminID, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationJSON(conv))
}

// CloseConversation handles POST /v1/admin/conversations/{id}/close.
func (s *Server) CloseConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.Chat.CloseConversation(r.Context(), id, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationJSON(conv))
}
