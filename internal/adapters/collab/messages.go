package collab

import (
	"encoding/json"

	"github.com/mkaran/coedit/internal/domain"
)

const (
	TypeJoin          = "join"
	TypeContentUpdate = "content-update"
	TypeUsers         = "users"
)

type joinPayload struct {
	Type       string `json:"type"`
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
}

// contentPayload keeps Content raw: the relay forwards editor state
// verbatim and never inspects it.
type contentPayload struct {
	Type       string          `json:"type"`
	Content    json.RawMessage `json:"content"`
	DocumentID string          `json:"documentId"`
}

type contentUpdate struct {
	Type       string            `json:"type"`
	Content    json.RawMessage   `json:"content"`
	UserID     domain.UserID     `json:"userId"`
	UserName   string            `json:"userName"`
	DocumentID domain.DocumentID `json:"documentId"`
}

type usersMessage struct {
	Type  string        `json:"type"`
	Users []domain.User `json:"users"`
}
