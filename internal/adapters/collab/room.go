package collab

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkaran/coedit/internal/core"
	"github.com/mkaran/coedit/internal/domain"
)

// handleJoin registers the connection in the target document's room.
// A connection already joined to a different document is moved: it
// leaves the old room first, and the old room's roster is refreshed.
// A repeat join for the same document just re-records identity and
// re-broadcasts the roster.
func (ctl *Controller) handleJoin(conn *wsConn, data []byte) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "collab").Str("conn", string(conn.id)).Msg("bad join payload")
		return
	}
	if p.DocumentID == "" || len(p.DocumentID) > domain.MaxDocumentIDLen {
		log.Warn().Str("module", "collab").Str("conn", string(conn.id)).Msg("join: invalid documentId")
		return
	}
	user, err := domain.NewUser(domain.UserID(p.UserID), p.UserName)
	if err != nil {
		log.Warn().Err(err).Str("module", "collab").Str("conn", string(conn.id)).Msg("join: invalid identity")
		return
	}

	doc := domain.DocumentID(p.DocumentID)
	_, prev, moved := ctl.Registry.Join(conn, doc, user.ID, user.Name)
	if moved {
		log.Info().Str("module", "collab").
			Str("conn", string(conn.id)).
			Str("from_doc", string(prev)).
			Str("doc", string(doc)).
			Msg("moved between rooms on re-join")
		ctl.broadcastUsers(prev)
	}
	ctl.broadcastUsers(doc)
}

// broadcastUsers pushes the de-duplicated roster to everyone in the
// room, sender included: every member's view of the roster refreshes on
// any membership change.
func (ctl *Controller) broadcastUsers(doc domain.DocumentID) {
	users := ctl.Registry.Snapshot(doc)
	if users == nil {
		return
	}
	b, err := json.Marshal(usersMessage{Type: TypeUsers, Users: users})
	if err != nil {
		log.Error().Err(err).Str("module", "collab").Str("doc", string(doc)).Msg("marshal users message")
		return
	}
	ctl.Registry.Broadcast(doc, b, core.ConnID(""))
}
