package collab

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/mkaran/coedit/internal/domain"
)

// handleContentUpdate relays the sender's current content state to
// every other member of its room. The payload is forwarded verbatim,
// stamped with the sender's identity; the relay keeps no edit history
// and does no merging, so concurrent edits are last-writer-wins.
func (ctl *Controller) handleContentUpdate(conn *wsConn, data []byte) {
	user, doc, ok := ctl.Registry.IdentityOf(conn.id)
	if !ok {
		// A client must join before it can broadcast edits.
		log.Debug().Str("module", "collab").Str("conn", string(conn.id)).Msg("content-update before join, dropped")
		return
	}

	var p contentPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "collab").Str("conn", string(conn.id)).Msg("bad content payload")
		return
	}
	if domain.DocumentID(p.DocumentID) != doc {
		log.Warn().Str("module", "collab").
			Str("conn", string(conn.id)).
			Str("doc", string(doc)).
			Str("claimed_doc", p.DocumentID).
			Msg("content-update for a document the connection is not joined to, dropped")
		return
	}

	out := contentUpdate{
		Type:       TypeContentUpdate,
		Content:    p.Content,
		UserID:     user.ID,
		UserName:   user.Name,
		DocumentID: doc,
	}
	b, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Str("module", "collab").Str("conn", string(conn.id)).Msg("marshal content update")
		return
	}
	ctl.Registry.Broadcast(doc, b, conn.id)
}
