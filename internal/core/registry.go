package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mkaran/coedit/internal/domain"
)

// identity is what a connection declared at join time.
type identity struct {
	user domain.User
	doc  domain.DocumentID
}

// room is the set of connections currently editing one document.
// It has no lock of its own; the registry mutex guards it.
type room struct {
	conns map[ConnID]Conn
}

// PublishResult reports delivery stats to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	DocumentID  domain.DocumentID `json:"documentId"`
	MemberCount int               `json:"memberCount"`
}

// Registry is the authoritative map of documentId → room and
// connId → identity. One mutex guards both maps so membership and the
// reverse lookup can never disagree. Construct one per server; there is
// no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[domain.DocumentID]*room
	idents map[ConnID]identity
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[domain.DocumentID]*room),
		idents: make(map[ConnID]identity),
	}
}

// Join adds c to the room for doc under the given identity, creating
// the room if absent and assigning the user's display color. A
// connection already joined elsewhere is removed from its previous room
// first; prev names that room so the caller can refresh its roster.
func (r *Registry) Join(c Conn, doc domain.DocumentID, userID domain.UserID, userName string) (joined domain.User, prev domain.DocumentID, moved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.idents[c.ID()]; ok && old.doc != doc {
		r.removeLocked(c.ID())
		prev, moved = old.doc, true
	}

	u := domain.User{ID: userID, Name: userName, Color: ColorFor(userID)}
	rm, ok := r.rooms[doc]
	if !ok {
		rm = &room{conns: make(map[ConnID]Conn)}
		r.rooms[doc] = rm
	}
	rm.conns[c.ID()] = c
	r.idents[c.ID()] = identity{user: u, doc: doc}

	log.Info().Str("module", "core.registry").
		Str("conn", string(c.ID())).
		Str("doc", string(doc)).
		Str("user", string(userID)).
		Msg("connection joined")
	return u, prev, moved
}

// Leave removes the connection from its room, tearing the room down if
// it became empty. Returns the affected document so the caller can
// broadcast the updated roster; ok is false for never-joined handles.
func (r *Registry) Leave(id ConnID) (domain.DocumentID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.removeLocked(id)
	if ok {
		log.Info().Str("module", "core.registry").
			Str("conn", string(id)).
			Str("doc", string(doc)).
			Msg("connection left")
	}
	return doc, ok
}

// removeLocked needs r.mu held for writing.
func (r *Registry) removeLocked(id ConnID) (domain.DocumentID, bool) {
	ident, ok := r.idents[id]
	if !ok {
		return "", false
	}
	delete(r.idents, id)
	if rm, ok := r.rooms[ident.doc]; ok {
		delete(rm.conns, id)
		if len(rm.conns) == 0 {
			delete(r.rooms, ident.doc)
			log.Info().Str("module", "core.registry").
				Str("doc", string(ident.doc)).
				Msg("room emptied, torn down")
		}
	}
	return ident.doc, true
}

// IdentityOf reports the identity and room a connection joined with.
func (r *Registry) IdentityOf(id ConnID) (domain.User, domain.DocumentID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.idents[id]
	if !ok {
		return domain.User{}, "", false
	}
	return ident.user, ident.doc, true
}

// Snapshot returns the room's roster de-duplicated by user id: two tabs
// of the same user collapse into one entry. Nil for unknown rooms.
func (r *Registry) Snapshot(doc domain.DocumentID) []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[doc]
	if !ok {
		return nil
	}
	seen := make(map[domain.UserID]struct{}, len(rm.conns))
	out := make([]domain.User, 0, len(rm.conns))
	for id := range rm.conns {
		ident, ok := r.idents[id]
		if !ok {
			continue
		}
		if _, dup := seen[ident.user.ID]; dup {
			continue
		}
		seen[ident.user.ID] = struct{}{}
		out = append(out, ident.user)
	}
	return out
}

// Broadcast delivers f to every connection in doc's room except
// exclude (pass "" to deliver to everyone). A vanished room is a no-op.
// Individual send failures are logged and skipped so one dead
// connection never blocks delivery to the rest of the room.
//
// The write lock is deliberate: concurrent broadcasts must not
// interleave their per-peer sends, or two members of the same room can
// observe the same pair of updates in opposite orders. Sends are
// non-blocking channel pushes, so the loop never stalls the lock.
func (r *Registry) Broadcast(doc domain.DocumentID, f Frame, exclude ConnID) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := PublishResult{}
	rm, ok := r.rooms[doc]
	if !ok {
		return res
	}
	for id, c := range rm.conns {
		if id == exclude {
			continue
		}
		if err := c.TrySend(f); err != nil {
			log.Warn().Err(err).Str("module", "core.registry").
				Str("conn", string(id)).
				Str("doc", string(doc)).
				Msg("send failed, skipping peer")
			res.Dropped++
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.registry").
		Str("doc", string(doc)).
		Int("sent_to", res.SentTo).
		Int("dropped", res.Dropped).
		Msg("broadcast result")
	return res
}

// Rooms lists active rooms with member counts.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for doc, rm := range r.rooms {
		out = append(out, RoomInfo{DocumentID: doc, MemberCount: len(rm.conns)})
	}
	return out
}
