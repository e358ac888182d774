package core

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaran/coedit/internal/domain"
)

type fakeConn struct {
	id    ConnID
	fail  bool
	yield bool // yield on every send to widen interleaving windows

	mu     sync.Mutex
	frames []Frame
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: ConnID(id)} }

func (c *fakeConn) ID() ConnID { return c.id }

func (c *fakeConn) TrySend(f Frame) error {
	if c.fail {
		return errors.New("send failed")
	}
	if c.yield {
		runtime.Gosched()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) sequence() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}

func TestJoinCreatesRoomAndAssignsColor(t *testing.T) {
	reg := NewRegistry()
	c := newFakeConn("c1")

	u, prev, moved := reg.Join(c, "doc1", "alice", "Alice")

	assert.False(t, moved)
	assert.Empty(t, prev)
	assert.Equal(t, ColorFor("alice"), u.Color)

	users := reg.Snapshot("doc1")
	require.Len(t, users, 1)
	assert.Equal(t, domain.UserID("alice"), users[0].ID)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, ColorFor("alice"), users[0].Color)
}

func TestSnapshotDeduplicatesByUserID(t *testing.T) {
	reg := NewRegistry()
	// Two tabs of the same user plus one other user.
	reg.Join(newFakeConn("tab1"), "doc2", "alice", "Alice")
	reg.Join(newFakeConn("tab2"), "doc2", "alice", "Alice")
	reg.Join(newFakeConn("c3"), "doc2", "bob", "Bob")

	users := reg.Snapshot("doc2")
	assert.Len(t, users, 2)

	ids := make(map[domain.UserID]int)
	for _, u := range users {
		ids[u.ID]++
	}
	assert.Equal(t, 1, ids["alice"])
	assert.Equal(t, 1, ids["bob"])
}

func TestLeaveTearsDownEmptyRoom(t *testing.T) {
	reg := NewRegistry()
	c1 := newFakeConn("c1")
	c2 := newFakeConn("c2")
	reg.Join(c1, "doc1", "alice", "Alice")
	reg.Join(c2, "doc1", "bob", "Bob")

	doc, ok := reg.Leave(c1.id)
	require.True(t, ok)
	assert.Equal(t, domain.DocumentID("doc1"), doc)
	assert.Len(t, reg.Snapshot("doc1"), 1)

	doc, ok = reg.Leave(c2.id)
	require.True(t, ok)
	assert.Equal(t, domain.DocumentID("doc1"), doc)

	// Room is gone: lookups are no-ops, not errors.
	assert.Nil(t, reg.Snapshot("doc1"))
	assert.Empty(t, reg.Rooms())
	res := reg.Broadcast("doc1", Frame("x"), "")
	assert.Zero(t, res.SentTo)
	assert.Zero(t, res.Dropped)
}

func TestLeaveNeverJoinedIsNoop(t *testing.T) {
	reg := NewRegistry()
	doc, ok := reg.Leave("ghost")
	assert.False(t, ok)
	assert.Empty(t, doc)

	// Idempotent: leaving twice is also fine.
	c := newFakeConn("c1")
	reg.Join(c, "doc1", "alice", "Alice")
	_, ok = reg.Leave(c.id)
	require.True(t, ok)
	_, ok = reg.Leave(c.id)
	assert.False(t, ok)
}

func TestJoinMovesConnectionBetweenRooms(t *testing.T) {
	reg := NewRegistry()
	c := newFakeConn("c1")
	reg.Join(c, "doc1", "alice", "Alice")

	_, prev, moved := reg.Join(c, "doc2", "alice", "Alice")
	require.True(t, moved)
	assert.Equal(t, domain.DocumentID("doc1"), prev)

	// The connection is in exactly one room; the emptied one is gone.
	assert.Nil(t, reg.Snapshot("doc1"))
	assert.Len(t, reg.Snapshot("doc2"), 1)

	_, doc, ok := reg.IdentityOf(c.id)
	require.True(t, ok)
	assert.Equal(t, domain.DocumentID("doc2"), doc)
}

func TestRejoinSameRoomIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	c := newFakeConn("c1")
	reg.Join(c, "doc1", "alice", "Alice")
	_, prev, moved := reg.Join(c, "doc1", "alice", "Alice A.")

	assert.False(t, moved)
	assert.Empty(t, prev)
	users := reg.Snapshot("doc1")
	require.Len(t, users, 1)
	assert.Equal(t, "Alice A.", users[0].Name)
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry()
	cx := newFakeConn("x")
	cy := newFakeConn("y")
	reg.Join(cx, "doc1", "alice", "Alice")
	reg.Join(cy, "doc1", "bob", "Bob")

	res := reg.Broadcast("doc1", Frame("edit"), cx.id)
	assert.Equal(t, 1, res.SentTo)
	assert.Zero(t, cx.received())
	assert.Equal(t, 1, cy.received())
}

func TestBroadcastIsolatedPerRoom(t *testing.T) {
	reg := NewRegistry()
	ca := newFakeConn("a")
	cb := newFakeConn("b")
	reg.Join(ca, "docA", "alice", "Alice")
	reg.Join(cb, "docB", "bob", "Bob")

	reg.Broadcast("docA", Frame("edit"), "")
	assert.Equal(t, 1, ca.received())
	assert.Zero(t, cb.received())
}

func TestBroadcastSkipsFailedPeers(t *testing.T) {
	reg := NewRegistry()
	dead := newFakeConn("dead")
	dead.fail = true
	alive := newFakeConn("alive")
	reg.Join(dead, "doc1", "alice", "Alice")
	reg.Join(alive, "doc1", "bob", "Bob")

	res := reg.Broadcast("doc1", Frame("edit"), "")
	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, alive.received())
}

func TestConcurrentBroadcastsDeliverInOneOrder(t *testing.T) {
	reg := NewRegistry()
	peers := make([]*fakeConn, 6)
	for i := range peers {
		peers[i] = newFakeConn(fmt.Sprintf("c%d", i))
		peers[i].yield = true
		reg.Join(peers[i], "doc1", domain.UserID(fmt.Sprintf("u%d", i)), "User")
	}

	// Several goroutines hammer the same room. Delivery order within
	// one broadcast must never interleave with another, so every peer
	// has to end up with the exact same sequence.
	const senders = 4
	const rounds = 25
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				reg.Broadcast("doc1", Frame(fmt.Sprintf("s%d-%d", s, i)), "")
			}
		}(s)
	}
	wg.Wait()

	want := peers[0].sequence()
	require.Len(t, want, senders*rounds)
	for _, p := range peers[1:] {
		assert.Equal(t, want, p.sequence(), "peer %s diverged from peer c0", p.id)
	}
}

func TestRoomsListsMemberCounts(t *testing.T) {
	reg := NewRegistry()
	reg.Join(newFakeConn("c1"), "doc1", "alice", "Alice")
	reg.Join(newFakeConn("c2"), "doc1", "bob", "Bob")
	reg.Join(newFakeConn("c3"), "doc2", "carol", "Carol")

	rooms := reg.Rooms()
	require.Len(t, rooms, 2)
	counts := make(map[domain.DocumentID]int)
	for _, r := range rooms {
		counts[r.DocumentID] = r.MemberCount
	}
	assert.Equal(t, 2, counts["doc1"])
	assert.Equal(t, 1, counts["doc2"])
}
