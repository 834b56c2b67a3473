package registry

import (
	"golang.org/x/exp/slices"
)

// member is a table row. seenEpoch is the last election epoch delivered to
// this member by Poll.
type member struct {
	Node
	seenEpoch uint64
}

// membershipTable is the registry's roster: live members in registration order
// plus the captain reference. It does no locking; Registry owns the lock.
//
// Invariants:
//   - members are ordered by ascending ID (ids are handed out increasingly and
//     appended)
//   - captain, when set, names a row currently in members
//   - nextID only grows
type membershipTable struct {
	members []member
	captain *Node
	nextID  int64
}

func (t *membershipTable) add(name string, epoch uint64) Node {
	n := Node{ID: t.nextID, Name: name}
	t.nextID++
	t.members = append(t.members, member{Node: n, seenEpoch: epoch})
	return n
}

func (t *membershipTable) index(id int64) int {
	return slices.IndexFunc(t.members, func(m member) bool { return m.ID == id })
}

// remove deletes the row for id and clears the captain if it was that row.
// It reports whether a row matched and whether the captain was cleared.
func (t *membershipTable) remove(id int64) (removed, wasCaptain bool) {
	idx := t.index(id)
	if idx < 0 {
		return false, false
	}
	t.members = slices.Delete(t.members, idx, idx+1)
	if t.captain != nil && t.captain.ID == id {
		t.captain = nil
		return true, true
	}
	return true, false
}

// after returns the first member with an ID greater than id. Since rows are
// ordered by ID this walks the table in order even while rows come and go.
func (t *membershipTable) after(id int64) (Node, bool) {
	for _, m := range t.members {
		if m.ID > id {
			return m.Node, true
		}
	}
	return Node{}, false
}

func (t *membershipTable) snapshot() []Node {
	nodes := make([]Node, len(t.members))
	for i, m := range t.members {
		nodes[i] = m.Node
	}
	return nodes
}
