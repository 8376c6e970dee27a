package websocket

import (
	"sort"
	"sync"
)

// Registry tracks which users are currently joined to which document
// session. It holds no durable state. Invariant: a document id has an entry
// iff at least one user is joined; the entry is dropped the moment its
// member set empties.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]struct{})}
}

// AddMember inserts a user into a document's member set, creating the set if
// absent. Idempotent.
func (r *Registry) AddMember(documentID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[documentID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[documentID] = members
	}
	members[userID] = struct{}{}
}

// RemoveMember removes a user from a document's member set and reports
// whether the user was a member. No-op when the user or document is absent.
func (r *Registry) RemoveMember(documentID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[documentID]
	if !ok {
		return false
	}
	if _, ok := members[userID]; !ok {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, documentID)
	}
	return true
}

// Members returns a sorted snapshot of a document's current member ids;
// empty when the document has no session.
func (r *Registry) Members(documentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]string, 0, len(r.rooms[documentID]))
	for userID := range r.rooms[documentID] {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members
}

// Snapshot returns every active session and its sorted member ids.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string][]string, len(r.rooms))
	for documentID, members := range r.rooms {
		userIDs := make([]string, 0, len(members))
		for userID := range members {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)
		snapshot[documentID] = userIDs
	}
	return snapshot
}
