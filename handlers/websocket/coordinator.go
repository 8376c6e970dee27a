package websocket

import (
	"context"
	"errors"
	"mdcollab/core"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Channel is one client's persistent bidirectional connection to the
// coordinator.
type Channel interface {
	ID() string
	Emit(event string, payload any) error
}

// SessionStore is the slice of the persistence layer the coordinator needs.
// Authorization is re-derived from it on every call, never cached, so a
// revoked permission takes effect on the next event.
type SessionStore interface {
	GetDocument(ctx context.Context, id string) (*core.Document, error)
	GetUser(ctx context.Context, id string) (*core.User, error)
	UpdateDocument(ctx context.Context, id string, patch core.DocumentPatch) (*core.Document, error)
}

// Outbound event payloads.
type (
	UserJoinedEvent struct {
		UserID    string    `json:"userId"`
		Username  string    `json:"username"`
		Timestamp time.Time `json:"timestamp"`
	}

	RoomStateEvent struct {
		DocumentID string   `json:"documentId"`
		Users      []string `json:"users"`
	}

	DocumentUpdatedEvent struct {
		Content   string    `json:"content"`
		UpdatedBy string    `json:"updatedBy"`
		Timestamp time.Time `json:"timestamp"`
	}

	CursorUpdateEvent struct {
		UserID    string    `json:"userId"`
		Position  any       `json:"position"`
		Timestamp time.Time `json:"timestamp"`
	}

	UserLeftEvent struct {
		UserID    string    `json:"userId"`
		Timestamp time.Time `json:"timestamp"`
	}

	ErrorEvent struct {
		Message string `json:"message"`
	}
)

// roomBinding pins a channel to the one session it has joined. A channel may
// join at most one document per connection; re-join requires a prior leave.
type roomBinding struct {
	documentID string
	userID     string
}

// Coordinator authorizes join/update/leave/cursor events against the
// document store, owns the session registry, and fans broadcasts out to the
// channels subscribed to a document room. Fan-out is an explicit loop over a
// snapshot of the room's channel handles minus the sender.
type Coordinator struct {
	store    SessionStore
	registry *Registry

	mu       sync.Mutex
	rooms    map[string]map[string]Channel // documentID -> channel id -> channel
	bindings map[string]roomBinding        // channel id -> joined session
}

func NewCoordinator(store SessionStore) *Coordinator {
	return &Coordinator{
		store:    store,
		registry: NewRegistry(),
		rooms:    make(map[string]map[string]Channel),
		bindings: make(map[string]roomBinding),
	}
}

// ActiveSessions returns a snapshot of every live session and its members.
func (c *Coordinator) ActiveSessions() map[string][]string {
	return c.registry.Snapshot()
}

// Join subscribes a channel to a document room after verifying that the
// document and user exist and that the user is the owner or the document is
// public. Peers are told about the new member; the joining channel alone
// receives the room state, computed after the registry mutation so it
// includes the joiner.
func (c *Coordinator) Join(ctx context.Context, ch Channel, documentID, userID string) {
	log := logrus.WithFields(logrus.Fields{
		"channel_id":  ch.ID(),
		"document_id": documentID,
		"user_id":     userID,
	})

	document, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.sendError(ch, "Document not found")
			return
		}
		log.WithError(err).Error("Failed to load document for join")
		c.sendError(ch, "Failed to load document")
		return
	}

	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.sendError(ch, "User not found")
			return
		}
		log.WithError(err).Error("Failed to load user for join")
		c.sendError(ch, "Failed to load user")
		return
	}

	if !document.CanAccess(userID) {
		log.Warn("Join rejected: access denied")
		c.sendError(ch, "Access denied")
		return
	}

	c.mu.Lock()
	if bound, ok := c.bindings[ch.ID()]; ok {
		if bound.documentID != documentID || bound.userID != userID {
			c.mu.Unlock()
			c.sendError(ch, "Already joined another document")
			return
		}
		// Re-join of the same session: resend the room state only.
		members := c.registry.Members(documentID)
		c.mu.Unlock()
		c.emit(ch, "room-state", RoomStateEvent{DocumentID: documentID, Users: members})
		return
	}

	room, ok := c.rooms[documentID]
	if !ok {
		room = make(map[string]Channel)
		c.rooms[documentID] = room
	}
	room[ch.ID()] = ch
	c.bindings[ch.ID()] = roomBinding{documentID: documentID, userID: userID}
	c.registry.AddMember(documentID, userID)
	peers := c.peersLocked(documentID, ch.ID())
	members := c.registry.Members(documentID)
	c.mu.Unlock()

	log.Info("Channel joined document session")
	now := time.Now()
	c.broadcast(peers, "user-joined", UserJoinedEvent{
		UserID:    userID,
		Username:  user.Username,
		Timestamp: now,
	})
	c.emit(ch, "room-state", RoomStateEvent{DocumentID: documentID, Users: members})
}

// Update persists an edit last-write-wins and relays it to every room
// channel except the sender. The sender receives no echo.
func (c *Coordinator) Update(ctx context.Context, ch Channel, documentID, content, userID string) {
	log := logrus.WithFields(logrus.Fields{
		"channel_id":  ch.ID(),
		"document_id": documentID,
		"user_id":     userID,
	})

	document, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.sendError(ch, "Document not found")
			return
		}
		log.WithError(err).Error("Failed to load document for update")
		c.sendError(ch, "Failed to load document")
		return
	}

	if !document.CanAccess(userID) {
		log.Warn("Update rejected: access denied")
		c.sendError(ch, "Access denied")
		return
	}

	now := time.Now()
	if _, err := c.store.UpdateDocument(ctx, documentID, core.DocumentPatch{
		Content:      &content,
		LastSyncedAt: &now,
	}); err != nil {
		log.WithError(err).Error("Failed to persist document update")
		c.sendError(ch, "Failed to save document")
		return
	}

	c.mu.Lock()
	peers := c.peersLocked(documentID, ch.ID())
	c.mu.Unlock()

	c.broadcast(peers, "document-updated", DocumentUpdatedEvent{
		Content:   content,
		UpdatedBy: userID,
		Timestamp: now,
	})
}

// CursorPosition relays an ephemeral presence signal to the rest of the
// room. No authorization, no persistence.
func (c *Coordinator) CursorPosition(ch Channel, documentID string, position any, userID string) {
	c.mu.Lock()
	peers := c.peersLocked(documentID, ch.ID())
	c.mu.Unlock()

	c.broadcast(peers, "cursor-update", CursorUpdateEvent{
		UserID:    userID,
		Position:  position,
		Timestamp: time.Now(),
	})
}

// Leave removes a channel from its document room and tells the remaining
// members. Leaving a room the channel never joined is a no-op.
func (c *Coordinator) Leave(ch Channel, documentID, userID string) {
	c.mu.Lock()
	bound, ok := c.bindings[ch.ID()]
	if !ok || bound.documentID != documentID {
		c.mu.Unlock()
		return
	}
	// The binding, not the payload, decides whose membership is dropped.
	userID = bound.userID
	delete(c.bindings, ch.ID())
	if room, ok := c.rooms[documentID]; ok {
		delete(room, ch.ID())
		if len(room) == 0 {
			delete(c.rooms, documentID)
		}
	}
	// The user stays a member while any of their other channels is still in
	// the room; only the last one out drops the membership.
	departed := !c.userStillInRoomLocked(documentID, userID)
	if departed {
		c.registry.RemoveMember(documentID, userID)
	}
	peers := c.peersLocked(documentID, ch.ID())
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"channel_id":  ch.ID(),
		"document_id": documentID,
		"user_id":     userID,
	}).Info("Channel left document session")

	if departed {
		c.broadcast(peers, "user-left", UserLeftEvent{
			UserID:    userID,
			Timestamp: time.Now(),
		})
	}
}

// userStillInRoomLocked reports whether any other channel in the room is
// bound to the given user. Callers must hold c.mu.
func (c *Coordinator) userStillInRoomLocked(documentID, userID string) bool {
	for channelID := range c.rooms[documentID] {
		if bound, ok := c.bindings[channelID]; ok && bound.userID == userID {
			return true
		}
	}
	return false
}

// Disconnect is the transport-loss path: an implicit leave for the one room
// the channel had joined, scoped by its binding rather than a sweep over
// every room in the registry.
func (c *Coordinator) Disconnect(ch Channel) {
	c.mu.Lock()
	bound, ok := c.bindings[ch.ID()]
	c.mu.Unlock()
	if !ok {
		return
	}
	c.Leave(ch, bound.documentID, bound.userID)
}

// peersLocked snapshots a room's channels, excluding one channel id.
// Callers must hold c.mu.
func (c *Coordinator) peersLocked(documentID, excludeChannelID string) []Channel {
	room := c.rooms[documentID]
	peers := make([]Channel, 0, len(room))
	for id, peer := range room {
		if id == excludeChannelID {
			continue
		}
		peers = append(peers, peer)
	}
	return peers
}

func (c *Coordinator) broadcast(peers []Channel, event string, payload any) {
	for _, peer := range peers {
		c.emit(peer, event, payload)
	}
}

func (c *Coordinator) emit(ch Channel, event string, payload any) {
	if err := ch.Emit(event, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel_id": ch.ID(),
			"event":      event,
		}).WithError(err).Warn("Failed to emit event")
	}
}

// sendError reports a failure to the triggering channel only; no state is
// mutated and nothing reaches the rest of the room.
func (c *Coordinator) sendError(ch Channel, message string) {
	c.emit(ch, "error", ErrorEvent{Message: message})
}
