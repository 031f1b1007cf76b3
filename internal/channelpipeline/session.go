package channelpipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChannelSession is the persistent binding from a platform user+chat to an
// agent, spec.md §3's `ChannelSession{id, channelId, workspaceId, senderId,
// platformChatId, agentId, lastActiveAt}`, unique by (channelId, senderId,
// platformChatId).
type ChannelSession struct {
	ID             string
	ChannelID      string
	WorkspaceID    string
	SenderID       string
	PlatformChatID string
	AgentID        string
	LastActiveAt   time.Time
}

// SessionStore upserts and looks up ChannelSessions in memory. The
// PersistenceRPC collaborator owns the durable copy; this in-process cache
// is what the pipeline consults on every inbound message to avoid an RPC
// round-trip per request.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*ChannelSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*ChannelSession)}
}

func sessionKey(channelID, senderID, platformChatID string) string {
	return channelID + "|" + senderID + "|" + platformChatID
}

// Upsert creates or refreshes a session for the given key, setting AgentID
// only on creation (a later routing-rule match targeting a different agent
// does not retroactively move an existing session).
func (s *SessionStore) Upsert(channelID, workspaceID, senderID, platformChatID, agentID string, now time.Time) *ChannelSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(channelID, senderID, platformChatID)
	if sess, ok := s.sessions[key]; ok {
		sess.LastActiveAt = now
		return sess
	}
	sess := &ChannelSession{
		ID: uuid.NewString(), ChannelID: channelID, WorkspaceID: workspaceID,
		SenderID: senderID, PlatformChatID: platformChatID, AgentID: agentID, LastActiveAt: now,
	}
	s.sessions[key] = sess
	return sess
}
