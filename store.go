package chatsync

import (
	"slices"
	"sync"
)

// Store is the ordered, deduplicated message list of one conversation.
//
// Entries are keyed by id and kept stable-sorted by ascending timestamp;
// messages with equal timestamps stay in admission order. Only Content and
// Edited of an admitted message ever change.
type Store struct {
	conversationID string

	mu    sync.RWMutex
	items []Message
	index map[string]int // id -> position in items

	// Live events can overtake the history fetch. Deletions and remote
	// edits of ids not (yet) present are remembered and applied on
	// admission.
	removed map[string]struct{}
	edits   map[string]Message
}

// NewStore creates an empty store for a conversation.
func NewStore(conversationID string) *Store {
	return &Store{
		conversationID: conversationID,
		index:          make(map[string]int),
		removed:        make(map[string]struct{}),
		edits:          make(map[string]Message),
	}
}

// ConversationID returns the conversation this store belongs to.
func (s *Store) ConversationID() string { return s.conversationID }

// Load merges a bulk history result. Messages already present (for example
// delivered live while the fetch was in flight) are kept as they are, ids
// deleted in the meantime stay deleted and earlier remote edits are applied.
// Returns the number of admitted messages.
func (s *Store) Load(msgs []Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range msgs {
		if s.admissible(m) {
			s.insert(m)
			n++
		}
	}
	if n > 0 {
		s.reorder()
	}
	return n
}

// Admit inserts a message unless one with the same id exists or was
// deleted.
func (s *Store) Admit(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.admissible(m) {
		return false
	}
	s.insert(m)
	s.reorder()
	return true
}

// Replace applies a confirmed edit. The remote content wins over any local
// optimistic edit; id and timestamp of the stored entry are kept. An edit
// for an unknown id changes nothing visible but is kept for a later Load.
func (s *Store) Replace(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" || m.ConversationID != s.conversationID {
		return false
	}
	i, ok := s.index[m.ID]
	if !ok {
		if _, gone := s.removed[m.ID]; !gone {
			s.edits[m.ID] = m
		}
		return false
	}
	return applyEdit(&s.items[i], m)
}

func applyEdit(cur *Message, m Message) bool {
	edited := cur.Edited || m.Edited
	if cur.Content == m.Content && cur.Edited == edited {
		return false
	}
	cur.Content = m.Content
	cur.Edited = edited
	return true
}

// Remove deletes the message with the given id. The id is never admitted
// again; removing an unknown id changes nothing visible.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return false
	}
	s.removed[id] = struct{}{}
	delete(s.edits, id)
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	delete(s.index, id)
	s.reindex(i)
	return true
}

// Revision records the state of a message before a local optimistic edit.
type Revision struct {
	ID      string
	Content string
	Edited  bool

	applied string
}

// ApplyLocalEdit changes a message's content in place ahead of server
// confirmation and returns what is needed to undo it.
func (s *Store) ApplyLocalEdit(id, content string) (Revision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return Revision{}, false
	}
	cur := &s.items[i]
	rev := Revision{ID: id, Content: cur.Content, Edited: cur.Edited, applied: content}
	cur.Content = content
	cur.Edited = true
	return rev, true
}

// Revert undoes a local edit. It does nothing if the message is gone or its
// content has since been replaced by something else.
func (s *Store) Revert(rev Revision) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[rev.ID]
	if !ok || s.items[i].Content != rev.applied {
		return false
	}
	s.items[i].Content = rev.Content
	s.items[i].Edited = rev.Edited
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.items[i], true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Messages returns a snapshot of the ordered list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store) admissible(m Message) bool {
	if m.ID == "" || m.ConversationID != s.conversationID {
		return false
	}
	if _, gone := s.removed[m.ID]; gone {
		return false
	}
	_, exists := s.index[m.ID]
	return !exists
}

// insert appends m, folding in a remote edit that arrived first. Must be
// called with mu held; the caller reorders.
func (s *Store) insert(m Message) {
	if e, ok := s.edits[m.ID]; ok {
		applyEdit(&m, e)
		delete(s.edits, m.ID)
	}
	s.index[m.ID] = len(s.items)
	s.items = append(s.items, m)
}

// reorder re-derives the visible order and the index. Must be called with mu held.
func (s *Store) reorder() {
	slices.SortStableFunc(s.items, func(a, b Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	s.reindex(0)
}

func (s *Store) reindex(from int) {
	for i := from; i < len(s.items); i++ {
		s.index[s.items[i].ID] = i
	}
}
