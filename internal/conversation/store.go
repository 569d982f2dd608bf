// Package conversation holds the ordered log of messages rendered to both
// parties. The store is the single owner of message identity and ordering;
// the pipeline only proposes field patches keyed by id.
package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	api "github.com/samvaadcop/orchestrator/api/conversation"
	"github.com/samvaadcop/orchestrator/internal/language"
)

// Patch is a partial message update applied by id. Nil fields are left
// untouched.
type Patch struct {
	OriginalText       *string
	OriginalLanguage   *language.Code
	TranslatedText     *string
	TranslatedLanguage *language.Code
	AudioOut           *string
	Confidence         *api.Confidence
	Status             *api.Status
	Errors             []api.StageReport
}

// Event is one store mutation delivered to watchers.
type Event struct {
	Message api.Message
	Created bool
}

// Store is the append-only conversation log. Messages are never deleted and
// never reordered; replayed offline entries are appended at their original
// submission position and updated in place.
type Store struct {
	mu       sync.RWMutex
	node     *snowflake.Node
	messages []api.Message
	index    map[string]int
	watchers []chan Event
	now      func() time.Time
}

// NewStore builds an empty store. nodeID distinguishes kiosk instances when
// several share an id space.
func NewStore(nodeID int64) (*Store, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("init snowflake node: %w", err)
	}
	return &Store{
		node:  node,
		index: make(map[string]int),
		now:   time.Now,
	}, nil
}

// Append mints a fresh creation-ordered id, records the message, and returns
// it with id and timestamp filled in.
func (s *Store) Append(msg api.Message) api.Message {
	s.mu.Lock()
	msg.ID = s.node.Generate().String()
	msg.Timestamp = s.now()
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	watchers := append([]chan Event(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, Event{Message: msg, Created: true})
	return msg
}

// UpdateByID applies patch to the message with the given id. An unknown id
// is a silent no-op: the caller holds ids the store minted, so a miss is a
// data-integrity signal for tests, not a crash.
func (s *Store) UpdateByID(id string, patch Patch) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	msg := &s.messages[i]
	if patch.OriginalText != nil {
		msg.OriginalText = *patch.OriginalText
	}
	if patch.OriginalLanguage != nil {
		msg.OriginalLanguage = *patch.OriginalLanguage
	}
	if patch.TranslatedText != nil {
		msg.TranslatedText = *patch.TranslatedText
	}
	if patch.TranslatedLanguage != nil {
		msg.TranslatedLanguage = *patch.TranslatedLanguage
	}
	if patch.AudioOut != nil {
		msg.AudioOut = *patch.AudioOut
	}
	if patch.Confidence != nil {
		msg.Confidence = *patch.Confidence
	}
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if len(patch.Errors) > 0 {
		msg.Errors = append(msg.Errors, patch.Errors...)
	}
	updated := *msg
	watchers := append([]chan Event(nil), s.watchers...)
	s.mu.Unlock()

	s.notify(watchers, Event{Message: updated})
}

// Get returns the message with the given id.
func (s *Store) Get(id string) (api.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return api.Message{}, false
	}
	return s.messages[i], true
}

// All returns the conversation in append order.
func (s *Store) All() []api.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Watch registers a buffered event channel receiving every append and
// update. A watcher that falls behind loses events rather than blocking
// store mutations.
func (s *Store) Watch() <-chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// Unwatch removes a previously registered watcher channel.
func (s *Store) Unwatch(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.watchers {
		if w == ch {
			// Not closed: a notify snapshot taken before removal may still
			// send on it.
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

func (s *Store) notify(watchers []chan Event, ev Event) {
	for _, w := range watchers {
		select {
		case w <- ev:
		default:
		}
	}
}
