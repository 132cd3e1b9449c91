package memory

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/converse/model"
)

// Store holds conversation histories in memory with TTL based expiry. A
// conversation is Active until its TTL elapses, then Expired; the transition
// is one way. Expired conversations stay in the store for audit until Delete
// removes them, but are no longer reachable through Append or History.
type Store struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*conversation
	config        model.MemoryConfig
	log           *slog.Logger

	sweepStop chan struct{}
	sweepDone chan struct{}
}

type conversation struct {
	mu           sync.Mutex
	id           uuid.UUID
	turns        []model.ConversationTurn
	createdAt    time.Time
	lastActiveAt time.Time
	status       model.ConversationStatus
}

// NewStore creates a conversation store. A zero or negative TTL is rejected.
func NewStore(config model.MemoryConfig, logger *slog.Logger) (*Store, error) {
	if config.TTL <= 0 {
		return nil, fmt.Errorf("%w: conversation ttl must be positive, got %v", model.ErrInvalidConfig, config.TTL)
	}
	if config.SweepInterval <= 0 {
		return nil, fmt.Errorf("%w: sweep interval must be positive, got %v", model.ErrInvalidConfig, config.SweepInterval)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		conversations: map[uuid.UUID]*conversation{},
		config:        config,
		log:           logger,
	}, nil
}

// StartSweeper launches the background goroutine that expires idle
// conversations. Stop ends it.
func (s *Store) StartSweeper() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepStop != nil {
		return
	}
	s.sweepStop = make(chan struct{})
	s.sweepDone = make(chan struct{})
	go s.sweep(s.sweepStop, s.sweepDone)
}

// Stop ends the background sweeper and waits for it to finish.
func (s *Store) Stop() {
	s.mu.Lock()
	stop, done := s.sweepStop, s.sweepDone
	s.sweepStop, s.sweepDone = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Store) sweep(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			expired := s.expireIdle(time.Now())
			if expired > 0 {
				s.log.Debug("expired idle conversations", slog.Int("count", expired))
			}
		}
	}
}

func (s *Store) expireIdle(now time.Time) int {
	s.mu.RLock()
	conversations := make([]*conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		conversations = append(conversations, conv)
	}
	s.mu.RUnlock()

	expired := 0
	for _, conv := range conversations {
		conv.mu.Lock()
		if conv.status == model.ConversationActive && conv.expired(now, s.config) {
			conv.status = model.ConversationExpired
			expired++
		}
		conv.mu.Unlock()
	}
	return expired
}

// expired reports whether the TTL has elapsed. Callers hold conv.mu.
func (c *conversation) expired(now time.Time, config model.MemoryConfig) bool {
	reference := c.createdAt
	if config.SlidingTTL {
		reference = c.lastActiveAt
	}
	return now.Sub(reference) >= config.TTL
}

// Create starts a new active conversation and returns its id.
func (s *Store) Create() uuid.UUID {
	now := time.Now()
	conv := &conversation{
		id:           uuid.New(),
		createdAt:    now,
		lastActiveAt: now,
		status:       model.ConversationActive,
	}

	s.mu.Lock()
	s.conversations[conv.id] = conv
	s.mu.Unlock()

	return conv.id
}

func (s *Store) get(id uuid.UUID) (*conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v", model.ErrConversationNotFound, id)
	}
	return conv, nil
}

// Append adds one turn to an active conversation and returns it with its
// assigned turn index. Indexes are gap free per conversation even under
// concurrent appends. Appending to an expired conversation fails with
// ErrConversationExpired.
func (s *Store) Append(id uuid.UUID, role model.Role, text string) (*model.ConversationTurn, error) {
	conv, err := s.get(id)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	now := time.Now()
	if err := conv.checkActive(now, s.config); err != nil {
		return nil, err
	}

	turn := conv.appendLocked(role, text, now)
	return &turn, nil
}

// AppendExchange records a user turn and the assistant's answer as one unit.
// No other turn can interleave between the two, so the pairing survives
// concurrent sessions.
func (s *Store) AppendExchange(id uuid.UUID, userText, assistantText string) (userTurn, assistantTurn *model.ConversationTurn, err error) {
	conv, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	now := time.Now()
	if err := conv.checkActive(now, s.config); err != nil {
		return nil, nil, err
	}

	user := conv.appendLocked(model.RoleUser, userText, now)
	assistant := conv.appendLocked(model.RoleAssistant, assistantText, now)
	return &user, &assistant, nil
}

// checkActive expires the conversation lazily when its TTL elapsed between
// sweeps. Callers hold conv.mu.
func (c *conversation) checkActive(now time.Time, config model.MemoryConfig) error {
	if c.status == model.ConversationActive && c.expired(now, config) {
		c.status = model.ConversationExpired
	}
	if c.status == model.ConversationExpired {
		return fmt.Errorf("%w: %v", model.ErrConversationExpired, c.id)
	}
	return nil
}

func (c *conversation) appendLocked(role model.Role, text string, now time.Time) model.ConversationTurn {
	turn := model.ConversationTurn{
		ConversationID: c.id,
		TurnIndex:      len(c.turns),
		Role:           role,
		Text:           text,
		Timestamp:      now,
	}
	c.turns = append(c.turns, turn)
	c.lastActiveAt = now
	return turn
}

// History returns up to maxTurns of the most recent turns in chronological
// order. maxTurns <= 0 returns the full history. Reading an expired
// conversation fails with ErrConversationExpired, never stale history.
func (s *Store) History(id uuid.UUID, maxTurns int) ([]model.ConversationTurn, error) {
	conv, err := s.get(id)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()

	if err := conv.checkActive(time.Now(), s.config); err != nil {
		return nil, err
	}

	turns := conv.turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	out := make([]model.ConversationTurn, len(turns))
	copy(out, turns)
	return out, nil
}

// Status returns the conversation's lifecycle state, applying lazy expiry
// first.
func (s *Store) Status(id uuid.UUID) (model.ConversationStatus, error) {
	conv, err := s.get(id)
	if err != nil {
		return "", err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.status == model.ConversationActive && conv.expired(time.Now(), s.config) {
		conv.status = model.ConversationExpired
	}
	return conv.status, nil
}

// Expire transitions a conversation to Expired regardless of its TTL. The
// transition is terminal; expiring an already expired conversation is a
// no-op.
func (s *Store) Expire(id uuid.UUID) error {
	conv, err := s.get(id)
	if err != nil {
		return err
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.status = model.ConversationExpired
	return nil
}

// Delete removes a conversation and its turns entirely.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %v", model.ErrConversationNotFound, id)
	}
	delete(s.conversations, id)
	return nil
}

// Len returns the number of conversations currently held, expired included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
