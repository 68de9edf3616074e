package factory

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Well-known roles of protocol sub-contracts.
const (
	RoleCore            = "core"
	RoleValidatorsStats = "validators_stats"
)

// State is an immutable role → contract address snapshot.
type State struct {
	addrs map[string]string
}

// NewState copies addrs into a new State.
func NewState(addrs map[string]string) State {
	m := make(map[string]string, len(addrs))
	for role, addr := range addrs {
		if role != "" && addr != "" {
			m[role] = addr
		}
	}
	return State{addrs: m}
}

// Get returns the address registered for role.
func (s State) Get(role string) (string, bool) {
	addr, ok := s.addrs[role]
	return addr, ok
}

// Roles returns the known roles in sorted order.
func (s State) Roles() []string {
	roles := make([]string, 0, len(s.addrs))
	for role := range s.addrs {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Len returns the number of known roles.
func (s State) Len() int {
	return len(s.addrs)
}

// Map returns a copy of the underlying mapping.
func (s State) Map() map[string]string {
	m := make(map[string]string, len(s.addrs))
	for role, addr := range s.addrs {
		m[role] = addr
	}
	return m
}

// Equal reports whether both states map the same roles to the same addresses.
func (s State) Equal(other State) bool {
	if len(s.addrs) != len(other.addrs) {
		return false
	}
	for role, addr := range s.addrs {
		if other.addrs[role] != addr {
			return false
		}
	}
	return true
}

// Store is a thread-safe holder of the current State.
// The state can only be changed via Replace.
type Store struct {
	mu        sync.RWMutex
	state     State
	updatedAt time.Time
	logger    zerolog.Logger
}

func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		state:  NewState(nil),
		logger: logger.With().Str("component", "factory_store").Logger(),
	}
}

// Current returns the current snapshot.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UpdatedAt returns when the state was last replaced.
func (s *Store) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Replace atomically swaps the whole state. It reports whether the content changed.
func (s *Store) Replace(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := !s.state.Equal(state)
	s.state = state
	s.updatedAt = time.Now()

	s.logger.Info().
		Int("roles", state.Len()).
		Bool("changed", changed).
		Time("updated_at", s.updatedAt).
		Msg("factory state replaced")
	return changed
}
