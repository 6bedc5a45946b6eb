package enforcement

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// LogShield stands in for the OS shield on hosts without one: it records
// and logs what would be blocked.
type LogShield struct {
	authorized bool

	mu        sync.Mutex
	active    bool
	selection Selection
}

// NewLogShield creates a shield that reports the given authorization.
func NewLogShield(authorized bool) *LogShield {
	return &LogShield{authorized: authorized}
}

func (s *LogShield) IsAuthorized() bool {
	return s.authorized
}

func (s *LogShield) Apply(selection Selection, active bool) error {
	s.mu.Lock()
	changed := s.active != active || s.selection.All != selection.All ||
		len(s.selection.AppTokens) != len(selection.AppTokens) ||
		len(s.selection.CategoryTokens) != len(selection.CategoryTokens)
	s.active, s.selection = active, selection
	s.mu.Unlock()

	if changed {
		log.Info().
			Bool("active", active).
			Bool("all", selection.All).
			Int("apps", len(selection.AppTokens)).
			Int("categories", len(selection.CategoryTokens)).
			Msg("Shield updated")
	}
	return nil
}

// Active reports the last applied flag.
func (s *LogShield) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
