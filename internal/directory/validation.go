package directory

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyName rejects a draft whose trimmed name is empty.
	ErrEmptyName = errors.New("supplier name cannot be empty")
	// ErrDuplicateName rejects a draft whose name matches another
	// supplier case-insensitively.
	ErrDuplicateName = errors.New("supplier already exists")
)

func trimmedName(name string) string {
	return strings.TrimSpace(name)
}

// validate checks the only two invariants a draft must satisfy. The
// duplicate check runs against the cached snapshot and skips the
// record being edited so an unchanged name still saves.
func (s *Service) validate(draft Draft, editID string) error {
	if draft.Name == "" {
		return ErrEmptyName
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, sup := range s.suppliers {
		if id == editID {
			continue
		}
		if strings.EqualFold(sup.Name, draft.Name) {
			return ErrDuplicateName
		}
	}
	return nil
}
