package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivermoor/surge"
	"github.com/rivermoor/surge/internal/surgeerr"
)

// friendlyQueueError adds command-level context to the error kinds a
// queue operation can return, leaving anything else untouched.
func friendlyQueueError(id string, err error) error {
	switch {
	case errors.Is(err, surgeerr.ErrTaskNotFound):
		return fmt.Errorf("no task with id %q (it may have been removed already)", id)
	case errors.Is(err, surgeerr.ErrCannotRemoveInCurrentStatus):
		return fmt.Errorf("%w (use \"surge cancel\" to abort an active download first)", err)
	default:
		return err
	}
}

// resolveTaskID accepts either a full task ID or an unambiguous prefix of
// one (as printed by ls), and returns the matching full ID.
func resolveTaskID(s *surge.Surge, prefix string) (string, error) {
	if _, ok := s.Get(prefix); ok {
		return prefix, nil
	}

	var match string
	for _, t := range s.List() {
		if strings.HasPrefix(t.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous task id prefix %q", prefix)
			}
			match = t.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no task matches id %q", prefix)
	}
	return match, nil
}
