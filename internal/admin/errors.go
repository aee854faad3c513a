package admin

import (
	"errors"
	"fmt"
)

var (
	ErrTeamNotFound   = errors.New("team not found")
	ErrBadgeNotFound  = errors.New("badge not found")
	ErrAlreadyAwarded = errors.New("badge already awarded to team")
)

// ValidationError reports a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
