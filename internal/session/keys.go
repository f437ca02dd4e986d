package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownKey is returned for keys without a binding.
var ErrUnknownKey = errors.New("session: unknown key")

// Key names as reported by browser keyboard events.
const (
	KeySpace      = " "
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyMarkIn     = "["
	KeyMarkOut    = "]"
)

var keyAliases = map[string]string{
	"space": KeySpace,
	"left":  KeyArrowLeft,
	"right": KeyArrowRight,
}

// HandleKey runs the action bound to a keyboard key.
func (s *Session) HandleKey(ctx context.Context, key string) error {
	if alias, ok := keyAliases[key]; ok {
		key = alias
	}
	var err error
	switch key {
	case KeySpace:
		_, err = s.Toggle()
	case KeyArrowLeft:
		_, err = s.StepFrame(ctx, -1)
	case KeyArrowRight:
		_, err = s.StepFrame(ctx, 1)
	case KeyMarkIn:
		_, err = s.MarkIn()
	case KeyMarkOut:
		_, err = s.MarkOut()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return err
}
