package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// LogNotifier is the dev stand-in for a real e-mail/SMS gateway.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID uuid.UUID, kind Kind, message string) error {
	log.Printf("outbound kind=%s user=%s message=%q", kind, userID, message)
	return nil
}
