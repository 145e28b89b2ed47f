package authorization

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Authorize resolves the actor's role and checks it may perform action on object.
	Authorize(ctx context.Context, actor string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const SystemActor = "system"

// Actor is the parsed form of an actor string: "system" or "user:<id>".
type Actor struct {
	Type string
	ID   snowflake.ID
}

func ParseActor(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == SystemActor {
		return Actor{Type: SystemActor}, nil
	}
	if strings.HasPrefix(raw, "user:") {
		id, err := snowflake.ParseString(strings.TrimPrefix(raw, "user:"))
		if err != nil || id == 0 {
			return Actor{}, ErrInvalidActor
		}
		return Actor{Type: "user", ID: id}, nil
	}
	return Actor{}, ErrInvalidActor
}

// UserID returns the worker id for user actors and nil for the system.
func (a Actor) UserID() *snowflake.ID {
	if a.Type != "user" || a.ID == 0 {
		return nil
	}
	id := a.ID
	return &id
}

// AuditID is the string form stored in audit logs.
func (a Actor) AuditID() *string {
	if a.Type != "user" || a.ID == 0 {
		return nil
	}
	id := a.ID.String()
	return &id
}
