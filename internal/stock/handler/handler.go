package handler

import (
	"context"

	"github.com/stockledger/stockledger-backend/pkg/actor"
)

// performerID resolves who is acting. Requests without an identity header,
// such as internal calls, are attributed to the system actor.
func performerID(ctx context.Context) string {
	a := actor.FromContext(ctx)
	if a == nil {
		a = actor.SystemActor()
	}
	return a.ID
}
