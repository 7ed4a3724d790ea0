package lifecycle

import (
	"context"

	"github.com/wren-mail/wren/internal/config"
)

// Sender is the transport collaborator. The engine only decides what to
// hand over and how to interpret the outcome.
type Sender interface {
	Send(ctx context.Context, from string, recipients []string, raw []byte, identity config.Identity) error
}
