package bus

import (
	"context"

	"github.com/yungbote/docquiz-backend/internal/realtime"
)

// Bus carries realtime messages between processes: workers publish and
// every API instance forwards into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
