package bus

import (
	"github.com/relaycode/taskserver/internal/common/config"
	"github.com/relaycode/taskserver/internal/common/logger"
)

// New returns a NATS-backed bus when cfg.NATSURL is set, falling back to an
// in-process bus otherwise.
func New(cfg config.EventsConfig, log *logger.Logger) (EventBus, error) {
	if cfg.NATSURL == "" {
		return NewMemoryEventBus(log), nil
	}
	return NewNATSEventBus(cfg, log)
}
