package tools

import (
	"context"

	"github.com/HendryAvila/ctxkeeper/internal/ctxerr"
	"github.com/HendryAvila/ctxkeeper/internal/meta"
	"go.uber.org/zap"
)

// Usage records tool calls in the metadata store. Failures never reach
// the caller.
type Usage struct {
	store  meta.Store
	logger *zap.Logger
}

// NewUsage creates a Usage recorder. A nil store records nothing.
func NewUsage(store meta.Store, logger *zap.Logger) *Usage {
	if store == nil {
		store = meta.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Usage{store: store, logger: logger}
}

// Record logs one operation. Safe on a nil receiver.
func (u *Usage) Record(ctx context.Context, operation, subject, detail string) {
	if u == nil {
		return
	}
	err := u.store.LogUsage(ctx, meta.UsageEvent{Operation: operation, Subject: subject, Detail: detail})
	if err == nil {
		return
	}
	if ctxerr.Is(err, ctxerr.KindUnavailable) {
		u.logger.Debug("usage not recorded", zap.String("operation", operation), zap.Error(err))
		return
	}
	u.logger.Info("usage not recorded", zap.String("operation", operation), zap.Error(err))
}
