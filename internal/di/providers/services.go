package providers

import (
	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/auth"
	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
	"github.com/boilergroups/groups-server/internal/metrics"
	"github.com/boilergroups/groups-server/internal/ratelimit"
	"github.com/boilergroups/groups-server/internal/service"
	"github.com/boilergroups/groups-server/internal/validation"
)

// ProvideValidator provides the shared request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// messageIndex returns the index as a service.MessageIndex, keeping a disabled
// index a nil interface.
func messageIndex(h *SearchIndexHandle) service.MessageIndex {
	if h.Index == nil {
		return nil
	}
	return h.Index
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	hasher := do.MustInvoke[*auth.PasswordHasher](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokens, hasher, v, log.Logger), nil
}

// ProvideGroupService provides the group lifecycle service.
func ProvideGroupService(i do.Injector) (*service.GroupService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	lockerHandle := do.MustInvoke[*LockerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewGroupService(storeHandle.Store, lockerHandle.Locker, messageIndex(indexHandle),
		sseHandle.Manager, m, v, log.Logger), nil
}

// MessageLimiterHandle wraps the per-user send limiter.
type MessageLimiterHandle struct {
	*ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *MessageLimiterHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideMessageLimiter provides the per-user message budget.
func ProvideMessageLimiter(i do.Injector) (*MessageLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return &MessageLimiterHandle{ratelimit.PerMinute(cfg.RateLimit.MessagesPerMinute)}, nil
}

// ProvideMessageService provides the message and reaction service.
func ProvideMessageService(i do.Injector) (*service.MessageService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	lockerHandle := do.MustInvoke[*LockerHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	limiter := do.MustInvoke[*MessageLimiterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewMessageService(storeHandle.Store, lockerHandle.Locker, messageIndex(indexHandle),
		sseHandle.Manager, m, limiter.KeyedRateLimiter, log.Logger), nil
}

// ProvideNotificationService provides the notification set service.
func ProvideNotificationService(i do.Injector) (*service.NotificationService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	lockerHandle := do.MustInvoke[*LockerHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	v := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewNotificationService(storeHandle.Store, lockerHandle.Locker, sseHandle.Manager, m, v, log.Logger), nil
}
