package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/adapters/console"
)

// SurfaceFactory opens a fresh remote console session. The rod adapter is the
// production factory; tests plug in fakes.
type SurfaceFactory func(ctx context.Context) (console.Surface, error)

// SessionManager owns the single remote automation session: creation,
// authentication and guaranteed teardown. The console allows one login slot,
// so at most one session exists at a time.
type SessionManager struct {
	factory SurfaceFactory
	creds   console.Credentials
	logger  *slog.Logger
}

// NewSessionManager creates a manager that logs in with the given credentials.
func NewSessionManager(factory SurfaceFactory, creds console.Credentials, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		factory: factory,
		creds:   creds,
		logger:  logger.With("service", "session_manager"),
	}
}

// Open creates a session and authenticates it. On any failure the half-open
// session is torn down before the error is returned.
func (m *SessionManager) Open(ctx context.Context) (console.Surface, error) {
	surface, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open console session: %w", err)
	}
	if err := surface.Authenticate(ctx, m.creds); err != nil {
		m.Teardown(ctx, surface)
		return nil, fmt.Errorf("failed to authenticate console session: %w", err)
	}
	m.logger.InfoContext(ctx, "Console session established")
	return surface, nil
}

// Teardown closes the session, freeing the console login slot. Errors are
// logged, not propagated: teardown runs on every exit path and must not mask
// the original failure.
func (m *SessionManager) Teardown(ctx context.Context, surface console.Surface) {
	if surface == nil {
		return
	}
	if err := surface.Close(); err != nil {
		m.logger.WarnContext(ctx, "Console session teardown reported error", "error", err)
		return
	}
	m.logger.InfoContext(ctx, "Console session torn down")
}
