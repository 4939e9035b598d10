package session

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/config"
)

const DefaultSessionName = "main"

// ErrNoUser is returned when no user id is configured for a session.
var ErrNoUser = errors.New("no user id configured")

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

// ResolveUser picks the signed-in user id for a session: the --user flag,
// then sessions.<name>.user_id from config.toml.
func ResolveUser(cfg *config.Config, name, flagOverride string) (string, error) {
	if flagOverride != "" {
		return flagOverride, nil
	}
	if cfg != nil {
		if id := cfg.Session(name).UserID; id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("session %q: %w", name, ErrNoUser)
}
