package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/schema"
	"go.uber.org/zap"
)

// ErrInvalidProfile is returned by SaveProfile for a profile without a display name.
var ErrInvalidProfile = errors.New("invalid profile")

// LoadProfile fetches the session user's document and replaces the cached
// profile with it.
func (e *Engine) LoadProfile(ctx context.Context) (model.User, error) {
	if e.self == "" {
		return model.User{}, fmt.Errorf("friends: no current user")
	}
	doc, err := e.store.Get(ctx, schema.UserPath(e.self))
	if err != nil {
		e.logger.Error("failed to load profile", zap.Error(err))
		e.notifier.PostError("Failed to load profile")
		return model.User{}, err
	}
	if doc == nil {
		return model.User{}, fmt.Errorf("user %s: %w", e.self, docstore.ErrNotFound)
	}
	u, err := schema.DecodeUser(*doc)
	if err != nil {
		e.logger.Warn("profile document is malformed", zap.String("path", doc.Path), zap.Error(err))
		return model.User{}, err
	}
	if err := e.setProfile(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// SaveProfile writes u as the session user's document. The id is always
// the session user's.
func (e *Engine) SaveProfile(ctx context.Context, u model.User) error {
	if e.self == "" {
		return fmt.Errorf("friends: no current user")
	}
	u.ID = e.self
	if strings.TrimSpace(u.DisplayName) == "" {
		return fmt.Errorf("%w: display name is empty", ErrInvalidProfile)
	}
	if err := e.store.Set(ctx, schema.UserPath(e.self), u); err != nil {
		e.logger.Error("failed to save profile", zap.Error(err))
		e.notifier.PostError("Failed to save profile")
		return err
	}
	return e.setProfile(ctx, u)
}

func (e *Engine) setProfile(ctx context.Context, u model.User) error {
	return e.loop.Do(ctx, func() {
		e.profile = &u
		e.emit(bus.ProfileChanged)
	})
}
