// Package friends reconciles a user's friends and incoming friend requests
// with the remote store and serves user search.
package friends

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/docstore"
	"github.com/matheus3301/chatsync/internal/loop"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/ordering"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/schema"
	"go.uber.org/zap"
)

// Writer applies remote writes, queueing failed ones for retry.
type Writer interface {
	Write(ctx context.Context, op outbox.Op) error
}

// Snapshot is a read-only copy of the engine's derived state.
type Snapshot struct {
	Friends       []model.Friend
	Requests      []model.Friend
	SearchResults []model.Friend
	Viewed        *model.Friend
	// CloseDetail is raised when the viewed entity was removed remotely.
	CloseDetail            bool
	PendingFriendRemovals  []model.Friend
	PendingRequestRemovals []model.Friend
	Profile                *model.User
}

// Engine owns the friend-related views of one session. Its state is
// confined to an internal loop; feed events and user actions are applied
// one at a time.
type Engine struct {
	self     string
	store    docstore.Store
	writer   Writer
	notifier *notify.Notifier
	bus      *bus.Bus
	logger   *zap.Logger
	loop     *loop.Loop

	// Loop-confined state.
	friends         *orderedFriends
	requests        *orderedFriends
	results         *orderedFriends
	viewed          *model.Friend
	closeDetail     bool
	friendRemovals  *removals
	requestRemovals *removals
	searchGen       uint64
	profile         *model.User

	mu     sync.Mutex
	subs   []*docstore.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a friend engine for the user self.
func NewEngine(self string, st docstore.Store, w Writer, n *notify.Notifier, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = notify.New(b, 0)
	}
	logger = logger.Named("friends")
	return &Engine{
		self:            self,
		store:           st,
		writer:          w,
		notifier:        n,
		bus:             b,
		logger:          logger,
		loop:            loop.New(64),
		friends:         newOrderedFriends(),
		requests:        newOrderedFriends(),
		results:         newOrderedFriends(),
		friendRemovals:  newRemovals(logger),
		requestRemovals: newRemovals(logger),
	}
}

// Start subscribes to the friends and friend-request feeds.
func (e *Engine) Start(ctx context.Context) error {
	if e.self == "" {
		return fmt.Errorf("friends: no current user")
	}
	ctx, cancel := context.WithCancel(ctx)

	friendsSub, err := e.store.Subscribe(ctx, schema.FriendsCollection(e.self))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe friends: %w", err)
	}
	requestsSub, err := e.store.Subscribe(ctx, schema.RequestsCollection(e.self))
	if err != nil {
		friendsSub.Cancel()
		cancel()
		return fmt.Errorf("subscribe friend requests: %w", err)
	}

	e.mu.Lock()
	e.subs = []*docstore.Subscription{friendsSub, requestsSub}
	e.cancel = cancel
	e.mu.Unlock()

	e.pump(ctx, friendsSub, e.HandleFriendsEvent)
	e.pump(ctx, requestsSub, e.HandleRequestsEvent)
	e.logger.Info("friend feeds started", zap.String("user", e.self))
	return nil
}

func (e *Engine) pump(ctx context.Context, sub *docstore.Subscription, handle func(context.Context, docstore.ChangeEvent) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				if err := handle(ctx, evt); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the feeds, waits for in-flight events and stops the loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.loop.Stop()
}

// Snapshot copies the derived state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.loop.Do(ctx, func() {
		s = Snapshot{
			Friends:                e.friends.Items(),
			Requests:               e.requests.Items(),
			SearchResults:          e.results.Items(),
			CloseDetail:            e.closeDetail,
			PendingFriendRemovals:  e.friendRemovals.list(),
			PendingRequestRemovals: e.requestRemovals.list(),
		}
		if e.viewed != nil {
			v := *e.viewed
			s.Viewed = &v
		}
		if e.profile != nil {
			p := *e.profile
			s.Profile = &p
		}
	})
	return s, err
}

// hydrate resolves a relationship record into a Friend by fetching the user.
func (e *Engine) hydrate(ctx context.Context, ref model.FriendReference) (model.Friend, error) {
	doc, err := e.store.Get(ctx, schema.UserPath(ref.ID))
	if err != nil {
		return model.Friend{}, err
	}
	if doc == nil {
		return model.Friend{}, fmt.Errorf("user %s: %w", ref.ID, docstore.ErrNotFound)
	}
	u, err := schema.DecodeUser(*doc)
	if err != nil {
		return model.Friend{}, err
	}
	return model.NewFriend(u, ref), nil
}

func (e *Engine) decodeRef(evt docstore.ChangeEvent) (model.FriendReference, bool) {
	ref, err := schema.DecodeFriendReference(evt.Doc)
	if err != nil {
		e.logger.Warn("dropping undecodable relationship event",
			zap.String("path", evt.Doc.Path),
			zap.Stringer("kind", evt.Kind),
			zap.Error(err),
		)
		return model.FriendReference{}, false
	}
	return ref, true
}

func (e *Engine) hydrateOrDrop(ctx context.Context, evt docstore.ChangeEvent, ref model.FriendReference) (model.Friend, bool) {
	f, err := e.hydrate(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return model.Friend{}, false
		}
		e.logger.Warn("hydration failed, dropping event",
			zap.String("path", evt.Doc.Path),
			zap.Stringer("kind", evt.Kind),
			zap.Error(err),
		)
		e.notifier.PostError("Failed to load " + ref.ID)
		return model.Friend{}, false
	}
	return f, true
}

// HandleFriendsEvent applies one event of the friends feed.
func (e *Engine) HandleFriendsEvent(ctx context.Context, evt docstore.ChangeEvent) error {
	switch evt.Kind {
	case docstore.Added:
		ref, ok := e.decodeRef(evt)
		if !ok {
			return nil
		}
		f, ok := e.hydrateOrDrop(ctx, evt, ref)
		if !ok {
			return ctx.Err()
		}
		return e.loop.Do(ctx, func() {
			e.friendRemovals.restore(f.ID)
			e.friends.Add(f)
			e.results.Remove(f.ID)
			e.emit(bus.FriendsChanged)
			e.emit(bus.SearchChanged)
		})

	case docstore.Removed:
		id := evt.Doc.ID
		return e.loop.Do(ctx, func() {
			if e.isViewed(id) {
				f, ok := e.friends.Get(id)
				if !ok {
					f = *e.viewed
				}
				e.friendRemovals.postpone(f)
				e.raiseCloseDetail()
				return
			}
			e.friends.Remove(id)
			e.results.Remove(id)
			e.emit(bus.FriendsChanged)
			e.emit(bus.SearchChanged)
		})

	case docstore.Modified:
		ref, ok := e.decodeRef(evt)
		if !ok {
			return nil
		}
		if _, ok := e.hydrateOrDrop(ctx, evt, ref); !ok {
			return ctx.Err()
		}
		return e.loop.Do(ctx, func() {
			set := func(f *model.Friend) { f.Notifications = ref.Notifications }
			e.friends.Update(ref.ID, set)
			e.results.Update(ref.ID, set)
			if e.isViewed(ref.ID) {
				set(e.viewed)
			}
			e.emit(bus.FriendsChanged)
		})
	}
	return nil
}

// HandleRequestsEvent applies one event of the incoming friend-request feed.
func (e *Engine) HandleRequestsEvent(ctx context.Context, evt docstore.ChangeEvent) error {
	switch evt.Kind {
	case docstore.Added:
		ref, ok := e.decodeRef(evt)
		if !ok {
			return nil
		}
		f, ok := e.hydrateOrDrop(ctx, evt, ref)
		if !ok {
			return ctx.Err()
		}
		return e.loop.Do(ctx, func() {
			e.requestRemovals.restore(f.ID)
			e.requests.Add(f)
			e.emit(bus.RequestsChanged)
		})

	case docstore.Removed:
		id := evt.Doc.ID
		return e.loop.Do(ctx, func() {
			if e.isViewed(id) {
				f, ok := e.requests.Get(id)
				if !ok {
					f = *e.viewed
				}
				e.requestRemovals.postpone(f)
				e.raiseCloseDetail()
				return
			}
			e.requests.Remove(id)
			e.emit(bus.RequestsChanged)
		})
	}
	// Requests carry no mutable fields.
	return nil
}

// View marks the entity with id as open in a detail view. The entity is
// looked up in friends, requests and search results; unknown ids are ignored.
// Viewing a different entity first dismisses the current one.
func (e *Engine) View(ctx context.Context, id string) (bool, error) {
	var found bool
	err := e.loop.Do(ctx, func() {
		f, ok := e.lookup(id)
		if !ok {
			return
		}
		if e.viewed != nil && e.viewed.ID != id {
			e.dismiss()
		}
		e.viewed = &f
		found = true
	})
	return found, err
}

// DismissView closes the detail view and applies every removal that was
// deferred while it was open.
func (e *Engine) DismissView(ctx context.Context) error {
	return e.loop.Do(ctx, e.dismiss)
}

func (e *Engine) dismiss() {
	e.viewed = nil
	e.closeDetail = false
	friends := e.friendRemovals.drain()
	for _, f := range friends {
		e.friends.Remove(f.ID)
		e.results.Remove(f.ID)
	}
	requests := e.requestRemovals.drain()
	for _, f := range requests {
		e.requests.Remove(f.ID)
	}
	if len(friends) > 0 {
		e.emit(bus.FriendsChanged)
		e.emit(bus.SearchChanged)
	}
	if len(requests) > 0 {
		e.emit(bus.RequestsChanged)
	}
}

func (e *Engine) lookup(id string) (model.Friend, bool) {
	if f, ok := e.friends.Get(id); ok {
		return f, true
	}
	if f, ok := e.requests.Get(id); ok {
		return f, true
	}
	return e.results.Get(id)
}

func (e *Engine) isViewed(id string) bool {
	return e.viewed != nil && e.viewed.ID == id
}

func (e *Engine) raiseCloseDetail() {
	e.closeDetail = true
	e.emit(bus.DetailClosed)
}

func (e *Engine) emit(kind string) {
	if e.bus != nil {
		e.bus.Emit(kind, e.self)
	}
}

type orderedFriends = ordering.Set[model.Friend]

func newOrderedFriends() *orderedFriends {
	return ordering.NewSet(model.FriendID)
}

// relations answers rank lookups from loop-confined state.
type relations struct{ e *Engine }

func (r relations) IsFriend(id string) bool    { return r.e.friends.Contains(id) }
func (r relations) IsRequested(id string) bool { return r.e.requests.Contains(id) }
