package friends

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/model"
	"go.uber.org/zap"
)

// EntryState is the removal state of one entity in a derived set.
type EntryState string

const (
	Active         EntryState = "ACTIVE"
	PendingRemoval EntryState = "PENDING_REMOVAL"
	Removed        EntryState = "REMOVED"
)

var removalTransitions = map[EntryState][]EntryState{
	Active:         {PendingRemoval},
	PendingRemoval: {Active, Removed},
}

// removals tracks entities whose remote removal arrived while they were
// open in a detail view. Entities not tracked are Active. Not safe for
// concurrent use.
type removals struct {
	order   []string
	pending map[string]model.Friend
	logger  *zap.Logger
}

func newRemovals(logger *zap.Logger) *removals {
	return &removals{pending: make(map[string]model.Friend), logger: logger}
}

func (r *removals) state(id string) EntryState {
	if _, ok := r.pending[id]; ok {
		return PendingRemoval
	}
	return Active
}

// transition moves f to state to. Transitions outside the table are logged
// and leave the state unchanged.
func (r *removals) transition(f model.Friend, to EntryState) bool {
	from := r.state(f.ID)
	if !slices.Contains(removalTransitions[from], to) {
		r.logger.Warn("invalid removal transition",
			zap.String("id", f.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false
	}
	switch to {
	case PendingRemoval:
		r.pending[f.ID] = f
		r.order = append(r.order, f.ID)
	case Active, Removed:
		delete(r.pending, f.ID)
		r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == f.ID })
	}
	return true
}

// postpone marks f as pending removal. Postponing an entity already pending is a no-op.
func (r *removals) postpone(f model.Friend) {
	if r.state(f.ID) == PendingRemoval {
		return
	}
	r.transition(f, PendingRemoval)
}

// restore cancels a pending removal, reporting whether one existed.
func (r *removals) restore(id string) bool {
	f, ok := r.pending[id]
	if !ok {
		return false
	}
	return r.transition(f, Active)
}

// drain moves every pending entity to Removed and returns them in the
// order their removals arrived.
func (r *removals) drain() []model.Friend {
	out := r.list()
	for _, f := range out {
		r.transition(f, Removed)
	}
	return out
}

func (r *removals) list() []model.Friend {
	out := make([]model.Friend, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.pending[id])
	}
	return out
}
