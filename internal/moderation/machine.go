package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/ashureev/taskmarket/internal/domain"
)

// Review card events.
const (
	evApprove = "approve"
	evReject  = "reject"
	evBack    = "back"
	evConfirm = "confirm"
)

// ErrInvalidTransition is returned when a card action does not apply to the
// review's current state.
var ErrInvalidTransition = errors.New("action does not apply to this review")

// newMachine builds the review state machine positioned at the review's
// status. Confirming a rejection is refused while no reason is selected.
func newMachine(r *domain.Review) *fsm.FSM {
	return fsm.NewFSM(
		string(r.Status),
		fsm.Events{
			{Name: evApprove, Src: []string{string(domain.ReviewPending)}, Dst: string(domain.ReviewApproved)},
			{Name: evReject, Src: []string{string(domain.ReviewPending)}, Dst: string(domain.ReviewSelecting)},
			{Name: evBack, Src: []string{string(domain.ReviewSelecting)}, Dst: string(domain.ReviewPending)},
			{Name: evConfirm, Src: []string{string(domain.ReviewSelecting)}, Dst: string(domain.ReviewRejected)},
		},
		fsm.Callbacks{
			"before_" + evConfirm: func(_ context.Context, e *fsm.Event) {
				if len(r.Reasons) == 0 {
					e.Cancel(ErrNoReasons)
				}
			},
		},
	)
}

// transition fires event on the review and stores the resulting status.
func transition(ctx context.Context, r *domain.Review, event string) error {
	m := newMachine(r)
	if err := m.Event(ctx, event); err != nil {
		var canceled fsm.CanceledError
		if errors.As(err, &canceled) && canceled.Err != nil {
			return canceled.Err
		}
		var invalid fsm.InvalidEventError
		if errors.As(err, &invalid) {
			return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, r.Status)
		}
		return fmt.Errorf("review %s: %w", r.ID, err)
	}
	r.Status = domain.ReviewStatus(m.Current())
	return nil
}
