package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
)

const (
	moderatorID = int64(900)
	modChatID   = int64(-100)
	subjectID   = int64(42)
)

type fakeRepo struct {
	mu        sync.Mutex
	reviews   map[string]*domain.Review
	blocks    map[int64]*domain.Block
	verified  map[int64]bool
	updatedAt map[int64]time.Time
	roles     map[int64]domain.Role
	applied   []map[string][]string
	decisions []domain.ReviewStatus
	failWith  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		reviews:   map[string]*domain.Review{},
		blocks:    map[int64]*domain.Block{},
		verified:  map[int64]bool{},
		updatedAt: map[int64]time.Time{},
		roles:     map[int64]domain.Role{},
	}
}

func (f *fakeRepo) CreateReview(_ context.Context, r *domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	c := *r
	f.reviews[r.ID] = &c
	return nil
}

func (f *fakeRepo) GetReview(_ context.Context, id string) (*domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (f *fakeRepo) UpdateReview(_ context.Context, r *domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *r
	f.reviews[r.ID] = &c
	return nil
}

func (f *fakeRepo) OpenReview(_ context.Context, subject int64) (*domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviews {
		if r.SubjectID == subject && r.Status.Open() {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ApproveReview(_ context.Context, r *domain.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *r
	f.reviews[r.ID] = &c
	if !r.Kind.IsEdit() {
		f.verified[r.SubjectID] = true
	}
	if r.Kind.IsEdit() {
		f.applied = append(f.applied, r.Payload)
		f.updatedAt[r.SubjectID] = r.DecidedAt
	}
	delete(f.blocks, r.SubjectID)
	f.decisions = append(f.decisions, r.Status)
	return nil
}

func (f *fakeRepo) RejectReview(_ context.Context, r *domain.Review, b *domain.Block) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *r
	f.reviews[r.ID] = &c
	bc := *b
	f.blocks[b.UserID] = &bc
	if !r.Kind.IsEdit() {
		delete(f.verified, r.SubjectID)
		f.roles[r.SubjectID] = domain.RoleNone
	}
	f.decisions = append(f.decisions, r.Status)
	return nil
}

func (f *fakeRepo) GetBlock(_ context.Context, userID int64) (*domain.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blocks[userID]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (f *fakeRepo) ProfileUpdatedAt(_ context.Context, userID int64, _ string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updatedAt[userID], f.verified[userID], nil
}

type sent struct {
	chatID int64
	prompt chat.Prompt
}

type fakeRenderer struct {
	mu     sync.Mutex
	nextID int
	sent   []sent
	edits  map[int]chat.Prompt
}

func (f *fakeRenderer) Send(_ context.Context, chatID int64, p chat.Prompt) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sent{chatID: chatID, prompt: p})
	return chat.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeRenderer) Edit(_ context.Context, ref chat.MessageRef, p chat.Prompt) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.edits == nil {
		f.edits = map[int]chat.Prompt{}
	}
	f.edits[ref.MessageID] = p
	return ref, nil
}

func (f *fakeRenderer) ClearActions(context.Context, chat.MessageRef) error {
	return nil
}

func (f *fakeRenderer) lastTo(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].chatID == chatID {
			return f.sent[i].prompt.Text
		}
	}
	return ""
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var day0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.Add(time.Duration(n) * 24 * time.Hour) }

func newTestGate(t *testing.T) (*Gate, *fakeRepo, *fakeRenderer, *clock) {
	t.Helper()
	repo := newFakeRepo()
	render := &fakeRenderer{}
	clk := &clock{t: day0}
	g := NewGate(repo, render, Config{
		ModeratorChatID: modChatID,
		Moderators:      []int64{moderatorID},
		EditCooldown:    7 * 24 * time.Hour,
	}, nil)
	g.SetClock(clk.now)
	return g, repo, render, clk
}

func submit(t *testing.T, g *Gate, kind domain.ReviewKind) *domain.Review {
	t.Helper()
	r, err := g.Submit(context.Background(), Submission{
		SubjectID: subjectID,
		Username:  "anna",
		Kind:      kind,
		Summary:   "Name: Anna",
	})
	require.NoError(t, err)
	return r
}

func press(t *testing.T, g *Gate, parts ...string) string {
	t.Helper()
	notice, err := g.HandleAction(context.Background(), moderatorID, chat.Token(append([]string{chat.PrefixModeration}, parts...)...))
	require.NoError(t, err)
	return notice
}

func TestBlockDurationUsesLongestReason(t *testing.T) {
	d, err := BlockDuration([]string{"photo", "rude", "fake"})
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, d)

	_, err = BlockDuration(nil)
	assert.ErrorIs(t, err, ErrNoReasons)

	_, err = BlockDuration([]string{"nope"})
	assert.Error(t, err)
}

func TestSubmitPostsCardToModeratorChat(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewExecutorRegistration)

	require.Len(t, render.sent, 1)
	card := render.sent[0]
	assert.Equal(t, modChatID, card.chatID)
	assert.Contains(t, card.prompt.Text, "@anna")
	require.Len(t, card.prompt.Rows, 1)
	assert.Equal(t, "mod:approve:"+r.ID, card.prompt.Rows[0][0].Token)
	assert.Equal(t, "mod:reject:"+r.ID, card.prompt.Rows[0][1].Token)

	stored, _ := repo.GetReview(context.Background(), r.ID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.ReviewPending, stored.Status)
	assert.Equal(t, 1, stored.CardMessageID)
}

func TestSubmitFailsWhenReviewNotStored(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	repo.failWith = errors.New("disk full")

	_, err := g.Submit(context.Background(), Submission{SubjectID: subjectID, Kind: domain.ReviewClientRegistration})
	require.Error(t, err)
	assert.Contains(t, render.edits[1].Text, "Not recorded")
}

func TestApproveRegistrationVerifiesAndClearsBlock(t *testing.T) {
	g, repo, render, clk := newTestGate(t)
	repo.blocks[subjectID] = &domain.Block{UserID: subjectID, ExpiresAt: day(-1)}
	r := submit(t, g, domain.ReviewExecutorRegistration)

	clk.t = day(1)
	assert.Empty(t, press(t, g, ActApprove, r.ID))

	stored, _ := repo.GetReview(context.Background(), r.ID)
	assert.Equal(t, domain.ReviewApproved, stored.Status)
	assert.Equal(t, moderatorID, stored.ModeratorID)
	assert.Equal(t, day(1), stored.DecidedAt)
	assert.True(t, repo.verified[subjectID])
	assert.NotContains(t, repo.blocks, subjectID)
	assert.Contains(t, render.lastTo(subjectID), "registration has been approved")
	assert.Contains(t, render.edits[1].Text, "Approved by 900")
	assert.Empty(t, render.edits[1].Rows)
}

func TestApproveEditSendsChangesVerified(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	r, err := g.Submit(context.Background(), Submission{
		SubjectID: subjectID,
		Kind:      domain.ReviewExecutorEdit,
		Fields:    []string{domain.FieldRate},
		Payload:   map[string][]string{domain.FieldRate: {"3000/hr"}},
	})
	require.NoError(t, err)

	press(t, g, ActApprove, r.ID)

	require.Len(t, repo.applied, 1)
	assert.Equal(t, []string{"3000/hr"}, repo.applied[0][domain.FieldRate])
	assert.Contains(t, render.lastTo(subjectID), "changes have been verified")
}

func TestRejectRequiresReasonBeforeConfirm(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewExecutorRegistration)

	press(t, g, ActReject, r.ID)
	card := render.edits[1]
	for _, row := range card.Rows {
		for _, a := range row {
			assert.NotEqual(t, "mod:confirm:"+r.ID, a.Token, "confirm must be hidden without reasons")
		}
	}

	assert.Equal(t, NoticeNeedReason, press(t, g, ActConfirm, r.ID))
	stored, _ := repo.GetReview(context.Background(), r.ID)
	assert.Equal(t, domain.ReviewSelecting, stored.Status)
	assert.Empty(t, repo.decisions)

	press(t, g, ActReason, r.ID, "photo")
	card = render.edits[1]
	var hasConfirm bool
	for _, row := range card.Rows {
		for _, a := range row {
			hasConfirm = hasConfirm || a.Token == "mod:confirm:"+r.ID
		}
	}
	assert.True(t, hasConfirm)
}

func TestRejectBlocksForLongestReason(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewExecutorRegistration)

	press(t, g, ActReject, r.ID)
	press(t, g, ActReason, r.ID, "photo")
	press(t, g, ActReason, r.ID, "rude")
	press(t, g, ActReason, r.ID, "fake")
	assert.Empty(t, press(t, g, ActConfirm, r.ID))

	b := repo.blocks[subjectID]
	require.NotNil(t, b)
	assert.Equal(t, day(30), b.ExpiresAt)
	assert.Equal(t, []string{"photo", "rude", "fake"}, b.Reasons)
	assert.Equal(t, domain.RoleNone, repo.roles[subjectID])

	msg := render.lastTo(subjectID)
	assert.Contains(t, msg, "registration has been rejected")
	assert.Contains(t, msg, "Fake profile")
	assert.Contains(t, msg, formatDate(day(30)))
}

func TestReblockOverwritesExpiry(t *testing.T) {
	g, repo, _, clk := newTestGate(t)
	repo.blocks[subjectID] = &domain.Block{UserID: subjectID, ExpiresAt: day(10), Reasons: []string{"rude"}}

	clk.t = day(8)
	r, err := g.Submit(context.Background(), Submission{SubjectID: subjectID, Kind: domain.ReviewExecutorEdit})
	require.NoError(t, err)
	press(t, g, ActReject, r.ID)
	press(t, g, ActReason, r.ID, "photo")
	press(t, g, ActConfirm, r.ID)

	require.Len(t, repo.blocks, 1)
	assert.Equal(t, day(11), repo.blocks[subjectID].ExpiresAt)
}

func TestRejectedEditKeepsRole(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	repo.roles[subjectID] = domain.RoleExecutor
	repo.verified[subjectID] = true

	r, err := g.Submit(context.Background(), Submission{SubjectID: subjectID, Kind: domain.ReviewExecutorEdit})
	require.NoError(t, err)
	press(t, g, ActReject, r.ID)
	press(t, g, ActReason, r.ID, "info")
	press(t, g, ActConfirm, r.ID)

	assert.Equal(t, domain.RoleExecutor, repo.roles[subjectID])
	assert.True(t, repo.verified[subjectID])
	assert.Empty(t, repo.applied)
	assert.Contains(t, render.lastTo(subjectID), "profile changes have been rejected")
}

func TestBackReturnsToPendingAndClearsReasons(t *testing.T) {
	g, repo, render, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewClientRegistration)

	press(t, g, ActReject, r.ID)
	press(t, g, ActReason, r.ID, "spam")
	press(t, g, ActBack, r.ID)

	stored, _ := repo.GetReview(context.Background(), r.ID)
	assert.Equal(t, domain.ReviewPending, stored.Status)
	assert.Empty(t, stored.Reasons)
	assert.Equal(t, "mod:approve:"+r.ID, render.edits[1].Rows[0][0].Token)
}

func TestNonModeratorCannotDecide(t *testing.T) {
	g, repo, _, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewExecutorRegistration)

	notice, err := g.HandleAction(context.Background(), subjectID, "mod:approve:"+r.ID)
	require.NoError(t, err)
	assert.Equal(t, NoticeModeratorsOnly, notice)

	stored, _ := repo.GetReview(context.Background(), r.ID)
	assert.Equal(t, domain.ReviewPending, stored.Status)
	assert.Empty(t, repo.decisions)
}

func TestNonModeratorMalformedTokenGetsModeratorsOnly(t *testing.T) {
	g, _, _, _ := newTestGate(t)

	for _, token := range []string{"mod:approve", "mod", "wf:approve:x", ""} {
		notice, err := g.HandleAction(context.Background(), subjectID, token)
		require.NoError(t, err, token)
		assert.Equal(t, NoticeModeratorsOnly, notice, token)
	}

	_, err := g.HandleAction(context.Background(), moderatorID, "mod:approve")
	assert.Error(t, err)
}

func TestLockStripeIsStableAndBounded(t *testing.T) {
	g, _, _, _ := newTestGate(t)
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("review-%d", i)
		s := lockStripe(id)
		require.Less(t, s, uint64(lockStripes))
		assert.Equal(t, s, lockStripe(id))
	}

	// Presses on one review are serialized by the same mutex.
	unlock := g.lock("r1")
	locked := make(chan struct{})
	go func() {
		defer close(locked)
		g.lock("r1")()
	}()
	select {
	case <-locked:
		t.Fatal("second press on the same review must wait")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-locked
}

func TestDecidedReviewIgnoresFurtherActions(t *testing.T) {
	g, repo, _, _ := newTestGate(t)
	r := submit(t, g, domain.ReviewExecutorRegistration)

	press(t, g, ActApprove, r.ID)
	assert.Equal(t, NoticeDecided, press(t, g, ActReject, r.ID))
	assert.Len(t, repo.decisions, 1)
	assert.Equal(t, NoticeUnknown, press(t, g, ActApprove, "missing"))
}

func TestAdmitBlocked(t *testing.T) {
	g, repo, _, clk := newTestGate(t)
	repo.blocks[subjectID] = &domain.Block{UserID: subjectID, ExpiresAt: day(5)}

	clk.t = day(2)
	err := g.Admit(context.Background(), subjectID, domain.ReviewExecutorRegistration)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, day(5), blocked.Until)

	msg, ok := AdmissionMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, formatDate(day(5)))

	clk.t = day(5)
	assert.NoError(t, g.Admit(context.Background(), subjectID, domain.ReviewExecutorRegistration))
}

func TestAdmitCooldownReportsAllowedDate(t *testing.T) {
	g, repo, _, clk := newTestGate(t)
	repo.verified[subjectID] = true
	repo.updatedAt[subjectID] = day(10)

	clk.t = day(12)
	err := g.Admit(context.Background(), subjectID, domain.ReviewExecutorEdit)
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, day(17), cooldown.AllowedAt)

	assert.NoError(t, g.Admit(context.Background(), subjectID, domain.ReviewExecutorRegistration))

	clk.t = day(17)
	assert.NoError(t, g.Admit(context.Background(), subjectID, domain.ReviewExecutorEdit))
}

func TestAdmitRefusesEditOfUnverifiedProfile(t *testing.T) {
	g, repo, _, _ := newTestGate(t)
	repo.updatedAt[subjectID] = day(-30)

	err := g.Admit(context.Background(), subjectID, domain.ReviewExecutorEdit)
	assert.ErrorIs(t, err, ErrProfileUnverified)

	msg, ok := AdmissionMessage(err)
	assert.True(t, ok)
	assert.Contains(t, msg, "not been approved")

	assert.NoError(t, g.Admit(context.Background(), subjectID, domain.ReviewExecutorRegistration))
}

func TestAdmitRefusesUnverifiedEditWithoutCooldown(t *testing.T) {
	repo := newFakeRepo()
	g := NewGate(repo, &fakeRenderer{}, Config{ModeratorChatID: modChatID, Moderators: []int64{moderatorID}}, nil)

	assert.ErrorIs(t, g.Admit(context.Background(), subjectID, domain.ReviewClientEdit), ErrProfileUnverified)

	repo.verified[subjectID] = true
	assert.NoError(t, g.Admit(context.Background(), subjectID, domain.ReviewClientEdit))
}

func TestAdmitRefusesWhileReviewOpen(t *testing.T) {
	g, _, _, _ := newTestGate(t)
	submit(t, g, domain.ReviewClientRegistration)

	err := g.Admit(context.Background(), subjectID, domain.ReviewClientRegistration)
	assert.ErrorIs(t, err, ErrReviewPending)

	msg, ok := AdmissionMessage(err)
	assert.True(t, ok)
	assert.True(t, strings.Contains(msg, "still being reviewed"))

	_, ok = AdmissionMessage(errors.New("boom"))
	assert.False(t, ok)
}
