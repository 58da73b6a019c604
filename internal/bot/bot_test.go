package bot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/taskmarket/internal/chat"
	"github.com/ashureev/taskmarket/internal/domain"
	"github.com/ashureev/taskmarket/internal/moderation"
	"github.com/ashureev/taskmarket/internal/session"
	"github.com/ashureev/taskmarket/internal/workflow"
)

const (
	userID      = int64(42)
	moderatorID = int64(7)
	modChatID   = int64(-100)
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	mu        sync.Mutex
	users     map[int64]*domain.User
	executors map[int64]*domain.ExecutorProfile
	clients   map[int64]*domain.ClientProfile
	orders    []*domain.Order
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     map[int64]*domain.User{},
		executors: map[int64]*domain.ExecutorProfile{},
		clients:   map[int64]*domain.ClientProfile{},
	}
}

func (r *fakeRepo) UpsertUser(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.users[u.UserID]; ok {
		cur.Username = u.Username
		return nil
	}
	c := *u
	r.users[u.UserID] = &c
	return nil
}

func (r *fakeRepo) GetUser(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *fakeRepo) setRole(id int64, role domain.Role) {
	if u, ok := r.users[id]; ok {
		u.Role = role
		return
	}
	r.users[id] = &domain.User{UserID: id, Role: role}
}

func (r *fakeRepo) CreateExecutorProfile(_ context.Context, p *domain.ExecutorProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.executors[p.UserID] = p
	r.setRole(p.UserID, domain.RoleExecutor)
	return nil
}

func (r *fakeRepo) CreateClientProfile(_ context.Context, p *domain.ClientProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.clients[p.UserID] = p
	r.setRole(p.UserID, domain.RoleClient)
	return nil
}

func (r *fakeRepo) DiscardProfile(_ context.Context, id int64, subject string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch subject {
	case "executor":
		if p, ok := r.executors[id]; !ok || p.Verified {
			return false, nil
		}
		delete(r.executors, id)
	case "client":
		if p, ok := r.clients[id]; !ok || p.Verified {
			return false, nil
		}
		delete(r.clients, id)
	}
	r.setRole(id, domain.RoleNone)
	return true, nil
}

func (r *fakeRepo) GetExecutorProfile(_ context.Context, id int64) (*domain.ExecutorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executors[id], nil
}

func (r *fakeRepo) GetClientProfile(_ context.Context, id int64) (*domain.ClientProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[id], nil
}

func (r *fakeRepo) CreateOrder(_ context.Context, o *domain.Order) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	o.ID = int64(len(r.orders))
	return o.ID, nil
}

func (r *fakeRepo) ListOrders(_ context.Context, clientID int64) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListProfessions(context.Context) ([]domain.Profession, error) {
	return []domain.Profession{{ID: 1, Name: "Design"}, {ID: 2, Name: "Development"}}, nil
}

func (r *fakeRepo) ListJobs(_ context.Context, professionID int64) ([]domain.Job, error) {
	all := []domain.Job{
		{ID: 1, ProfessionID: 1, Name: "Logo"},
		{ID: 2, ProfessionID: 1, Name: "Web design"},
		{ID: 3, ProfessionID: 2, Name: "Backend"},
	}
	if professionID == 0 {
		return all, nil
	}
	var out []domain.Job
	for _, j := range all {
		if j.ProfessionID == professionID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListLanguages(context.Context) ([]domain.Language, error) {
	return []domain.Language{{ID: 1, Name: "English"}, {ID: 2, Name: "German"}}, nil
}

type fakeModeration struct {
	mu          sync.Mutex
	submissions []moderation.Submission
	admitErr    error
	submitErr   error
	actions     []string
	notice      string
}

func (m *fakeModeration) Submit(_ context.Context, s moderation.Submission) (*domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submissions = append(m.submissions, s)
	return &domain.Review{ID: "r1", SubjectID: s.SubjectID, Kind: s.Kind}, nil
}

func (m *fakeModeration) Admit(context.Context, int64, domain.ReviewKind) error {
	return m.admitErr
}

func (m *fakeModeration) HandleAction(_ context.Context, _ int64, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, token)
	return m.notice, nil
}

type fakeFiles struct {
	fetched map[string]string
}

func (f *fakeFiles) Fetch(_ context.Context, subjectID int64, fileID, name string) (string, error) {
	if f.fetched == nil {
		f.fetched = map[string]string{}
	}
	p := path.Join("/data", fmt.Sprint(subjectID), name)
	f.fetched[fileID] = p
	return p, nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	nextID int
	sent   []chat.Prompt
}

func (f *fakeRenderer) Send(_ context.Context, chatID int64, p chat.Prompt) (chat.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, p)
	return chat.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeRenderer) Edit(_ context.Context, ref chat.MessageRef, _ chat.Prompt) (chat.MessageRef, error) {
	return ref, nil
}

func (f *fakeRenderer) ClearActions(context.Context, chat.MessageRef) error {
	return nil
}

func (f *fakeRenderer) last() chat.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return chat.Prompt{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeCallbacks struct {
	answers map[string]string
}

func (f *fakeCallbacks) AnswerCallback(_ context.Context, id, text string) error {
	if f.answers == nil {
		f.answers = map[string]string{}
	}
	f.answers[id] = text
	return nil
}

type fixture struct {
	bot       *Bot
	repo      *fakeRepo
	mod       *fakeModeration
	files     *fakeFiles
	render    *fakeRenderer
	callbacks *fakeCallbacks
	sessions  *session.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newFakeRepo(),
		mod:       &fakeModeration{},
		files:     &fakeFiles{},
		render:    &fakeRenderer{},
		callbacks: &fakeCallbacks{},
		sessions:  session.NewMemoryStore(),
	}
	b, err := New(Config{
		Sessions:   f.sessions,
		Renderer:   f.render,
		Callbacks:  f.callbacks,
		Repo:       f.repo,
		Moderation: f.mod,
		Files:      f.files,
		Now:        func() time.Time { return now },
	}, nil)
	require.NoError(t, err)
	f.bot = b
	return f
}

func (f *fixture) press(t *testing.T, from, chatID int64, token string) {
	t.Helper()
	f.bot.HandleEvent(context.Background(), chat.Event{
		UserID:     from,
		ChatID:     chatID,
		CallbackID: "cb-" + token,
		Input:      chat.ActionInput{Token: token},
	})
}

func (f *fixture) say(t *testing.T, text string) {
	t.Helper()
	f.bot.HandleEvent(context.Background(), chat.Event{UserID: userID, ChatID: userID, Username: "anna", Input: chat.TextInput{Text: text}})
}

func executorDraft() workflow.Draft {
	return workflow.Draft{
		UserID:   userID,
		Workflow: workflow.ExecutorRegistration,
		Purpose:  workflow.PurposeRegistration,
		Subject:  "executor",
		Answers: session.Answers{
			domain.FieldName:        {"Anna"},
			domain.FieldPhoto:       {"file-photo"},
			domain.FieldAge:         {"30"},
			domain.FieldProfession:  {"1"},
			domain.FieldJobs:        {"1", "2"},
			domain.FieldDescription: {"Logos and sites"},
			domain.FieldRate:        {"2000/hr"},
			domain.FieldExperience:  {"5 years"},
			domain.FieldLinks:       {"https://example.com"},
		},
		CompletedAt: now,
	}
}

func TestStartShowsRegistrationMenu(t *testing.T) {
	f := newFixture(t)

	f.say(t, "/start")

	u, _ := f.repo.GetUser(context.Background(), userID)
	require.NotNil(t, u)
	assert.Equal(t, "anna", u.Username)
	last := f.render.last()
	assert.Contains(t, last.Text, "Who are you?")
	require.Len(t, last.Rows, 2)
	assert.Equal(t, "menu:reg:executor", last.Rows[0][0].Token)
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	f.say(t, "/frobnicate")

	assert.Contains(t, f.render.last().Text, "Unknown command")
}

func TestCommitExecutorRegistration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.UpsertUser(context.Background(), &domain.User{UserID: userID, Username: "anna"}))

	require.NoError(t, f.bot.Commit(context.Background(), executorDraft()))

	p := f.repo.executors[userID]
	require.NotNil(t, p)
	assert.Equal(t, "/data/42/photo.jpg", p.PhotoPath)
	assert.Equal(t, 30, p.Age)
	assert.Equal(t, int64(1), p.ProfessionID)
	assert.Equal(t, []int64{1, 2}, p.JobIDs)
	assert.Equal(t, []string{"https://example.com"}, p.Links)

	require.Len(t, f.mod.submissions, 1)
	sub := f.mod.submissions[0]
	assert.Equal(t, domain.ReviewExecutorRegistration, sub.Kind)
	assert.Equal(t, "anna", sub.Username)
	assert.Contains(t, sub.Summary, "Jobs: Logo, Web design")
	assert.Contains(t, sub.Summary, "Photo: attached")
	assert.Contains(t, f.render.last().Text, "sent to the moderators")
}

func TestCommitFailsWhenSubmitFails(t *testing.T) {
	f := newFixture(t)
	f.mod.submitErr = errors.New("telegram down")

	err := f.bot.Commit(context.Background(), executorDraft())

	require.Error(t, err)
	assert.Empty(t, f.mod.submissions)
	assert.Nil(t, f.repo.executors[userID], "an unreviewed profile must not survive")
	u, _ := f.repo.GetUser(context.Background(), userID)
	require.NotNil(t, u)
	assert.Equal(t, domain.RoleNone, u.Role)
}

func TestCommitEditSubmitFailureKeepsProfile(t *testing.T) {
	f := newFixture(t)
	f.repo.executors[userID] = &domain.ExecutorProfile{UserID: userID, Name: "Anna", Verified: true}
	f.repo.setRole(userID, domain.RoleExecutor)
	f.mod.submitErr = errors.New("telegram down")
	d := workflow.Draft{
		UserID:      userID,
		Workflow:    workflow.ExecutorEditPrefix + domain.FieldAge,
		Purpose:     workflow.PurposeEdit,
		Subject:     "executor",
		Fields:      []string{domain.FieldAge},
		Answers:     session.Answers{domain.FieldAge: {"31"}},
		CompletedAt: now,
	}

	require.Error(t, f.bot.Commit(context.Background(), d))

	assert.NotNil(t, f.repo.executors[userID])
}

func TestCommitEditPayload(t *testing.T) {
	f := newFixture(t)
	d := workflow.Draft{
		UserID:      userID,
		Workflow:    workflow.ExecutorEditPrefix + domain.FieldPhoto,
		Purpose:     workflow.PurposeEdit,
		Subject:     "executor",
		Fields:      []string{domain.FieldPhoto},
		Answers:     session.Answers{domain.FieldPhoto: {"file-new"}},
		CompletedAt: now,
	}

	require.NoError(t, f.bot.Commit(context.Background(), d))

	require.Len(t, f.mod.submissions, 1)
	sub := f.mod.submissions[0]
	assert.Equal(t, domain.ReviewExecutorEdit, sub.Kind)
	assert.Equal(t, []string{domain.FieldPhoto}, sub.Fields)
	assert.Equal(t, []string{fmt.Sprintf("/data/42/photo-%d.jpg", now.Unix())}, sub.Payload[domain.FieldPhoto])
	assert.Nil(t, f.repo.executors[userID], "edits must not touch the live profile")
	assert.Contains(t, f.render.last().Text, "will appear once approved")
}

func TestCommitEditSkippedFieldClears(t *testing.T) {
	f := newFixture(t)
	d := workflow.Draft{
		UserID:      userID,
		Workflow:    workflow.ExecutorEditPrefix + domain.FieldLinks,
		Purpose:     workflow.PurposeEdit,
		Subject:     "executor",
		Fields:      []string{domain.FieldLinks},
		Answers:     session.Answers{},
		CompletedAt: now,
	}

	require.NoError(t, f.bot.Commit(context.Background(), d))

	payload := f.mod.submissions[0].Payload
	require.Contains(t, payload, domain.FieldLinks)
	assert.Empty(t, payload[domain.FieldLinks])
	assert.NotNil(t, payload[domain.FieldLinks])
}

func TestCommitOrder(t *testing.T) {
	f := newFixture(t)
	d := workflow.Draft{
		UserID:   userID,
		Workflow: workflow.CreateOrder,
		Purpose:  workflow.PurposeOrder,
		Subject:  "order",
		Answers: session.Answers{
			domain.FieldTitle:       {"Landing page"},
			domain.FieldDescription: {"One page site"},
			domain.FieldJobs:        {"2", "3"},
			domain.FieldBudget:      {"50000"},
			domain.FieldDeadline:    {"14"},
			domain.FieldFiles:       {"doc-a", "doc-b"},
		},
		CompletedAt: now,
	}

	require.NoError(t, f.bot.Commit(context.Background(), d))

	require.Len(t, f.repo.orders, 1)
	o := f.repo.orders[0]
	assert.Equal(t, int64(50000), o.Budget)
	assert.Equal(t, 14, o.DeadlineDays)
	assert.Equal(t, []int64{2, 3}, o.JobIDs)
	assert.Len(t, o.Files, 2)
	assert.Empty(t, f.mod.submissions)
	assert.Equal(t, "Your order #1 has been published.", f.render.last().Text)
}

func TestRegistrationRefusedWhileBlocked(t *testing.T) {
	f := newFixture(t)
	blocked := &moderation.BlockedError{Until: now.Add(72 * time.Hour), Reasons: []string{"photo"}}
	f.mod.admitErr = blocked

	f.press(t, userID, userID, "menu:reg:executor")

	want, ok := moderation.AdmissionMessage(blocked)
	require.True(t, ok)
	assert.Equal(t, want, f.render.last().Text)
	s, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Contains(t, f.callbacks.answers, "cb-menu:reg:executor")
}

func TestRegistrationStartsWorkflow(t *testing.T) {
	f := newFixture(t)

	f.press(t, userID, userID, "menu:reg:client")

	s, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, workflow.ClientRegistration, s.Workflow)
}

func TestRegisteredUserCannotRegisterAgain(t *testing.T) {
	f := newFixture(t)
	f.repo.setRole(userID, domain.RoleExecutor)

	f.press(t, userID, userID, "menu:reg:client")

	assert.Equal(t, "You are already registered.", f.render.last().Text)
}

func TestOrderRequiresVerifiedClient(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.CreateClientProfile(context.Background(), &domain.ClientProfile{UserID: userID, Name: "Bob"}))

	f.press(t, userID, userID, "menu:order")
	assert.Equal(t, "Only clients with an approved profile can post orders.", f.render.last().Text)

	f.repo.clients[userID].Verified = true
	f.press(t, userID, userID, "menu:order")

	s, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, workflow.CreateOrder, s.Workflow)
}

func TestEditJobsSeedsCurrentSelection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.CreateExecutorProfile(context.Background(), &domain.ExecutorProfile{
		UserID: userID, ProfessionID: 1, JobIDs: []int64{2},
	}))

	f.press(t, userID, userID, "menu:edit:"+workflow.ExecutorEditPrefix+domain.FieldJobs)

	s, err := f.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "1", s.Answers.Get(domain.FieldProfession))
	assert.Equal(t, []string{"2"}, s.Answers[domain.FieldJobs])
}

func TestEditPickerListsExecutorFields(t *testing.T) {
	f := newFixture(t)
	f.repo.setRole(userID, domain.RoleExecutor)

	f.press(t, userID, userID, "menu:edit")

	last := f.render.last()
	assert.Equal(t, "What would you like to change?", last.Text)
	assert.Equal(t, "menu:edit:executor_edit_name", last.Rows[0][0].Token)
}

func TestModerationActionAnswered(t *testing.T) {
	f := newFixture(t)
	f.mod.notice = "Approved."

	f.press(t, moderatorID, modChatID, "mod:approve:r1")

	assert.Equal(t, []string{"mod:approve:r1"}, f.mod.actions)
	assert.Equal(t, "Approved.", f.callbacks.answers["cb-mod:approve:r1"])
}

func TestMenuIgnoredOutsidePrivateChat(t *testing.T) {
	f := newFixture(t)

	f.press(t, userID, modChatID, "menu:home")

	assert.Empty(t, f.render.sent)
}

func TestStaleWorkflowButton(t *testing.T) {
	f := newFixture(t)

	f.press(t, userID, userID, "wf:opt:1")

	assert.Equal(t, "This form is no longer active.", f.callbacks.answers["cb-wf:opt:1"])
}

func TestShowOrders(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.CreateOrder(context.Background(), &domain.Order{ClientID: userID, Title: "Logo", Budget: 100, DeadlineDays: 3, Status: domain.OrderOpen})
	require.NoError(t, err)

	f.press(t, userID, userID, "menu:orders")

	assert.Equal(t, "Your orders:\n#1 Logo: 100, 3 day(s), open", f.render.last().Text)
}

func TestCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/start", "start", true},
		{"/START@market_bot hello", "start", true},
		{"hello", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := command(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
