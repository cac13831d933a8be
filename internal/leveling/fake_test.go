package leveling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/internal/guildconfig"
)

const (
	testGuild   = "900000000000000001"
	testChannel = "700000000000000001"
	aliceID     = "800000000000000001"
	bobID       = "800000000000000002"
)

// fakePlatform is an in-memory guild. Role ids are "r<n>".
type fakePlatform struct {
	mu       sync.Mutex
	nextID   int
	roles    map[string]*Role
	members  map[string]map[string]bool
	names    map[string]string
	messages map[string]bool
	reacts   map[string][]string
	deleted  []string

	grants, revokes, creates int
	memberErr                error
	grantErr                 error
	revokeErr                error
	createErr                error
	createFailures           int
	defaultChannel           string
	onReact                  func(messageID, emoji string)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		roles:          map[string]*Role{},
		members:        map[string]map[string]bool{},
		names:          map[string]string{},
		messages:       map[string]bool{},
		reacts:         map[string][]string{},
		defaultChannel: "system",
	}
}

func (f *fakePlatform) addRole(name string) *Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addRoleLocked(name)
}

func (f *fakePlatform) addRoleLocked(name string) *Role {
	f.nextID++
	r := &Role{ID: fmt.Sprintf("r%d", f.nextID), Name: name, Position: f.nextID}
	f.roles[r.ID] = r
	return r
}

func (f *fakePlatform) addMember(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[id] = map[string]bool{}
	f.names[id] = name
}

// setRoles replaces a member's roles and returns the before and after ids.
func (f *fakePlatform) setRoles(memberID string, roleIDs ...string) (before, after []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before = f.roleIDsLocked(memberID)
	f.members[memberID] = map[string]bool{}
	for _, id := range roleIDs {
		f.members[memberID][id] = true
	}
	return before, f.roleIDsLocked(memberID)
}

func (f *fakePlatform) giveRole(memberID, roleID string) (before, after []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before = f.roleIDsLocked(memberID)
	f.members[memberID][roleID] = true
	return before, f.roleIDsLocked(memberID)
}

func (f *fakePlatform) takeRole(memberID, roleID string) (before, after []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before = f.roleIDsLocked(memberID)
	delete(f.members[memberID], roleID)
	return before, f.roleIDsLocked(memberID)
}

func (f *fakePlatform) roleIDsLocked(memberID string) []string {
	ids := make([]string, 0, len(f.members[memberID]))
	for id := range f.members[memberID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// markerNames lists the level markers a member holds.
func (f *fakePlatform) markerNames(memberID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for id := range f.members[memberID] {
		if _, ok := ParseMarker(f.roles[id].Name); ok {
			names = append(names, f.roles[id].Name)
		}
	}
	sort.Strings(names)
	return names
}

func (f *fakePlatform) roleByName(name string) *Role {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (f *fakePlatform) counts() (grants, revokes, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grants, f.revokes, f.creates
}

func (f *fakePlatform) Member(_ context.Context, _, memberID string) (*Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberErr != nil {
		return nil, f.memberErr
	}
	held, ok := f.members[memberID]
	if !ok {
		return nil, ErrNotFound
	}
	m := &Member{ID: memberID, Name: f.names[memberID]}
	for _, id := range f.roleIDsLocked(memberID) {
		if held[id] {
			r := *f.roles[id]
			m.Roles = append(m.Roles, &r)
		}
	}
	return m, nil
}

func (f *fakePlatform) Roles(context.Context, string) ([]*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles := make([]*Role, 0, len(f.roles))
	for _, r := range f.roles {
		c := *r
		roles = append(roles, &c)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Position < roles[j].Position })
	return roles, nil
}

func (f *fakePlatform) CreateRole(_ context.Context, _ string, params RoleParams) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createFailures > 0 {
		f.createFailures--
		return nil, fmt.Errorf("gateway hiccup")
	}
	f.creates++
	r := f.addRoleLocked(params.Name)
	r.Color = params.Color
	c := *r
	return &c, nil
}

func (f *fakePlatform) GrantRole(_ context.Context, _, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grantErr != nil {
		return f.grantErr
	}
	if _, ok := f.members[memberID]; !ok {
		return ErrNotFound
	}
	f.grants++
	f.members[memberID][roleID] = true
	return nil
}

func (f *fakePlatform) RevokeRole(_ context.Context, _, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revokes++
	delete(f.members[memberID], roleID)
	return nil
}

func (f *fakePlatform) FetchMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.messages[messageID] {
		return ErrNotFound
	}
	return nil
}

func (f *fakePlatform) DeleteMessage(_ context.Context, _, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.messages[messageID] {
		return ErrNotFound
	}
	delete(f.messages, messageID)
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakePlatform) AddReaction(_ context.Context, _, messageID, emoji string) error {
	f.mu.Lock()
	f.reacts[messageID] = append(f.reacts[messageID], emoji)
	onReact := f.onReact
	f.mu.Unlock()
	if onReact != nil {
		onReact(messageID, emoji)
	}
	return nil
}

func (f *fakePlatform) DefaultChannel(context.Context, string) (string, error) {
	return f.defaultChannel, nil
}

type published struct {
	channelID string
	n         Notification
}

// fakePublisher records notifications and registers their messages on the platform.
type fakePublisher struct {
	mu       sync.Mutex
	platform *fakePlatform
	next     int
	sent     []published
	onSend   func(msgID string, n *Notification)
}

func (p *fakePublisher) Publish(_ context.Context, channelID string, n *Notification) (string, error) {
	p.mu.Lock()
	p.next++
	msgID := fmt.Sprintf("m%d", p.next)
	p.sent = append(p.sent, published{channelID: channelID, n: *n})
	onSend := p.onSend
	p.mu.Unlock()
	if p.platform != nil {
		p.platform.mu.Lock()
		p.platform.messages[msgID] = true
		p.platform.mu.Unlock()
	}
	if onSend != nil {
		onSend(msgID, n)
	}
	return msgID, nil
}

func (p *fakePublisher) kinds() []NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(p.sent))
	for _, s := range p.sent {
		kinds = append(kinds, s.n.Kind)
	}
	return kinds
}

func (p *fakePublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig("qb_"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store := database.NewStore(db)
	require.NoError(t, store.Migrate())
	t.Cleanup(store.Close)
	return store
}

func testLevels(t *testing.T) *LevelTable {
	t.Helper()
	levels, err := NewLevelTable(config.DefaultThresholds)
	require.NoError(t, err)
	return levels
}

type harness struct {
	engine    *Engine
	store     *database.Store
	platform  *fakePlatform
	publisher *fakePublisher
	configs   *guildconfig.Loader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newTestStore(t)
	platform := newFakePlatform()
	publisher := &fakePublisher{platform: platform}
	configs := guildconfig.NewLoader(store, nil)
	engine := New(Deps{
		Store:     store,
		Configs:   configs,
		Platform:  platform,
		Publisher: publisher,
	}, Options{
		Levels:          testLevels(t),
		BadgeNameExp:    5,
		DefaultQuestExp: 50,
		MaxQuestExp:     10000,
		ConfirmTimeout:  time.Second,
		Workers:         8,
		BackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		},
	})
	engine.Notifier.afterFunc = func(time.Duration, func()) {}
	platform.addMember(aliceID, "alice")
	platform.addMember(bobID, "bob")
	return &harness{engine: engine, store: store, platform: platform, publisher: publisher, configs: configs}
}

// optIn posts an opt-in message and reacts to it as memberID.
func (h *harness) optIn(t *testing.T, memberID string) Outcome {
	t.Helper()
	ctx := context.Background()
	msgID, _, err := h.engine.Admin.SetupOptIn(ctx, testGuild, testChannel)
	require.NoError(t, err)
	out, err := h.engine.Reactor.HandleReaction(ctx, ReactionEvent{
		GuildID: testGuild, ChannelID: testChannel, MessageID: msgID, UserID: memberID, Emoji: ConfirmEmoji,
	})
	require.NoError(t, err)
	h.engine.Reactor.Wait()
	return out
}

func (h *harness) postQuest(t *testing.T, title string, exp int) *database.Quest {
	t.Helper()
	quest, err := h.engine.Admin.CreateQuest(context.Background(), QuestDraft{
		GuildID: testGuild, ChannelID: testChannel, Title: title, Exp: &exp,
	})
	require.NoError(t, err)
	return quest
}

func (h *harness) complete(t *testing.T, quest *database.Quest, memberID string) Outcome {
	t.Helper()
	out, err := h.engine.Reactor.HandleReaction(context.Background(), ReactionEvent{
		GuildID: testGuild, ChannelID: quest.ChannelID, MessageID: quest.MessageID, UserID: memberID, Emoji: ConfirmEmoji,
	})
	require.NoError(t, err)
	h.engine.Reactor.Wait()
	return out
}

func (h *harness) rolesChanged(t *testing.T, memberID string, before, after []string) {
	t.Helper()
	err := h.engine.Reactor.HandleRolesChanged(context.Background(), RolesChangedEvent{
		GuildID: testGuild, MemberID: memberID, Before: before, After: after, BeforeKnown: true,
	})
	require.NoError(t, err)
	h.engine.Reactor.Wait()
}

func (h *harness) total(t *testing.T, memberID string) int {
	t.Helper()
	conf, err := h.configs.Load(context.Background(), testGuild)
	require.NoError(t, err)
	b, err := h.engine.Aggregator.Breakdown(context.Background(), conf, memberID)
	require.NoError(t, err)
	return b.Total()
}

func (h *harness) storedLevel(t *testing.T, memberID string) int {
	t.Helper()
	row, err := h.store.SelectMemberLevel(context.Background(), testGuild, memberID)
	require.NoError(t, err)
	require.NotNil(t, row)
	return row.Level
}
