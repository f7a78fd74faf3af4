package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRegistry stores collections as JSON so callers get copies, matching
// the KV-backed registry's semantics.
type fakeRegistry struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{data: make(map[string][]byte)}
}

func (r *fakeRegistry) Create(_ context.Context, c *Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[c.ID]; ok {
		return fmt.Errorf("%w: collection %s", ErrAlreadyExists, c.ID)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	r.data[c.ID] = data
	return nil
}

func (r *fakeRegistry) Get(_ context.Context, id string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Proposals == nil {
		c.Proposals = make(map[string]*Proposal)
	}
	return &c, nil
}

func (r *fakeRegistry) Put(_ context.Context, c *Collection) error {
	if r.putErr != nil {
		return r.putErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	r.data[c.ID] = data
	return nil
}

func (r *fakeRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	delete(r.data, id)
	return nil
}

func (r *fakeRegistry) List(_ context.Context) ([]*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Collection, 0, len(r.data))
	for _, data := range r.data {
		var c Collection
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, nil
}

// fakeArchive counts collaborator calls so tests can prove which phases
// reached it.
type fakeArchive struct {
	createCalls int
	deleteCalls int
	addCalls    int
	embedCalls  []string
	deletedDocs []string

	embedFailOn string
	createErr   error
}

func (a *fakeArchive) CreateCollection(_ context.Context, _ string) (string, error) {
	a.createCalls++
	if a.createErr != nil {
		return "", a.createErr
	}
	return fmt.Sprintf("arch-%d", a.createCalls), nil
}

func (a *fakeArchive) DeleteCollection(_ context.Context, _ string) error {
	a.deleteCalls++
	return nil
}

func (a *fakeArchive) AddDocument(_ context.Context, _, _, _ string) (string, error) {
	a.addCalls++
	return fmt.Sprintf("doc-%d", a.addCalls), nil
}

func (a *fakeArchive) EmbedDocument(_ context.Context, _, docID string) (int, error) {
	if docID == a.embedFailOn {
		return 0, fmt.Errorf("embedding backend unavailable")
	}
	a.embedCalls = append(a.embedCalls, docID)
	return 3, nil
}

func (a *fakeArchive) DeleteDocument(_ context.Context, _, docID string) error {
	a.deletedDocs = append(a.deletedDocs, docID)
	return nil
}

type stubBudget struct {
	preflightErr   error
	preflightCalls int
	recorded       int
}

func (b *stubBudget) PreflightEmbed(_ context.Context, _ int) error {
	b.preflightCalls++
	return b.preflightErr
}

func (b *stubBudget) RecordEmbed(_ context.Context, docs int) error {
	b.recorded += docs
	return nil
}

type recordSink struct {
	mu     sync.Mutex
	events []ProposalEvent
}

func (s *recordSink) ProposalEvent(_ context.Context, ev ProposalEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

// testClock is a settable clock for expiry tests.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type engineFixture struct {
	engine    *Engine
	registry  *fakeRegistry
	archive   *fakeArchive
	tokens    *stubTokens
	decisions *stubDecisions
	budget    *stubBudget
	events    *recordSink
	clock     *testClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		registry:  newFakeRegistry(),
		archive:   &fakeArchive{},
		tokens:    &stubTokens{balances: map[string]uint64{}, supply: 1000},
		decisions: &stubDecisions{status: DecisionOpen},
		budget:    &stubBudget{},
		events:    &recordSink{},
		clock:     newTestClock(),
	}
	engine, err := NewEngine(Options{
		Registry:  f.registry,
		Tokens:    f.tokens,
		Decisions: f.decisions,
		Archive:   f.archive,
		Budget:    f.budget,
		Events:    f.events,
		Now:       f.clock.Now,
		locks:     newCollectionLocks(),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.engine = engine
	return f
}

func (f *engineFixture) mustCreate(t *testing.T, req CreateCollectionRequest) *Collection {
	t.Helper()
	c, err := f.engine.CreateCollection(context.Background(), "alice", req)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *engineFixture) addAdmins(t *testing.T, collectionID string, admins ...string) {
	t.Helper()
	c, err := f.registry.Get(context.Background(), collectionID)
	if err != nil {
		t.Fatal(err)
	}
	c.Admins = append(c.Admins, admins...)
	if err := f.registry.Put(context.Background(), c); err != nil {
		t.Fatal(err)
	}
}

func TestNewEngineRequiresRegistry(t *testing.T) {
	_, err := NewEngine(Options{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateCollection(t *testing.T) {
	f := newEngineFixture(t)

	c := f.mustCreate(t, CreateCollectionRequest{Name: "notes", Model: ModelMultisig, Threshold: 1})
	if c.Creator != "alice" || !c.IsAdmin("alice") {
		t.Error("creator is not the initial admin")
	}
	if c.ArchiveCollectionID == "" {
		t.Error("archive collection not provisioned")
	}
	if f.archive.createCalls != 1 {
		t.Errorf("archive create calls = %d, want 1", f.archive.createCalls)
	}
}

func TestCreateCollectionMultisigDefaultThreshold(t *testing.T) {
	f := newEngineFixture(t)
	c := f.mustCreate(t, CreateCollectionRequest{Name: "notes", Model: ModelMultisig})
	if c.Threshold != 1 {
		t.Errorf("default multisig threshold = %d, want 1", c.Threshold)
	}
}

func TestCreateCollectionValidation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	if _, err := f.engine.CreateCollection(ctx, "", CreateCollectionRequest{Name: "n", Model: ModelMultisig}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank creator: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.engine.CreateCollection(ctx, "alice", CreateCollectionRequest{Model: ModelMultisig}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank name: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.engine.CreateCollection(ctx, "alice", CreateCollectionRequest{Name: "n", Model: "anarchy"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad model: err = %v, want ErrInvalidInput", err)
	}
	if _, err := f.engine.CreateCollection(ctx, "alice", CreateCollectionRequest{Name: "n", Model: ModelTokenWeighted}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("token model without token: err = %v, want ErrInvalidInput", err)
	}
	if f.archive.createCalls != 0 {
		t.Errorf("archive touched for invalid collections: %d calls", f.archive.createCalls)
	}
}

func TestCreateProposalStanding(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	multisig := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig})
	token := f.mustCreate(t, CreateCollectionRequest{Name: "tok", Model: ModelTokenWeighted, GovernanceToken: "gov", QuorumThreshold: 51})
	open := f.mustCreate(t, CreateCollectionRequest{Name: "open", Model: ModelPermissionless})

	f.tokens.balances["holder"] = 10

	if _, err := f.engine.CreateProposal(ctx, multisig.ID, "mallory", "d", AddAdmin{Admin: "bob"}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("multisig non-admin: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := f.engine.CreateProposal(ctx, token.ID, "pauper", "d", UpdateQuorum{NewPercentage: 60}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("token zero balance: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := f.engine.CreateProposal(ctx, token.ID, "holder", "d", UpdateQuorum{NewPercentage: 60}); err != nil {
		t.Errorf("token holder: unexpected err %v", err)
	}
	if _, err := f.engine.CreateProposal(ctx, open.ID, "anyone", "d", AddAdmin{Admin: "bob"}); err != nil {
		t.Errorf("permissionless: unexpected err %v", err)
	}
}

func TestCreateProposalPermissionlessAutoApproves(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "open", Model: ModelPermissionless})
	p, err := f.engine.CreateProposal(ctx, c.ID, "anyone", "add bob", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusApproved || !p.ThresholdMet {
		t.Errorf("status = %s, threshold_met = %v; want approved, true", p.Status, p.ThresholdMet)
	}
	if p.Executed {
		t.Error("permissionless proposal auto-executed")
	}

	// Voting on an already-approved proposal is rejected.
	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "anyone", ChoiceYes); !errors.Is(err, ErrInvalidState) {
		t.Errorf("vote on approved: err = %v, want ErrInvalidState", err)
	}
}

func TestVoteMultisigLifecycle(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	f.addAdmins(t, c.ID, "bob", "carol")

	// Raise the threshold to 2 of 3 before proposing.
	col, _ := f.registry.Get(ctx, c.ID)
	col.Threshold = 2
	if err := f.registry.Put(ctx, col); err != nil {
		t.Fatal(err)
	}

	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "add dave", AddAdmin{Admin: "dave"})
	if err != nil {
		t.Fatal(err)
	}

	p, err = f.engine.Vote(ctx, c.ID, p.ID, "alice", ChoiceYes)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusActive {
		t.Errorf("status after first yes = %s, want active", p.Status)
	}

	p, err = f.engine.Vote(ctx, c.ID, p.ID, "bob", ChoiceYes)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusApproved || !p.ThresholdMet {
		t.Errorf("status after second yes = %s, want approved", p.Status)
	}

	// Approval persisted in the same write as the vote.
	stored, err := f.engine.GetStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusApproved {
		t.Errorf("persisted status = %s, want approved", stored.Status)
	}
}

func TestVoteDoublePrevented(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	f.addAdmins(t, c.ID, "bob")
	col, _ := f.registry.Get(ctx, c.ID)
	col.Threshold = 2
	if err := f.registry.Put(ctx, col); err != nil {
		t.Fatal(err)
	}

	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "dave"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "alice", ChoiceYes); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "alice", ChoiceNo); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("second vote: err = %v, want ErrAlreadyExists", err)
	}

	// The first vote is unchanged.
	stored, err := f.engine.GetStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Votes["alice"] != ChoiceYes {
		t.Errorf("vote = %s, want yes", stored.Votes["alice"])
	}
}

func TestVoteNonAdminRejected(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	f.addAdmins(t, c.ID, "bob")
	col, _ := f.registry.Get(ctx, c.ID)
	col.Threshold = 2
	if err := f.registry.Put(ctx, col); err != nil {
		t.Fatal(err)
	}

	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "dave"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "mallory", ChoiceYes); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestVoteTokenWeightedSnapshots(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.tokens.supply = 1000
	f.tokens.balances["whale"] = 510
	f.tokens.balances["minnow"] = 1

	c := f.mustCreate(t, CreateCollectionRequest{
		Name: "tok", Model: ModelTokenWeighted, GovernanceToken: "gov", QuorumThreshold: 51,
	})

	p, err := f.engine.CreateProposal(ctx, c.ID, "whale", "d", UpdateQuorum{NewPercentage: 60})
	if err != nil {
		t.Fatal(err)
	}

	p, err = f.engine.Vote(ctx, c.ID, p.ID, "minnow", ChoiceYes)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusActive {
		t.Errorf("status with 1 of 1000 weight = %s, want active", p.Status)
	}
	if p.TokenVotes["minnow"] != 1 {
		t.Errorf("snapshot = %d, want 1", p.TokenVotes["minnow"])
	}

	p, err = f.engine.Vote(ctx, c.ID, p.ID, "whale", ChoiceYes)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusApproved {
		t.Errorf("status with 511 of 1000 weight = %s, want approved", p.Status)
	}
}

func TestVoteExpiredProposal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(DefaultProposalTTL + time.Hour)

	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "alice", ChoiceYes); !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}

	// The expiry is persisted in place; the proposal stays queryable.
	stored, err := f.engine.GetStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusExpired {
		t.Errorf("persisted status = %s, want expired", stored.Status)
	}

	// Repeated votes keep reporting expiry without a second expiry event.
	before := len(f.events.kinds())
	if _, err := f.engine.Vote(ctx, c.ID, p.ID, "alice", ChoiceYes); !errors.Is(err, ErrExpired) {
		t.Errorf("repeat vote: err = %v, want ErrExpired", err)
	}
	if len(f.events.kinds()) != before {
		t.Error("repeat vote emitted additional events")
	}

	// Cleanup prunes the lazily-expired entry.
	removed, err := f.engine.CleanupExpired(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := f.engine.GetStatus(ctx, c.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after cleanup: err = %v, want ErrNotFound", err)
	}
}

func TestVoteSupplyOutageFailsVote(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.tokens.supply = 1000
	f.tokens.balances["whale"] = 510

	c := f.mustCreate(t, CreateCollectionRequest{
		Name: "tok", Model: ModelTokenWeighted, GovernanceToken: "gov", QuorumThreshold: 51,
	})
	p, err := f.engine.CreateProposal(ctx, c.ID, "whale", "d", UpdateQuorum{NewPercentage: 60})
	if err != nil {
		t.Fatal(err)
	}

	// Supply lookup fails after the ballot passes standing checks; the vote
	// must not persist, or the double-vote guard would strand the proposal.
	f.tokens.supplyErr = fmt.Errorf("ledger offline")

	_, err = f.engine.Vote(ctx, c.ID, p.ID, "whale", ChoiceYes)
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}

	stored, err := f.engine.GetStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Votes) != 0 {
		t.Fatalf("votes persisted despite evaluation failure: %v", stored.Votes)
	}

	// Once the ledger recovers the same ballot lands and approves.
	f.tokens.supplyErr = nil
	got, err := f.engine.Vote(ctx, c.ID, p.ID, "whale", ChoiceYes)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}
}

func TestGetStatusReportsExpiryWithoutPersisting(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(DefaultProposalTTL + time.Hour)

	got, err := f.engine.GetStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}

	// Still present in storage as active; the write happens lazily.
	col, err := f.registry.Get(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored, ok := col.Proposals[p.ID]; !ok || stored.Status != StatusActive {
		t.Error("expiry view was persisted eagerly")
	}
}

func TestListActiveProposals(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	p1, err := f.engine.CreateProposal(ctx, c.ID, "alice", "first", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	p2, err := f.engine.CreateProposal(ctx, c.ID, "alice", "second", AddAdmin{Admin: "carol"})
	if err != nil {
		t.Fatal(err)
	}

	active, err := f.engine.ListActiveProposals(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	if active[0].ID != p1.ID || active[1].ID != p2.ID {
		t.Error("active proposals not sorted by creation time")
	}

	// Past the first proposal's window only the second remains.
	f.clock.Advance(DefaultProposalTTL - 30*time.Minute)
	active, err = f.engine.ListActiveProposals(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != p2.ID {
		t.Errorf("active after partial expiry = %d, want just %s", len(active), p2.ID)
	}
}

func TestCleanupExpired(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "ms", Model: ModelMultisig, Threshold: 1})
	if _, err := f.engine.CreateProposal(ctx, c.ID, "alice", "one", AddAdmin{Admin: "bob"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CreateProposal(ctx, c.ID, "alice", "two", AddAdmin{Admin: "carol"}); err != nil {
		t.Fatal(err)
	}

	// Nothing expired yet.
	removed, err := f.engine.CleanupExpired(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	f.clock.Advance(DefaultProposalTTL + time.Hour)

	removed, err = f.engine.CleanupExpired(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	// Idempotent: a second pass removes nothing.
	removed, err = f.engine.CleanupExpired(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Errorf("second cleanup removed = %d, want 0", removed)
	}
}

func TestLinkAssemblyProposal(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "asm", Model: ModelAssembly, AssemblyID: "asm-1"})
	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "mallory", 7); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("non-admin link: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "alice", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero ref: err = %v, want ErrInvalidInput", err)
	}

	linked, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "alice", 7)
	if err != nil {
		t.Fatal(err)
	}
	if linked.AssemblyProposalID != 7 {
		t.Errorf("assembly ref = %d, want 7", linked.AssemblyProposalID)
	}

	// Write-once.
	if _, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "alice", 8); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("relink: err = %v, want ErrAlreadyExists", err)
	}
}

func TestSyncAssemblyStatus(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "asm", Model: ModelAssembly, AssemblyID: "asm-1"})
	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}

	// Unlinked proposals cannot sync.
	if _, err := f.engine.SyncAssemblyStatus(ctx, c.ID, p.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unlinked sync: err = %v, want ErrInvalidState", err)
	}

	if _, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "alice", 7); err != nil {
		t.Fatal(err)
	}

	// Still open: nothing recorded.
	f.decisions.status = DecisionOpen
	got, err := f.engine.SyncAssemblyStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusActive {
		t.Errorf("status after open verdict = %s, want active", got.Status)
	}

	// Adopted: approved locally.
	f.decisions.status = DecisionAdopted
	got, err = f.engine.SyncAssemblyStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusApproved {
		t.Errorf("status after adopted verdict = %s, want approved", got.Status)
	}
}

func TestSyncAssemblyStatusRejection(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	c := f.mustCreate(t, CreateCollectionRequest{Name: "asm", Model: ModelAssembly, AssemblyID: "asm-1"})
	p, err := f.engine.CreateProposal(ctx, c.ID, "alice", "d", AddAdmin{Admin: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.LinkAssemblyProposal(ctx, c.ID, p.ID, "alice", 7); err != nil {
		t.Fatal(err)
	}

	f.decisions.status = DecisionRejected
	got, err := f.engine.SyncAssemblyStatus(ctx, c.ID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rejected", got.Status)
	}

	// Rejected proposals are pruned.
	if _, err := f.engine.GetStatus(ctx, c.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after rejection: err = %v, want ErrNotFound", err)
	}
}

func TestListCollectionsSorted(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first := f.mustCreate(t, CreateCollectionRequest{Name: "first", Model: ModelPermissionless})
	f.clock.Advance(time.Minute)
	second := f.mustCreate(t, CreateCollectionRequest{Name: "second", Model: ModelPermissionless})

	cols, err := f.engine.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 2 {
		t.Fatalf("collections = %d, want 2", len(cols))
	}
	if cols[0].ID != first.ID || cols[1].ID != second.ID {
		t.Error("collections not sorted by creation time")
	}
}
