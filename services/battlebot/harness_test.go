package battlebot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"musicbattle/battle"
	"musicbattle/dedupe"
	"musicbattle/journal"
	"musicbattle/settlement"
	"musicbattle/tracks"
	"musicbattle/transport"
	"musicbattle/wallet"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []transport.Message
	fail func(transport.Message) error
}

func (s *recordingSink) Send(_ context.Context, msg transport.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(msg); err != nil {
			return err
		}
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) messages() []transport.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Message(nil), s.msgs...)
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (m *memoryJournal) Record(_ context.Context, entry journal.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryJournal) all() []journal.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.Entry(nil), m.entries...)
}

type failingPersister struct{}

func (failingPersister) Load(context.Context) (map[string]wallet.Record, error) { return nil, nil }
func (failingPersister) Save(context.Context, map[string]wallet.Record) error {
	return errors.New("disk full")
}

// fakeBackend serves the settlement routes a test registers and counts calls
// per route.
type fakeBackend struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  map[string]int
}

func (f *fakeBackend) handle(pattern string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[pattern] = h
}

func (f *fakeBackend) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pattern]
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pattern := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls[pattern]++
	h, ok := f.routes[pattern]
	f.mu.Unlock()
	if !ok {
		http.Error(w, `{"error":"no route"}`, http.StatusNotFound)
		return
	}
	h(w, r)
}

type harness struct {
	backend    *fakeBackend
	wallets    *wallet.Registry
	store      *battle.Store
	journal    *memoryJournal
	dispatcher *Dispatcher
}

type harnessOptions struct {
	persister wallet.Persister
	rateLimit RateLimitConfig
	clock     func() time.Time
	provider  tracks.Provider
}

func identityPerm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func newHarness(t *testing.T, hopts harnessOptions) *harness {
	t.Helper()
	backend := &fakeBackend{routes: map[string]http.HandlerFunc{}, calls: map[string]int{}}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := settlement.NewClient(settlement.Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	registry := wallet.NewRegistry(hopts.persister)
	genres, err := battle.NewGenreBook(battle.DefaultGenres())
	require.NoError(t, err)
	creators, err := battle.NewCreatorPool(battle.DefaultCreators())
	require.NoError(t, err)
	var provider tracks.Provider = tracks.NewCatalogProvider(tracks.DefaultCatalog())
	if hopts.provider != nil {
		provider = hopts.provider
	}
	store := battle.NewStore()
	controller, err := battle.NewController(battle.ControllerConfig{
		Genres:   genres,
		Creators: creators,
		Provider: provider,
		Wallets:  registry,
		Backend:  client,
		Store:    store,
	}, battle.WithPermutation(identityPerm))
	require.NoError(t, err)
	votes, err := battle.NewCoordinator(registry, client, store)
	require.NoError(t, err)

	j := &memoryJournal{}
	opts := []DispatcherOption{}
	if hopts.clock != nil {
		opts = append(opts, WithDispatcherClock(hopts.clock))
	}
	d, err := NewDispatcher(DispatcherConfig{
		Controller: controller,
		Votes:      votes,
		Wallets:    registry,
		Guard:      dedupe.NewGuard(dedupe.NewMemoryStore(), time.Minute),
		Journal:    j,
		RateLimit:  hopts.rateLimit,
	}, opts...)
	require.NoError(t, err)
	return &harness{backend: backend, wallets: registry, store: store, journal: j, dispatcher: d}
}

var deliverySeq atomic.Int64

func nextDelivery() string {
	return "d-" + strconv.FormatInt(deliverySeq.Add(1), 10)
}

func textEvent(participant, text string) transport.Inbound {
	return transport.Inbound{
		ID:          nextDelivery(),
		Participant: transport.Participant{ID: transport.FlexString(participant), DisplayName: "alice"},
		ChatID:      "chat-1",
		Text:        text,
	}
}

func actionEvent(participant string, action *transport.Action) transport.Inbound {
	return transport.Inbound{
		ID:          nextDelivery(),
		Participant: transport.Participant{ID: transport.FlexString(participant), DisplayName: "alice"},
		ChatID:      "chat-1",
		Action:      action,
	}
}

func (h *harness) handle(t *testing.T, in transport.Inbound) []transport.Message {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, h.dispatcher.Handle(context.Background(), in, sink))
	return sink.messages()
}

func (h *harness) registerWallet(t *testing.T, participant, address string) {
	t.Helper()
	_, err := h.wallets.SetWallet(context.Background(), participant, address, "alice")
	require.NoError(t, err)
}
