package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"musicbattle/settlement"
	"musicbattle/tracks"
	"musicbattle/wallet"
)

// Backend is the subset of the settlement client used by the controller and
// the vote coordinator.
type Backend interface {
	StartBattle(ctx context.Context, req settlement.StartBattleRequest) (*settlement.StartBattleResponse, error)
	Vote(ctx context.Context, req settlement.VoteRequest) (*settlement.VoteResponse, error)
	Votes(ctx context.Context, id settlement.BattleID) (*settlement.VoteTally, error)
	Details(ctx context.Context, id settlement.BattleID) (*settlement.BattleDetails, error)
	TotalVoters(ctx context.Context, id settlement.BattleID) (*settlement.VoterCount, error)
	VotersList(ctx context.Context, id settlement.BattleID) (*settlement.VoterList, error)
	Winner(ctx context.Context, id settlement.BattleID) (*settlement.WinnerReport, error)
	Leaderboard(ctx context.Context, id settlement.BattleID) (*settlement.Leaderboard, error)
	Balance(ctx context.Context) (*settlement.ContractBalance, error)
	TransferToOwner(ctx context.Context, req settlement.TransferRequest) (*settlement.TransferResponse, error)
}

// WalletResolver looks up a participant's registered payout address.
type WalletResolver interface {
	GetWallet(participantID string) (wallet.Wallet, error)
}

// Observer receives battle and vote outcomes, typically the metrics bundle.
type Observer interface {
	ObserveBattleAttempt(outcome, failedAt string)
	ObserveVote(status string)
}

// Stage is a step of the battle creation state machine.
type Stage int

const (
	StageGenreOffered Stage = iota + 1
	StageTracksDrawn
	StageWalletChecked
	StageBattleRequested
	StageBattleCreated
	StageCreationFailed
)

func (s Stage) String() string {
	switch s {
	case StageGenreOffered:
		return "genre_offered"
	case StageTracksDrawn:
		return "tracks_drawn"
	case StageWalletChecked:
		return "wallet_checked"
	case StageBattleRequested:
		return "battle_requested"
	case StageBattleCreated:
		return "battle_created"
	case StageCreationFailed:
		return "creation_failed"
	default:
		return "unknown"
	}
}

// Attempt records a single pass through the creation state machine. Every
// genre selection is an independent attempt; nothing carries over. FailedAt
// holds the last stage reached before a failure.
type Attempt struct {
	Participant  string
	Genre        Genre
	Stage        Stage
	FailedAt     Stage
	Tracks       []tracks.Track
	Session      *Session
	Prompt       *Prompt
	Confirmation *settlement.StartBattleResponse
}

// ControllerConfig wires the controller's collaborators.
type ControllerConfig struct {
	Genres   *GenreBook
	Creators *CreatorPool
	Provider tracks.Provider
	Wallets  WalletResolver
	Backend  Backend
	Store    *Store
}

// ControllerOption customises a controller.
type ControllerOption func(*Controller)

// WithLogger overrides the controller logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an outcome observer.
func WithObserver(observer Observer) ControllerOption {
	return func(c *Controller) {
		c.observer = observer
	}
}

// WithClock overrides the clock used to timestamp sessions.
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithPermutation overrides the random permutation used for track and
// creator draws.
func WithPermutation(perm func(int) []int) ControllerOption {
	return func(c *Controller) {
		if perm != nil {
			c.perm = perm
		}
	}
}

// Controller drives battle creation, closure and the read-only battle queries.
type Controller struct {
	genres   *GenreBook
	creators *CreatorPool
	provider tracks.Provider
	wallets  WalletResolver
	backend  Backend
	store    *Store
	logger   *slog.Logger
	observer Observer
	clock    func() time.Time
	perm     func(int) []int
}

// NewController validates the configuration and returns a controller.
func NewController(cfg ControllerConfig, opts ...ControllerOption) (*Controller, error) {
	switch {
	case cfg.Genres == nil:
		return nil, errors.New("battle: genres required")
	case cfg.Creators == nil:
		return nil, errors.New("battle: creator pool required")
	case cfg.Provider == nil:
		return nil, errors.New("battle: track provider required")
	case cfg.Wallets == nil:
		return nil, errors.New("battle: wallet resolver required")
	case cfg.Backend == nil:
		return nil, errors.New("battle: settlement backend required")
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	c := &Controller{
		genres:   cfg.Genres,
		creators: cfg.Creators,
		provider: cfg.Provider,
		wallets:  cfg.Wallets,
		backend:  cfg.Backend,
		store:    store,
		logger:   slog.Default(),
		clock:    time.Now,
		perm:     rand.Perm,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Store exposes the session store for display lookups.
func (c *Controller) Store() *Store { return c.store }

// Creators exposes the creator pool for label lookups.
func (c *Controller) Creators() *CreatorPool { return c.creators }

// OfferGenres enters the state machine: it returns the genres to offer.
func (c *Controller) OfferGenres() []Genre {
	return c.genres.All()
}

// StartBattle runs one creation attempt for the participant and genre. The
// returned Attempt is always populated; a non-nil error means the attempt
// ended in StageCreationFailed at Attempt.FailedAt.
func (c *Controller) StartBattle(ctx context.Context, participantID, genreName string) (attempt Attempt, err error) {
	attempt = Attempt{Participant: participantID, Stage: StageGenreOffered}
	defer func() {
		if err != nil {
			attempt.FailedAt = attempt.Stage
			attempt.Stage = StageCreationFailed
		}
		if c.observer != nil {
			failedAt := ""
			if attempt.FailedAt != 0 {
				failedAt = attempt.FailedAt.String()
			}
			c.observer.ObserveBattleAttempt(attempt.Stage.String(), failedAt)
		}
	}()

	genre, err := c.genres.Lookup(genreName)
	if err != nil {
		return attempt, err
	}
	attempt.Genre = genre

	drawn, err := c.drawTracks(ctx, genre)
	if err != nil {
		return attempt, err
	}
	attempt.Tracks = drawn
	attempt.Stage = StageTracksDrawn

	owner, err := c.wallets.GetWallet(participantID)
	if err != nil {
		return attempt, err
	}
	attempt.Stage = StageWalletChecked

	entryA, entryB := c.assignCreators(drawn[0], drawn[1])
	req := settlement.StartBattleRequest{
		Track1:        entryA.Title,
		Track2:        entryB.Title,
		CreatorTrack1: entryA.Creator,
		CreatorTrack2: entryB.Creator,
		UserAddress:   owner.Address,
		PaymentAmount: genre.Amount,
	}
	attempt.Stage = StageBattleRequested
	confirmation, err := c.backend.StartBattle(ctx, req)
	if err != nil {
		c.logger.Warn("battle creation rejected",
			slog.String("participant", participantID),
			slog.String("genre", genre.Name),
			slog.Any("error", err))
		return attempt, err
	}
	attempt.Confirmation = confirmation

	session := Session{
		ID:        confirmation.BattleID,
		Genre:     genre.Name,
		TrackA:    entryA,
		TrackB:    entryB,
		Amount:    genre.Amount,
		CreatedBy: participantID,
		CreatedAt: c.clock().UTC(),
	}
	if err := c.store.Put(session); err != nil {
		return attempt, err
	}
	prompt := promptFor(session, 0, 0)
	attempt.Session = &session
	attempt.Prompt = &prompt
	attempt.Stage = StageBattleCreated
	c.logger.Info("battle created",
		slog.String("battle_id", session.ID.String()),
		slog.String("genre", genre.Name),
		slog.String("participant", participantID),
		slog.String("tx", confirmation.TransactionHash))
	return attempt, nil
}

func (c *Controller) drawTracks(ctx context.Context, genre Genre) ([]tracks.Track, error) {
	found, err := c.provider.Search(ctx, genre.Name)
	if err != nil {
		if errors.Is(err, tracks.ErrUnknownGenre) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientCandidates, err)
		}
		return nil, fmt.Errorf("battle: track search: %w", err)
	}
	candidates := tracks.Distinct(found)
	if len(candidates) < 2 {
		return nil, fmt.Errorf("%w: %d distinct tracks for %s", ErrInsufficientCandidates, len(candidates), genre.Name)
	}
	idx := c.perm(len(candidates))
	return []tracks.Track{candidates[idx[0]], candidates[idx[1]]}, nil
}

// assignCreators uses the provider's creator addresses when both tracks carry
// distinct valid ones and otherwise draws two creators from the pool.
func (c *Controller) assignCreators(a, b tracks.Track) (Entry, Entry) {
	creatorA, creatorB := strings.TrimSpace(a.Creator), strings.TrimSpace(b.Creator)
	if !common.IsHexAddress(creatorA) || !common.IsHexAddress(creatorB) ||
		common.HexToAddress(creatorA) == common.HexToAddress(creatorB) {
		drawnA, drawnB := c.creators.Draw(c.perm)
		creatorA, creatorB = drawnA.Address, drawnB.Address
	}
	return c.entry(a, creatorA), c.entry(b, creatorB)
}

func (c *Controller) entry(t tracks.Track, creator string) Entry {
	artist := t.PrimaryArtist
	if artist == "" {
		artist = c.creators.Label(creator)
	}
	return Entry{Title: tracks.SanitizeTitle(t.Title), Artist: artist, Creator: creator}
}

// Closure is the rendered-ready result of closing a battle.
type Closure struct {
	BattleID      settlement.BattleID
	Winner        string
	WinningVoters []string
	Report        string
}

// Close asks the backend to settle the battle. Winners are never computed
// locally.
func (c *Controller) Close(ctx context.Context, id settlement.BattleID) (*Closure, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	report, err := c.backend.Winner(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("battle closed", slog.String("battle_id", id.String()), slog.Int("winning_voters", len(report.WinnerVotersList)))
	return &Closure{
		BattleID:      id,
		Winner:        strings.TrimSpace(report.Part1),
		WinningVoters: append([]string{}, report.WinnerVotersList...),
		Report:        strings.TrimSpace(report.ResultMessage),
	}, nil
}

// Tally fetches the current vote counts.
func (c *Controller) Tally(ctx context.Context, id settlement.BattleID) (*settlement.VoteTally, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	return c.backend.Votes(ctx, id)
}

// Details fetches the backend battle record.
func (c *Controller) Details(ctx context.Context, id settlement.BattleID) (*settlement.BattleDetails, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	return c.backend.Details(ctx, id)
}

// TotalVoters fetches the distinct voter count.
func (c *Controller) TotalVoters(ctx context.Context, id settlement.BattleID) (*settlement.VoterCount, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	return c.backend.TotalVoters(ctx, id)
}

// VotersList fetches the voter addresses.
func (c *Controller) VotersList(ctx context.Context, id settlement.BattleID) (*settlement.VoterList, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	return c.backend.VotersList(ctx, id)
}

// Leaderboard fetches the backend-ranked standings.
func (c *Controller) Leaderboard(ctx context.Context, id settlement.BattleID) (*settlement.Leaderboard, error) {
	if err := requireBattleID(id); err != nil {
		return nil, err
	}
	return c.backend.Leaderboard(ctx, id)
}

// Balance fetches the contract balance.
func (c *Controller) Balance(ctx context.Context) (*settlement.ContractBalance, error) {
	return c.backend.Balance(ctx)
}

// TransferToOwner validates the request locally and forwards it.
func (c *Controller) TransferToOwner(ctx context.Context, amount, userAddress, senderAddress string) (*settlement.TransferResponse, error) {
	amount = strings.TrimSpace(amount)
	value, ok := new(big.Rat).SetString(amount)
	if !ok || value.Sign() <= 0 || strings.ContainsAny(amount, "/eE") {
		return nil, fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	}
	userAddress = strings.TrimSpace(userAddress)
	senderAddress = strings.TrimSpace(senderAddress)
	if !common.IsHexAddress(userAddress) || !strings.HasPrefix(strings.ToLower(userAddress), "0x") {
		return nil, fmt.Errorf("%w: invalid user address", ErrValidation)
	}
	if !common.IsHexAddress(senderAddress) || !strings.HasPrefix(strings.ToLower(senderAddress), "0x") {
		return nil, fmt.Errorf("%w: invalid sender address", ErrValidation)
	}
	return c.backend.TransferToOwner(ctx, settlement.TransferRequest{
		UserAddress:   userAddress,
		Amount:        amount,
		SenderAddress: senderAddress,
	})
}

func requireBattleID(id settlement.BattleID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: battle id required", ErrValidation)
	}
	return nil
}
