package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"musicbattle/settlement"
)

// VoteStatus classifies the backend's answer to a vote.
type VoteStatus int

const (
	VoteRecorded VoteStatus = iota + 1
	VoteAlreadyCast
	VoteClosed
	VoteRejected
)

func (s VoteStatus) String() string {
	switch s {
	case VoteRecorded:
		return "recorded"
	case VoteAlreadyCast:
		return "already_voted"
	case VoteClosed:
		return "voting_closed"
	case VoteRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// VoteIntent is a validated request to vote.
type VoteIntent struct {
	BattleID    settlement.BattleID
	Track       int
	Participant string
	Address     string
	Amount      settlement.Amount
}

// VoteResult is the classified outcome of a vote submission. Message carries
// the backend's text for rejected votes.
type VoteResult struct {
	Intent          VoteIntent
	Status          VoteStatus
	TransactionHash string
	Message         string
}

// Coordinator submits votes and refreshes tallies. It never deduplicates
// locally; the backend is the only authority on prior votes.
type Coordinator struct {
	wallets  WalletResolver
	backend  Backend
	store    *Store
	logger   *slog.Logger
	observer Observer
}

// CoordinatorOption customises a coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger overrides the coordinator logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVoteObserver registers an outcome observer.
func WithVoteObserver(observer Observer) CoordinatorOption {
	return func(c *Coordinator) {
		c.observer = observer
	}
}

// NewCoordinator wires a vote coordinator. The store is only read for
// display labels.
func NewCoordinator(wallets WalletResolver, backend Backend, store *Store, opts ...CoordinatorOption) (*Coordinator, error) {
	if wallets == nil || backend == nil {
		return nil, errors.New("battle: coordinator needs wallets and backend")
	}
	if store == nil {
		store = NewStore()
	}
	c := &Coordinator{wallets: wallets, backend: backend, store: store, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Submit resolves the participant's wallet, validates the intent and submits
// it. Validation and wallet failures never reach the network. A transport
// failure is returned as an error; every backend answer, including
// rejections, is returned as a VoteResult.
func (c *Coordinator) Submit(ctx context.Context, participantID string, id settlement.BattleID, track int, amount settlement.Amount) (VoteResult, error) {
	owner, err := c.wallets.GetWallet(participantID)
	if err != nil {
		return VoteResult{}, err
	}
	intent := VoteIntent{
		BattleID:    settlement.BattleID(strings.TrimSpace(id.String())),
		Track:       track,
		Participant: participantID,
		Address:     strings.TrimSpace(owner.Address),
		Amount:      amount,
	}
	if err := intent.validate(); err != nil {
		return VoteResult{Intent: intent}, err
	}

	resp, err := c.backend.Vote(ctx, settlement.VoteRequest{
		BattleID:      intent.BattleID,
		TrackNumber:   intent.Track,
		UserAddress:   intent.Address,
		PaymentAmount: intent.Amount,
	})
	if err != nil && errors.Is(err, settlement.ErrTransport) {
		c.logger.Warn("vote transport failure",
			slog.String("battle_id", intent.BattleID.String()),
			slog.String("participant", participantID),
			slog.Any("error", err))
		return VoteResult{Intent: intent}, err
	}
	if err != nil && !errors.Is(err, settlement.ErrBackendRejected) {
		return VoteResult{Intent: intent}, err
	}
	result := classifyVote(resp, err)
	result.Intent = intent
	if c.observer != nil {
		c.observer.ObserveVote(result.Status.String())
	}
	c.logger.Info("vote submitted",
		slog.String("battle_id", intent.BattleID.String()),
		slog.Int("track", intent.Track),
		slog.String("participant", participantID),
		slog.String("status", result.Status.String()))
	return result, nil
}

func (v VoteIntent) validate() error {
	switch {
	case v.BattleID.IsZero():
		return fmt.Errorf("%w: battle id required", ErrValidation)
	case v.Track != 1 && v.Track != 2:
		return fmt.Errorf("%w: track must be 1 or 2", ErrValidation)
	case v.Amount.IsZero():
		return fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	case v.Address == "":
		return fmt.Errorf("%w: participant address required", ErrValidation)
	}
	return nil
}

var (
	alreadyVotedMarkers = []string{"already voted", "already registered"}
	votingClosedMarkers = []string{"voting period has ended", "voting has ended", "battle is not active"}
)

// classifyVote applies, in order: an explicit result code, message markers,
// the presence of a transaction hash.
func classifyVote(resp *settlement.VoteResponse, err error) VoteResult {
	var code, message, txHash string
	if err != nil {
		var se *settlement.Error
		if errors.As(err, &se) {
			code = se.Code
		}
		message = settlement.Detail(err)
	} else if resp != nil {
		code = resp.Code
		message = resp.Message
		txHash = strings.TrimSpace(resp.TransactionHash)
	}

	switch strings.ToLower(strings.TrimSpace(code)) {
	case "already_voted":
		return VoteResult{Status: VoteAlreadyCast, Message: message}
	case "voting_closed":
		return VoteResult{Status: VoteClosed, Message: message}
	case "ok":
		if err == nil {
			return VoteResult{Status: VoteRecorded, TransactionHash: txHash, Message: message}
		}
	}

	lowered := strings.ToLower(message)
	if containsAny(lowered, alreadyVotedMarkers) {
		return VoteResult{Status: VoteAlreadyCast, Message: message}
	}
	if containsAny(lowered, votingClosedMarkers) {
		return VoteResult{Status: VoteClosed, Message: message}
	}
	if err == nil && txHash != "" {
		return VoteResult{Status: VoteRecorded, TransactionHash: txHash, Message: message}
	}
	if strings.TrimSpace(message) == "" {
		message = "vote not confirmed by backend"
	}
	return VoteResult{Status: VoteRejected, Message: message}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// RefreshTally fetches fresh counts from the backend and renders them with
// the locally known track labels. When the battle was created by another
// process, generic labels and the supplied amount are used.
func (c *Coordinator) RefreshTally(ctx context.Context, id settlement.BattleID, amount settlement.Amount) (Prompt, error) {
	if err := requireBattleID(id); err != nil {
		return Prompt{}, err
	}
	tally, err := c.backend.Votes(ctx, id)
	if err != nil {
		return Prompt{}, err
	}
	session, ok := c.store.Get(id)
	if !ok {
		session = Session{
			ID:     id,
			TrackA: Entry{Title: "Track 1"},
			TrackB: Entry{Title: "Track 2"},
			Amount: amount,
		}
	}
	return promptFor(session, uint64(tally.Track1Votes), uint64(tally.Track2Votes)), nil
}
