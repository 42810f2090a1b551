package battlebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"musicbattle/battle"
	"musicbattle/dedupe"
	"musicbattle/journal"
	"musicbattle/observability"
	"musicbattle/observability/logging"
	"musicbattle/settlement"
	"musicbattle/tracks"
	"musicbattle/transport"
	"musicbattle/wallet"
)

// Recorder appends activity journal entries.
type Recorder interface {
	Record(ctx context.Context, entry journal.Entry) error
}

// DispatcherConfig wires the dispatcher's collaborators. Guard and Journal
// are optional.
type DispatcherConfig struct {
	Controller *battle.Controller
	Votes      *battle.Coordinator
	Wallets    *wallet.Registry
	Guard      *dedupe.Guard
	Journal    Recorder
	RateLimit  RateLimitConfig
}

// DispatcherOption customises the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the dispatcher logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics attaches the metrics bundle.
func WithMetrics(metrics *observability.BattleBotMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// WithDispatcherClock overrides the clock used for throttling and latency.
func WithDispatcherClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// Dispatcher turns inbound payloads into battle operations and replies. It
// implements transport.Handler and is safe for concurrent use.
type Dispatcher struct {
	controller *battle.Controller
	votes      *battle.Coordinator
	wallets    *wallet.Registry
	guard      *dedupe.Guard
	journal    Recorder
	limiter    *participantLimiter
	metrics    *observability.BattleBotMetrics
	logger     *slog.Logger
	clock      func() time.Time
}

// outcome summarises a handled event for metrics and the journal.
type outcome struct {
	status   string
	battleID settlement.BattleID
	detail   string
	journal  bool
}

// NewDispatcher validates the configuration and constructs a dispatcher.
func NewDispatcher(cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if cfg.Controller == nil || cfg.Votes == nil || cfg.Wallets == nil {
		return nil, errors.New("battlebot: controller, votes and wallets are required")
	}
	d := &Dispatcher{
		controller: cfg.Controller,
		votes:      cfg.Votes,
		wallets:    cfg.Wallets,
		guard:      cfg.Guard,
		journal:    cfg.Journal,
		logger:     slog.Default(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.limiter = newParticipantLimiter(cfg.RateLimit, d.clock)
	return d, nil
}

// Handle processes one inbound payload. Duplicate deliveries are dropped
// silently. The returned error is reserved for payloads that cannot be
// attributed to a participant and for failed primary replies.
func (d *Dispatcher) Handle(ctx context.Context, in transport.Inbound, sink transport.Sink) error {
	started := d.clock()
	participantID := strings.TrimSpace(string(in.Participant.ID))
	if participantID == "" {
		return transport.ErrMissingParticipant
	}
	env := transport.Envelope{
		DeliveryID:    strings.TrimSpace(in.ID),
		ParticipantID: participantID,
		DisplayName:   strings.TrimSpace(in.Participant.DisplayName),
		ChatID:        string(in.ChatID),
		ReceivedAt:    started,
	}

	if d.guard != nil {
		dup, err := d.guard.Duplicate(ctx, participantID, env.DeliveryID)
		switch {
		case err != nil:
			d.logger.Warn("dedupe lookup failed", slog.String("delivery_id", env.DeliveryID), slog.Any("error", err))
		case dup:
			d.metrics.RecordDuplicate()
			d.logger.Debug("duplicate delivery dropped",
				slog.String("delivery_id", env.DeliveryID),
				slog.String("participant", participantID))
			return nil
		}
	}

	if allowed, notify := d.limiter.Allow(participantID); !allowed {
		d.metrics.RecordThrottle("participant_rate")
		if notify {
			return d.send(ctx, sink, reply(env, slowDownText))
		}
		return nil
	}

	ev, err := transport.Decode(in, started)
	if err != nil {
		ev = transport.Help{Envelope: env, Reason: decodeReason(err)}
	}
	kind := transport.Kind(ev)
	out, err := d.dispatch(ctx, ev, sink)
	d.metrics.ObserveEvent(kind, out.status, d.clock().Sub(started))
	if out.journal {
		d.record(ctx, ev.Meta(), kind, out)
	}
	if err != nil {
		d.logger.Warn("event handling failed",
			slog.String("kind", kind),
			slog.String("participant", participantID),
			slog.Any("error", err))
	}
	return err
}

func decodeReason(err error) string {
	var usage *transport.UsageError
	switch {
	case errors.As(err, &usage) && usage.Usage != "":
		return "Usage: " + usage.Usage
	case errors.Is(err, transport.ErrMalformedAction):
		return "That button is no longer valid."
	default:
		return "Unknown command. Here is what I understand:"
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev transport.Event, sink transport.Sink) (outcome, error) {
	env := ev.Meta()
	switch e := ev.(type) {
	case transport.Help:
		return outcome{status: journal.OutcomeInfo}, d.send(ctx, sink, renderHelp(env, e.Welcome, e.Reason))
	case transport.StartBattle:
		return outcome{status: journal.OutcomeInfo}, d.send(ctx, sink, renderGenreMenu(env, d.controller.OfferGenres()))
	case transport.GenreSelected:
		return d.startBattle(ctx, e, sink)
	case transport.VoteCast:
		return d.vote(ctx, e, sink)
	case transport.SetWallet:
		return d.setWallet(ctx, e, sink)
	case transport.ChangeWallet:
		return d.changeWallet(ctx, e, sink)
	case transport.GetWallet:
		w, err := d.wallets.GetWallet(env.ParticipantID)
		if err != nil {
			return outcome{status: outcomeFor(err)}, d.send(ctx, sink, reply(env, noWalletText))
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderWallet(env, w))
	case transport.ListWallets:
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderWalletList(env, d.wallets.ListWallets()))
	case transport.CloseBattle:
		closure, err := d.controller.Close(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, true, "Failed to close battle", err)
		}
		out := outcome{status: journal.OutcomeOK, battleID: e.BattleID, detail: truncate(closure.Winner, maxDetailRunes), journal: true}
		return out, d.send(ctx, sink, renderClosure(env, closure))
	case transport.BattleVotes:
		tally, err := d.controller.Tally(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, false, "Failed to fetch votes", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderTally(env, e.BattleID, tally))
	case transport.BattleDetails:
		details, err := d.controller.Details(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, false, "Failed to fetch battle details", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderDetails(env, e.BattleID, details))
	case transport.BattleVoters:
		count, err := d.controller.TotalVoters(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, false, "Failed to fetch voters", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderVoterCount(env, e.BattleID, count))
	case transport.VotersList:
		list, err := d.controller.VotersList(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, false, "Failed to fetch voters list", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderVoterList(env, e.BattleID, list))
	case transport.Leaderboard:
		board, err := d.controller.Leaderboard(ctx, e.BattleID)
		if err != nil {
			return d.fail(ctx, sink, env, e.BattleID, false, "Failed to fetch leaderboard", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderLeaderboard(env, e.BattleID, board))
	case transport.ContractBalance:
		balance, err := d.controller.Balance(ctx)
		if err != nil {
			return d.fail(ctx, sink, env, "", false, "Unable to fetch balance", err)
		}
		return outcome{status: journal.OutcomeOK}, d.send(ctx, sink, renderBalance(env, balance))
	case transport.TransferToOwner:
		if _, err := d.controller.TransferToOwner(ctx, e.Amount, e.UserAddress, e.SenderAddress); err != nil {
			return d.fail(ctx, sink, env, "", true, "Transfer failed", err)
		}
		d.logger.Info("transfer to owner completed",
			slog.String("participant", env.ParticipantID),
			logging.MaskAddress("user_address", e.UserAddress))
		out := outcome{status: journal.OutcomeOK, detail: "amount " + e.Amount, journal: true}
		return out, d.send(ctx, sink, renderTransfer(env, e.UserAddress))
	default:
		return outcome{status: journal.OutcomeFailed}, fmt.Errorf("battlebot: unhandled event %T", ev)
	}
}

func (d *Dispatcher) startBattle(ctx context.Context, e transport.GenreSelected, sink transport.Sink) (outcome, error) {
	attempt, err := d.controller.StartBattle(ctx, e.ParticipantID, e.Genre)
	if err != nil {
		out := outcome{status: outcomeFor(err), detail: attempt.FailedAt.String() + ": " + truncate(describe(err), maxDetailRunes), journal: true}
		return out, d.send(ctx, sink, renderBattleFailed(e.Envelope, attempt, err))
	}
	out := outcome{status: journal.OutcomeOK, battleID: attempt.Session.ID, detail: attempt.Genre.Name, journal: true}
	return out, d.send(ctx, sink, renderBattleCreated(e.Envelope, attempt))
}

// vote delivers the vote result first and then, unless the vote never
// reached the backend, a best-effort tally refresh that replaces the prompt.
func (d *Dispatcher) vote(ctx context.Context, e transport.VoteCast, sink transport.Sink) (outcome, error) {
	res, err := d.votes.Submit(ctx, e.ParticipantID, e.BattleID, e.Track, e.Amount)
	if err != nil {
		out := outcome{status: outcomeFor(err), battleID: e.BattleID, detail: truncate(describe(err), maxDetailRunes), journal: true}
		return out, d.send(ctx, sink, renderVoteError(e.Envelope, err))
	}
	sendErr := d.send(ctx, sink, renderVoteResult(e.Envelope, res))
	d.refreshTally(ctx, sink, e)

	status := journal.OutcomeOK
	switch res.Status {
	case battle.VoteAlreadyCast, battle.VoteClosed:
		status = journal.OutcomeInfo
	case battle.VoteRejected:
		status = journal.OutcomeRejected
	}
	return outcome{status: status, battleID: e.BattleID, detail: res.Status.String(), journal: true}, sendErr
}

func (d *Dispatcher) refreshTally(ctx context.Context, sink transport.Sink, e transport.VoteCast) {
	prompt, err := d.votes.RefreshTally(ctx, e.BattleID, e.Amount)
	if err != nil {
		d.logger.Warn("tally refresh failed", slog.String("battle_id", e.BattleID.String()), slog.Any("error", err))
		return
	}
	if err := d.send(ctx, sink, renderTallyRefresh(e.Envelope, prompt)); err != nil {
		d.logger.Warn("tally refresh delivery failed", slog.String("battle_id", e.BattleID.String()), slog.Any("error", err))
	}
}

func (d *Dispatcher) setWallet(ctx context.Context, e transport.SetWallet, sink transport.Sink) (outcome, error) {
	res, err := d.wallets.SetWallet(ctx, e.ParticipantID, e.Address, e.DisplayName)
	persisted := true
	switch {
	case errors.Is(err, wallet.ErrNotPersisted):
		persisted = false
	case errors.Is(err, wallet.ErrInvalidAddress):
		out := outcome{status: journal.OutcomeRejected, detail: "address missing", journal: true}
		return out, d.send(ctx, sink, reply(e.Envelope, "Please provide a wallet address, e.g., /setwallet 0xABC123..."))
	case err != nil:
		return d.fail(ctx, sink, e.Envelope, "", true, "Failed to set wallet", err)
	}
	detail := "set"
	if res.AlreadySet {
		detail = "already_set"
	} else {
		d.logger.Info("wallet registered",
			slog.String("participant", e.ParticipantID),
			logging.MaskAddress("address", res.Address),
			slog.Bool("persisted", persisted))
	}
	if !persisted {
		detail += ", not persisted"
	}
	status := journal.OutcomeOK
	if res.AlreadySet {
		status = journal.OutcomeInfo
	}
	out := outcome{status: status, detail: detail, journal: true}
	return out, d.send(ctx, sink, renderWalletSet(e.Envelope, res, persisted))
}

func (d *Dispatcher) changeWallet(ctx context.Context, e transport.ChangeWallet, sink transport.Sink) (outcome, error) {
	address, err := d.wallets.ChangeWallet(ctx, e.ParticipantID, e.Address)
	persisted := true
	switch {
	case errors.Is(err, wallet.ErrNotPersisted):
		persisted = false
	case errors.Is(err, wallet.ErrNotRegistered):
		out := outcome{status: journal.OutcomeRejected, detail: "not registered", journal: true}
		return out, d.send(ctx, sink, reply(e.Envelope, noWalletText))
	case errors.Is(err, wallet.ErrInvalidAddress):
		out := outcome{status: journal.OutcomeRejected, detail: "address missing", journal: true}
		return out, d.send(ctx, sink, reply(e.Envelope, "Please provide a new wallet address, e.g., /changewallet 0xDEF456..."))
	case err != nil:
		return d.fail(ctx, sink, e.Envelope, "", true, "Failed to change wallet", err)
	}
	d.logger.Info("wallet changed",
		slog.String("participant", e.ParticipantID),
		logging.MaskAddress("address", address),
		slog.Bool("persisted", persisted))
	detail := "changed"
	if !persisted {
		detail += ", not persisted"
	}
	out := outcome{status: journal.OutcomeOK, detail: detail, journal: true}
	return out, d.send(ctx, sink, renderWalletChanged(e.Envelope, address, persisted))
}

func (d *Dispatcher) fail(ctx context.Context, sink transport.Sink, env transport.Envelope, id settlement.BattleID, journaled bool, prefix string, err error) (outcome, error) {
	out := outcome{status: outcomeFor(err), battleID: id, detail: truncate(describe(err), maxDetailRunes), journal: journaled}
	return out, d.send(ctx, sink, failure(env, prefix, err))
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return journal.OutcomeOK
	case errors.Is(err, settlement.ErrTransport), errors.Is(err, tracks.ErrTransport):
		return journal.OutcomeFailed
	case errors.Is(err, settlement.ErrBackendRejected),
		errors.Is(err, battle.ErrValidation),
		errors.Is(err, battle.ErrUnknownGenre),
		errors.Is(err, battle.ErrInsufficientCandidates),
		errors.Is(err, wallet.ErrNotRegistered),
		errors.Is(err, wallet.ErrInvalidAddress):
		return journal.OutcomeRejected
	}
	return journal.OutcomeFailed
}

func (d *Dispatcher) send(ctx context.Context, sink transport.Sink, msg transport.Message) error {
	err := sink.Send(ctx, msg)
	d.metrics.RecordDelivery(err)
	if err != nil {
		return fmt.Errorf("battlebot: deliver reply: %w", err)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, env transport.Envelope, kind string, out outcome) {
	if d.journal == nil {
		return
	}
	entry := journal.Entry{
		DeliveryID:    env.DeliveryID,
		Kind:          kind,
		ParticipantID: env.ParticipantID,
		BattleID:      out.battleID.String(),
		Outcome:       out.status,
		Detail:        out.detail,
	}
	if err := d.journal.Record(ctx, entry); err != nil {
		d.metrics.RecordJournalFailure()
		d.logger.Warn("journal write failed", slog.String("kind", kind), slog.Any("error", err))
	}
}
