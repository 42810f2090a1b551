package battle

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"musicbattle/settlement"
	"musicbattle/wallet"
)

func newCoordinator(t *testing.T, backend *stubBackend, store *Store) (*Coordinator, *wallet.Registry, *recordingObserver) {
	t.Helper()
	wallets := wallet.NewRegistry(nil)
	_, err := wallets.SetWallet(context.Background(), "42", "0xABC", "alice")
	require.NoError(t, err)
	observer := &recordingObserver{}
	coord, err := NewCoordinator(wallets, backend, store, WithVoteObserver(observer))
	require.NoError(t, err)
	return coord, wallets, observer
}

func TestSubmitVoteRecorded(t *testing.T) {
	backend := &stubBackend{}
	var sent settlement.VoteRequest
	backend.vote = func(req settlement.VoteRequest) (*settlement.VoteResponse, error) {
		sent = req
		return &settlement.VoteResponse{Message: "Vote successful", TransactionHash: "0xtx"}, nil
	}
	coord, _, observer := newCoordinator(t, backend, nil)

	res, err := coord.Submit(context.Background(), "42", "7", 2, settlement.NewAmount(5))
	require.NoError(t, err)
	require.Equal(t, VoteRecorded, res.Status)
	require.Equal(t, "0xtx", res.TransactionHash)
	require.Equal(t, settlement.VoteRequest{BattleID: "7", TrackNumber: 2, UserAddress: "0xABC", PaymentAmount: settlement.NewAmount(5)}, sent)
	require.Equal(t, []string{"recorded"}, observer.votes)
}

func TestSubmitVoteInvalidIntentNeverCallsBackend(t *testing.T) {
	backend := &stubBackend{}
	coord, _, _ := newCoordinator(t, backend, nil)
	ctx := context.Background()

	_, err := coord.Submit(ctx, "42", "7", 1, settlement.NewAmount(0))
	require.ErrorIs(t, err, ErrValidation)
	_, err = coord.Submit(ctx, "42", "7", 3, settlement.NewAmount(5))
	require.ErrorIs(t, err, ErrValidation)
	_, err = coord.Submit(ctx, "42", "7", 0, settlement.NewAmount(5))
	require.ErrorIs(t, err, ErrValidation)
	_, err = coord.Submit(ctx, "42", "", 1, settlement.NewAmount(5))
	require.ErrorIs(t, err, ErrValidation)
	_, err = coord.Submit(ctx, "nobody", "7", 1, settlement.NewAmount(5))
	require.ErrorIs(t, err, wallet.ErrNotRegistered)

	require.Zero(t, backend.total())
}

func TestSubmitVoteClassification(t *testing.T) {
	cases := []struct {
		name    string
		resp    *settlement.VoteResponse
		err     error
		status  VoteStatus
		message string
	}{
		{
			name:    "already voted in success body",
			resp:    &settlement.VoteResponse{Message: "You have already voted in this battle."},
			status:  VoteAlreadyCast,
			message: "You have already voted in this battle.",
		},
		{
			name:    "already voted in error body",
			err:     &settlement.Error{Op: "votetrack", Kind: settlement.KindRejected, Status: http.StatusBadRequest, Message: "You have already voted in this battle."},
			status:  VoteAlreadyCast,
			message: "You have already voted in this battle.",
		},
		{
			name:   "already registered",
			resp:   &settlement.VoteResponse{Message: "Vote already registered for Track 1!"},
			status: VoteAlreadyCast,
		},
		{
			name:   "voting closed",
			err:    &settlement.Error{Op: "votetrack", Kind: settlement.KindRejected, Message: "Battle voting period has ended"},
			status: VoteClosed,
		},
		{
			name:   "code wins over message",
			resp:   &settlement.VoteResponse{Code: "voting_closed", Message: "nope", TransactionHash: "0x1"},
			status: VoteClosed,
		},
		{
			name:   "rejected code already voted",
			err:    &settlement.Error{Op: "votetrack", Kind: settlement.KindRejected, Code: "already_voted", Message: "duplicate"},
			status: VoteAlreadyCast,
		},
		{
			name:    "unknown backend error passes message",
			err:     &settlement.Error{Op: "votetrack", Kind: settlement.KindRejected, Message: "execution reverted"},
			status:  VoteRejected,
			message: "execution reverted",
		},
		{
			name:   "success without tx hash is not recorded",
			resp:   &settlement.VoteResponse{Message: "queued"},
			status: VoteRejected,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{vote: func(settlement.VoteRequest) (*settlement.VoteResponse, error) {
				return tc.resp, tc.err
			}}
			coord, _, _ := newCoordinator(t, backend, nil)
			res, err := coord.Submit(context.Background(), "42", "7", 1, settlement.NewAmount(5))
			require.NoError(t, err)
			require.Equal(t, tc.status, res.Status)
			if tc.message != "" {
				require.Equal(t, tc.message, res.Message)
			}
		})
	}
}

func TestSubmitVoteTransportFailureIsError(t *testing.T) {
	transportErr := &settlement.Error{Op: "votetrack", Kind: settlement.KindTransport, Err: errors.New("dial tcp: refused")}
	backend := &stubBackend{vote: func(settlement.VoteRequest) (*settlement.VoteResponse, error) {
		return nil, transportErr
	}}
	coord, _, observer := newCoordinator(t, backend, nil)
	_, err := coord.Submit(context.Background(), "42", "7", 1, settlement.NewAmount(5))
	require.ErrorIs(t, err, settlement.ErrTransport)
	require.Empty(t, observer.votes)
}

func TestRefreshTallyUsesSessionLabels(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(Session{
		ID:     "7",
		Genre:  "Pop",
		TrackA: Entry{Title: "Song A", Artist: "Artist A"},
		TrackB: Entry{Title: "Song B", Artist: "Creator B"},
		Amount: settlement.NewAmount(5),
	}))
	backend := &stubBackend{votes: func(id settlement.BattleID) (*settlement.VoteTally, error) {
		return &settlement.VoteTally{BattleID: id, Track1Votes: 3, Track2Votes: 1}, nil
	}}
	coord, _, _ := newCoordinator(t, backend, store)

	prompt, err := coord.RefreshTally(context.Background(), "7", settlement.NewAmount(99))
	require.NoError(t, err)
	require.Equal(t, "Song A - Artist A", prompt.Options[0].Label)
	require.Equal(t, uint64(3), prompt.Options[0].Votes)
	require.Equal(t, uint64(1), prompt.Options[1].Votes)
	require.Equal(t, "5", prompt.Amount.String())

	other, err := coord.RefreshTally(context.Background(), "8", settlement.NewAmount(10))
	require.NoError(t, err)
	require.Equal(t, "Track 1", other.Options[0].Label)
	require.Equal(t, "10", other.Amount.String())
}

func TestRefreshTallyFailure(t *testing.T) {
	backend := &stubBackend{votes: func(settlement.BattleID) (*settlement.VoteTally, error) {
		return nil, &settlement.Error{Op: "votes", Kind: settlement.KindTransport, Err: errors.New("timeout")}
	}}
	coord, _, _ := newCoordinator(t, backend, nil)
	_, err := coord.RefreshTally(context.Background(), "7", settlement.NewAmount(5))
	require.ErrorIs(t, err, settlement.ErrTransport)
}

func TestConcurrentVotesSameBattle(t *testing.T) {
	backend := &stubBackend{}
	coord, wallets, _ := newCoordinator(t, backend, nil)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3", "4"} {
		_, err := wallets.SetWallet(ctx, id, "0x"+id, id)
		require.NoError(t, err)
	}
	done := make(chan VoteResult, 4)
	for _, id := range []string{"1", "2", "3", "4"} {
		go func(id string) {
			res, _ := coord.Submit(ctx, id, "7", 1, settlement.NewAmount(5))
			done <- res
		}(id)
	}
	for i := 0; i < 4; i++ {
		require.Equal(t, VoteRecorded, (<-done).Status)
	}
	require.Equal(t, 4, backend.count("votetrack"))
}

func TestStoreRejectsDuplicateAndEmpty(t *testing.T) {
	store := NewStore()
	require.NoError(t, store.Put(Session{ID: "1"}))
	require.ErrorIs(t, store.Put(Session{ID: "1"}), ErrDuplicateBattle)
	require.ErrorIs(t, store.Put(Session{}), ErrValidation)
	_, ok := store.Get("2")
	require.False(t, ok)
}
