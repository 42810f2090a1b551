package battle

import (
	"context"
	"sync"

	"musicbattle/settlement"
	"musicbattle/tracks"
)

type stubBackend struct {
	mu    sync.Mutex
	calls map[string]int

	startBattle func(settlement.StartBattleRequest) (*settlement.StartBattleResponse, error)
	vote        func(settlement.VoteRequest) (*settlement.VoteResponse, error)
	votes       func(settlement.BattleID) (*settlement.VoteTally, error)
	winner      func(settlement.BattleID) (*settlement.WinnerReport, error)
	transfer    func(settlement.TransferRequest) (*settlement.TransferResponse, error)
}

func (s *stubBackend) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[op]++
}

func (s *stubBackend) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubBackend) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *stubBackend) StartBattle(_ context.Context, req settlement.StartBattleRequest) (*settlement.StartBattleResponse, error) {
	s.record("startbattle")
	if s.startBattle == nil {
		return &settlement.StartBattleResponse{BattleID: "1"}, nil
	}
	return s.startBattle(req)
}

func (s *stubBackend) Vote(_ context.Context, req settlement.VoteRequest) (*settlement.VoteResponse, error) {
	s.record("votetrack")
	if s.vote == nil {
		return &settlement.VoteResponse{Message: "Vote successful", TransactionHash: "0xtx"}, nil
	}
	return s.vote(req)
}

func (s *stubBackend) Votes(_ context.Context, id settlement.BattleID) (*settlement.VoteTally, error) {
	s.record("votes")
	if s.votes == nil {
		return &settlement.VoteTally{BattleID: id}, nil
	}
	return s.votes(id)
}

func (s *stubBackend) Details(_ context.Context, id settlement.BattleID) (*settlement.BattleDetails, error) {
	s.record("details")
	return &settlement.BattleDetails{BattleID: id, IsActive: true}, nil
}

func (s *stubBackend) TotalVoters(_ context.Context, id settlement.BattleID) (*settlement.VoterCount, error) {
	s.record("voters")
	return &settlement.VoterCount{BattleID: id, TotalVoters: 2}, nil
}

func (s *stubBackend) VotersList(_ context.Context, id settlement.BattleID) (*settlement.VoterList, error) {
	s.record("votersList")
	return &settlement.VoterList{BattleID: id, VotersList: []string{"0xA"}}, nil
}

func (s *stubBackend) Winner(_ context.Context, id settlement.BattleID) (*settlement.WinnerReport, error) {
	s.record("winner")
	if s.winner == nil {
		return &settlement.WinnerReport{BattleID: id}, nil
	}
	return s.winner(id)
}

func (s *stubBackend) Leaderboard(_ context.Context, id settlement.BattleID) (*settlement.Leaderboard, error) {
	s.record("leaderboard")
	return &settlement.Leaderboard{BattleID: id}, nil
}

func (s *stubBackend) Balance(context.Context) (*settlement.ContractBalance, error) {
	s.record("balance")
	return &settlement.ContractBalance{Balance: "10"}, nil
}

func (s *stubBackend) TransferToOwner(_ context.Context, req settlement.TransferRequest) (*settlement.TransferResponse, error) {
	s.record("transferToOwner")
	if s.transfer == nil {
		return &settlement.TransferResponse{Success: true}, nil
	}
	return s.transfer(req)
}

type stubProvider struct {
	mu       sync.Mutex
	searches int
	results  []tracks.Track
	err      error
}

func (p *stubProvider) Search(context.Context, string) ([]tracks.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.searches++
	return append([]tracks.Track(nil), p.results...), p.err
}

type recordingObserver struct {
	mu       sync.Mutex
	attempts []string
	votes    []string
}

func (o *recordingObserver) ObserveBattleAttempt(outcome, failedAt string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, outcome+"@"+failedAt)
}

func (o *recordingObserver) ObserveVote(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.votes = append(o.votes, status)
}

func identityPerm(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
