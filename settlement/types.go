package settlement

import (
	"strconv"
	"strings"
)

// BattleID is the opaque battle identifier assigned by the backend. The
// backend emits it as a number on some routes and a string on others.
type BattleID string

// String returns the identifier text.
func (id BattleID) String() string { return string(id) }

// IsZero reports whether the identifier is empty.
func (id BattleID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// UnmarshalJSON accepts a JSON string or number.
func (id *BattleID) UnmarshalJSON(data []byte) error {
	raw, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*id = BattleID(raw)
	return nil
}

// Count is a vote or voter count. Contract reads surface as decimal strings.
type Count uint64

// UnmarshalJSON accepts a JSON string or number.
func (c *Count) UnmarshalJSON(data []byte) error {
	raw, err := decodeScalar(data)
	if err != nil {
		return err
	}
	if raw == "" {
		*c = 0
		return nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return err
	}
	*c = Count(parsed)
	return nil
}

// Scalar captures free-form backend values (balances, timestamps) that may be
// encoded as either strings or numbers.
type Scalar string

// UnmarshalJSON accepts a JSON string or number.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	raw, err := decodeScalar(data)
	if err != nil {
		return err
	}
	*s = Scalar(raw)
	return nil
}

// StartBattleRequest is the POST /startbattle payload.
type StartBattleRequest struct {
	Track1        string `json:"track1"`
	Track2        string `json:"track2"`
	CreatorTrack1 string `json:"creatorTrack1"`
	CreatorTrack2 string `json:"creatorTrack2"`
	UserAddress   string `json:"userAddress"`
	PaymentAmount Amount `json:"paymentAmount"`
}

// StartBattleResponse mirrors a successful battle creation.
type StartBattleResponse struct {
	BattleID        BattleID `json:"battleId"`
	Message         string   `json:"message"`
	BalanceBefore   Scalar   `json:"balanceBefore"`
	BalanceAfter    Scalar   `json:"balanceAfter"`
	TransactionHash string   `json:"transactionHash"`
}

// VoteRequest is the POST /votetrack payload.
type VoteRequest struct {
	BattleID      BattleID `json:"battleId"`
	TrackNumber   int      `json:"trackNumber"`
	UserAddress   string   `json:"userAddress"`
	PaymentAmount Amount   `json:"paymentAmount"`
}

// VoteResponse mirrors the vote endpoint body. Code is optional; older
// backends only send a human readable message.
type VoteResponse struct {
	Code            string `json:"code,omitempty"`
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash"`
}

// VoteTally mirrors GET /battle/{id}/votes.
type VoteTally struct {
	BattleID    BattleID `json:"battleId"`
	Track1Votes Count    `json:"track1Votes"`
	Track2Votes Count    `json:"track2Votes"`
}

// BattleDetails mirrors GET /battle/{id}/details.
type BattleDetails struct {
	BattleID    BattleID `json:"battleId"`
	Track1      string   `json:"track1"`
	Track2      string   `json:"track2"`
	VotesTrack1 Count    `json:"votesTrack1"`
	VotesTrack2 Count    `json:"votesTrack2"`
	Timestamp   Scalar   `json:"timestamp"`
	IsActive    bool     `json:"isActive"`
}

// VoterCount mirrors GET /battle/{id}/voters.
type VoterCount struct {
	BattleID    BattleID `json:"battleId"`
	TotalVoters Count    `json:"totalVoters"`
}

// VoterList mirrors GET /battle/{id}/votersList.
type VoterList struct {
	BattleID   BattleID `json:"battleId"`
	VotersList []string `json:"votersList"`
}

// WinnerReport mirrors GET /battle/{id}/winner. Part1 carries the winner
// announcement and ResultMessage the settlement (payout) report.
type WinnerReport struct {
	BattleID         BattleID `json:"battleId"`
	Part1            string   `json:"part1"`
	WinnerVotersList []string `json:"winnerVotersList"`
	ResultMessage    string   `json:"resultMessage"`
}

// LeaderboardEntry is a single backend-ranked row.
type LeaderboardEntry struct {
	Track string `json:"track"`
	Votes Count  `json:"votes"`
}

// Leaderboard mirrors GET /leaderboard/{id}. Ordering is the backend's.
type Leaderboard struct {
	BattleID BattleID           `json:"battleId"`
	Entries  []LeaderboardEntry `json:"leaderboard"`
}

// ContractBalance mirrors GET /balance.
type ContractBalance struct {
	Balance Scalar `json:"balance"`
}

// TransferRequest is the POST /transferToOwner payload.
type TransferRequest struct {
	UserAddress   string `json:"userAddress"`
	Amount        string `json:"amount"`
	SenderAddress string `json:"senderAddress"`
}

// TransferResponse mirrors the transfer endpoint body.
type TransferResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
