package transport

import (
	"time"

	"musicbattle/settlement"
)

// Envelope carries the delivery metadata shared by every inbound event.
type Envelope struct {
	DeliveryID    string
	ParticipantID string
	DisplayName   string
	ChatID        string
	ReceivedAt    time.Time
}

// Meta returns the envelope itself.
func (e Envelope) Meta() Envelope { return e }

func (Envelope) isEvent() {}

// Event is a decoded inbound event. The set of variants is closed; handlers
// switch over the concrete types below.
type Event interface {
	Meta() Envelope
	isEvent()
}

// Help asks for the command list. Reason is set when the event was produced
// from unusable input.
type Help struct {
	Envelope
	Welcome bool
	Reason  string
}

// StartBattle asks for the genre menu.
type StartBattle struct{ Envelope }

// GenreSelected is a genre button press.
type GenreSelected struct {
	Envelope
	Genre string
}

// VoteCast is a vote button press or /votetrack command.
type VoteCast struct {
	Envelope
	BattleID settlement.BattleID
	Track    int
	Amount   settlement.Amount
}

// SetWallet registers the sender's payout address.
type SetWallet struct {
	Envelope
	Address string
}

// ChangeWallet replaces the sender's payout address.
type ChangeWallet struct {
	Envelope
	Address string
}

// GetWallet shows the sender's payout address.
type GetWallet struct{ Envelope }

// ListWallets shows every registered wallet.
type ListWallets struct{ Envelope }

// CloseBattle settles a battle.
type CloseBattle struct {
	Envelope
	BattleID settlement.BattleID
}

// BattleVotes shows the current vote counts.
type BattleVotes struct {
	Envelope
	BattleID settlement.BattleID
}

// BattleDetails shows the backend battle record.
type BattleDetails struct {
	Envelope
	BattleID settlement.BattleID
}

// BattleVoters shows the distinct voter count.
type BattleVoters struct {
	Envelope
	BattleID settlement.BattleID
}

// VotersList shows the voter addresses.
type VotersList struct {
	Envelope
	BattleID settlement.BattleID
}

// Leaderboard shows the backend-ranked standings.
type Leaderboard struct {
	Envelope
	BattleID settlement.BattleID
}

// ContractBalance shows the contract balance.
type ContractBalance struct{ Envelope }

// TransferToOwner moves contract funds to the owner.
type TransferToOwner struct {
	Envelope
	Amount        string
	UserAddress   string
	SenderAddress string
}

// Kind returns a stable, low-cardinality name for an event, used in logs,
// metrics and the journal.
func Kind(ev Event) string {
	switch ev.(type) {
	case Help:
		return "help"
	case StartBattle:
		return "start_battle"
	case GenreSelected:
		return "genre_selected"
	case VoteCast:
		return "vote_cast"
	case SetWallet:
		return "set_wallet"
	case ChangeWallet:
		return "change_wallet"
	case GetWallet:
		return "get_wallet"
	case ListWallets:
		return "list_wallets"
	case CloseBattle:
		return "close_battle"
	case BattleVotes:
		return "battle_votes"
	case BattleDetails:
		return "battle_details"
	case BattleVoters:
		return "battle_voters"
	case VotersList:
		return "voters_list"
	case Leaderboard:
		return "leaderboard"
	case ContractBalance:
		return "contract_balance"
	case TransferToOwner:
		return "transfer_to_owner"
	default:
		return "unknown"
	}
}
