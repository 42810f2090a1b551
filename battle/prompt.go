package battle

import "musicbattle/settlement"

// Option is one vote button of a voting prompt.
type Option struct {
	Track int
	Label string
	Votes uint64
}

// Prompt is the voting prompt for a battle. It is keyed by battle id so a
// transport can replace an earlier rendering in place.
type Prompt struct {
	BattleID settlement.BattleID
	Genre    string
	Amount   settlement.Amount
	Options  [2]Option
}

func promptFor(session Session, votesA, votesB uint64) Prompt {
	return Prompt{
		BattleID: session.ID,
		Genre:    session.Genre,
		Amount:   session.Amount,
		Options: [2]Option{
			{Track: 1, Label: session.TrackA.Label(), Votes: votesA},
			{Track: 2, Label: session.TrackB.Label(), Votes: votesB},
		},
	}
}
