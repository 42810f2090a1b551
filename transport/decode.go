package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"musicbattle/settlement"
)

var (
	// ErrUnknownCommand is returned for text that is not a known command.
	ErrUnknownCommand = errors.New("transport: unknown command")
	// ErrMalformedAction is returned for button actions that cannot be decoded.
	ErrMalformedAction = errors.New("transport: malformed action")
	// ErrMissingParticipant is returned when the sender cannot be identified.
	ErrMissingParticipant = errors.New("transport: participant id required")
)

// UsageError reports a known command invoked with unusable arguments.
type UsageError struct {
	Command string
	Usage   string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("transport: usage: %s", e.Usage)
}

// Inbound is the JSON shape delivered by chat adapters.
type Inbound struct {
	ID          string      `json:"id"`
	Participant Participant `json:"participant"`
	ChatID      FlexString  `json:"chatId"`
	Text        string      `json:"text,omitempty"`
	Action      *Action     `json:"action,omitempty"`
	// CallbackData carries legacy pipe-delimited button payloads
	// ("vote|track1|7|5", "genre|Pop") from adapters that cannot emit
	// structured actions.
	CallbackData string `json:"callbackData,omitempty"`
}

// Participant identifies the sender.
type Participant struct {
	ID          FlexString `json:"id"`
	DisplayName string     `json:"displayName"`
}

// Action is a structured button payload. Adapters echo back the Action
// attached to an outbound Button verbatim.
type Action struct {
	Kind     string              `json:"kind"`
	BattleID settlement.BattleID `json:"battleId,omitempty"`
	Track    int                 `json:"track,omitempty"`
	Amount   FlexString          `json:"amount,omitempty"`
	Genre    string              `json:"genre,omitempty"`
}

const (
	ActionVote  = "vote"
	ActionGenre = "genre"
)

// VoteAction builds the action attached to a vote button.
func VoteAction(id settlement.BattleID, track int, amount settlement.Amount) *Action {
	return &Action{Kind: ActionVote, BattleID: id, Track: track, Amount: FlexString(amount.String())}
}

// GenreAction builds the action attached to a genre button.
func GenreAction(genre string) *Action {
	return &Action{Kind: ActionGenre, Genre: genre}
}

// FlexString decodes a JSON string or number into a string; chat platforms
// emit numeric user and chat ids.
type FlexString string

func (t *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("transport: expected string or number, got %s", string(trimmed))
	}
	*t = FlexString(n.String())
	return nil
}

// Decode converts an inbound payload into exactly one Event.
func Decode(in Inbound, receivedAt time.Time) (Event, error) {
	env := Envelope{
		DeliveryID:    strings.TrimSpace(in.ID),
		ParticipantID: strings.TrimSpace(string(in.Participant.ID)),
		DisplayName:   strings.TrimSpace(in.Participant.DisplayName),
		ChatID:        string(in.ChatID),
		ReceivedAt:    receivedAt,
	}
	if env.ParticipantID == "" {
		return nil, ErrMissingParticipant
	}
	switch {
	case in.Action != nil:
		return decodeAction(env, *in.Action)
	case strings.TrimSpace(in.CallbackData) != "":
		action, err := parseCallbackData(in.CallbackData)
		if err != nil {
			return nil, err
		}
		return decodeAction(env, action)
	default:
		return ParseCommand(env, in.Text)
	}
}

func decodeAction(env Envelope, action Action) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(action.Kind)) {
	case ActionVote:
		if action.BattleID.IsZero() {
			return nil, fmt.Errorf("%w: vote without battle id", ErrMalformedAction)
		}
		if action.Track != 1 && action.Track != 2 {
			return nil, fmt.Errorf("%w: vote track %d", ErrMalformedAction, action.Track)
		}
		amount, err := settlement.ParseAmount(string(action.Amount))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}
		return VoteCast{Envelope: env, BattleID: action.BattleID, Track: action.Track, Amount: amount}, nil
	case ActionGenre:
		genre := strings.TrimSpace(action.Genre)
		if genre == "" {
			return nil, fmt.Errorf("%w: genre required", ErrMalformedAction)
		}
		return GenreSelected{Envelope: env, Genre: genre}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedAction, action.Kind)
	}
}

func parseCallbackData(data string) (Action, error) {
	parts := strings.Split(strings.TrimSpace(data), "|")
	switch parts[0] {
	case ActionGenre:
		if len(parts) != 2 {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
		}
		return Action{Kind: ActionGenre, Genre: parts[1]}, nil
	case ActionVote:
		if len(parts) != 4 {
			return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
		}
		track := 0
		switch parts[1] {
		case "track1":
			track = 1
		case "track2":
			track = 2
		default:
			return Action{}, fmt.Errorf("%w: track %q", ErrMalformedAction, parts[1])
		}
		return Action{Kind: ActionVote, BattleID: settlement.BattleID(strings.TrimSpace(parts[2])), Track: track, Amount: FlexString(parts[3])}, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrMalformedAction, data)
}

type commandSpec struct {
	usage string
	build func(env Envelope, args []string) (Event, bool)
}

func battleIDCommand(usage string, build func(Envelope, settlement.BattleID) Event) commandSpec {
	return commandSpec{usage: usage, build: func(env Envelope, args []string) (Event, bool) {
		if len(args) != 1 {
			return nil, false
		}
		return build(env, settlement.BattleID(args[0])), true
	}}
}

func noArgCommand(build func(Envelope) Event) commandSpec {
	return commandSpec{build: func(env Envelope, _ []string) (Event, bool) {
		return build(env), true
	}}
}

var commands = map[string]commandSpec{
	"start":       noArgCommand(func(env Envelope) Event { return Help{Envelope: env, Welcome: true} }),
	"help":        noArgCommand(func(env Envelope) Event { return Help{Envelope: env} }),
	"startbattle": noArgCommand(func(env Envelope) Event { return StartBattle{Envelope: env} }),
	"getwallet":   noArgCommand(func(env Envelope) Event { return GetWallet{Envelope: env} }),
	"listwallets": noArgCommand(func(env Envelope) Event { return ListWallets{Envelope: env} }),
	"getcontractbalance": noArgCommand(func(env Envelope) Event {
		return ContractBalance{Envelope: env}
	}),
	"setwallet": {
		build: func(env Envelope, args []string) (Event, bool) {
			return SetWallet{Envelope: env, Address: strings.Join(args, " ")}, true
		},
	},
	"changewallet": {
		usage: "/changewallet <new_wallet_address>",
		build: func(env Envelope, args []string) (Event, bool) {
			if len(args) == 0 {
				return nil, false
			}
			return ChangeWallet{Envelope: env, Address: strings.Join(args, " ")}, true
		},
	},
	"votetrack": {
		usage: "/votetrack <battleId> <trackNumber> <paymentAmount>",
		build: func(env Envelope, args []string) (Event, bool) {
			if len(args) != 3 {
				return nil, false
			}
			track, err := strconv.Atoi(args[1])
			if err != nil || (track != 1 && track != 2) {
				return nil, false
			}
			amount, err := settlement.ParseAmount(args[2])
			if err != nil {
				return nil, false
			}
			return VoteCast{Envelope: env, BattleID: settlement.BattleID(args[0]), Track: track, Amount: amount}, true
		},
	},
	"closebattle": battleIDCommand("/closeBattle <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return CloseBattle{Envelope: env, BattleID: id}
	}),
	"battlevotes": battleIDCommand("/battlevotes <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return BattleVotes{Envelope: env, BattleID: id}
	}),
	"battledetails": battleIDCommand("/battledetails <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return BattleDetails{Envelope: env, BattleID: id}
	}),
	"battlevoters": battleIDCommand("/battlevoters <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return BattleVoters{Envelope: env, BattleID: id}
	}),
	"getvoterslist": battleIDCommand("/getVotersList <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return VotersList{Envelope: env, BattleID: id}
	}),
	"leaderboard": battleIDCommand("/leaderboard <battleId>", func(env Envelope, id settlement.BattleID) Event {
		return Leaderboard{Envelope: env, BattleID: id}
	}),
	"transfertoowner": {
		usage: "/transferToOwner <amount> <userAddress> <senderAddress>",
		build: func(env Envelope, args []string) (Event, bool) {
			if len(args) != 3 {
				return nil, false
			}
			return TransferToOwner{Envelope: env, Amount: args[0], UserAddress: args[1], SenderAddress: args[2]}, true
		},
	},
}

// ParseCommand decodes a slash command. Command names are case-insensitive
// and may carry an "@botname" suffix.
func ParseCommand(env Envelope, raw string) (Event, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, ErrUnknownCommand
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	spec, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: /%s", ErrUnknownCommand, name)
	}
	ev, ok := spec.build(env, fields[1:])
	if !ok {
		return nil, &UsageError{Command: name, Usage: spec.usage}
	}
	return ev, nil
}
