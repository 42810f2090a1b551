package battlebot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"musicbattle/battle"
	"musicbattle/settlement"
	"musicbattle/tracks"
	"musicbattle/transport"
	"musicbattle/wallet"
)

const maxDetailRunes = 300

const helpText = `/start - Start the bot
/help - List commands
/startbattle - Start a music battle
/votetrack <battleId> <trackNumber> <paymentAmount> - Vote without the buttons
/battlevotes <battleId> - Get current votes in the battle
/battledetails <battleId> - Get details of a battle
/battlevoters <battleId> - Get total voters for a battle
/leaderboard <battleId> - Get the battle standings
/getVotersList <battleId> - Get voters of the battle
/getContractBalance - Get the balance held by the contract
/closeBattle <battleId> - Close the battle with specific battleId
/transferToOwner <amount> <userAddress> <senderAddress> - Send funds from the contract: owner only

Wallet Management:
/setwallet <wallet_address> - Set your wallet address for the first time. If you've already set one, it will return your current wallet.
/changewallet <new_wallet_address> - Change your existing wallet address.
/getwallet - Get your current wallet address.
/listwallets - List all wallet addresses set by users.`

const (
	welcomeText     = "Welcome to the Music Battle Bot! 🎶\nUse /setwallet <wallet> to link your wallet address.\nType /help to see available commands."
	noWalletText    = "❌ You haven't set your wallet address yet. Use /setwallet <wallet_address> to set it."
	slowDownText    = "⏳ You're sending commands too quickly. Please slow down and try again shortly."
	notPersistedTip = "\n⚠️ It could not be saved and may be lost if the bot restarts."
)

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// describe renders err for users. Backend text is passed through truncated;
// local validation errors drop their package prefix.
func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, settlement.ErrTransport):
		return "Failed to reach the battle backend. " + truncate(settlement.Detail(err), maxDetailRunes)
	case errors.Is(err, tracks.ErrTransport):
		return "Failed to reach the track provider. " + truncate(tracks.Detail(err), maxDetailRunes)
	case errors.Is(err, settlement.ErrBackendRejected):
		return truncate(settlement.Detail(err), maxDetailRunes)
	case errors.Is(err, battle.ErrValidation):
		return truncate(strings.TrimPrefix(err.Error(), battle.ErrValidation.Error()+": "), maxDetailRunes)
	}
	return truncate(err.Error(), maxDetailRunes)
}

func reply(env transport.Envelope, text string) transport.Message {
	return transport.Message{ChatID: env.ChatID, ReplyTo: env.DeliveryID, Text: text}
}

func failure(env transport.Envelope, prefix string, err error) transport.Message {
	return reply(env, fmt.Sprintf("❌ %s: %s", prefix, describe(err)))
}

func renderHelp(env transport.Envelope, welcome bool, reason string) transport.Message {
	var b strings.Builder
	if reason != "" {
		b.WriteString("❓ ")
		b.WriteString(reason)
		b.WriteString("\n\n")
	}
	if welcome {
		b.WriteString(welcomeText)
		b.WriteString("\n\n")
	}
	b.WriteString(helpText)
	return reply(env, b.String())
}

func renderGenreMenu(env transport.Envelope, genres []battle.Genre) transport.Message {
	msg := reply(env, "🎶 Select a music genre for the battle:")
	for _, g := range genres {
		msg.Buttons = append(msg.Buttons, []transport.Button{{
			Label:  fmt.Sprintf("%s (%s)", g.Name, g.Amount),
			Action: transport.GenreAction(g.Name),
		}})
	}
	return msg
}

func promptKey(id settlement.BattleID) string {
	return "battle:" + id.String()
}

func voteButtons(p battle.Prompt) [][]transport.Button {
	rows := make([][]transport.Button, 0, len(p.Options))
	for _, opt := range p.Options {
		rows = append(rows, []transport.Button{{
			Label:  fmt.Sprintf("🎵 %s (%d votes)", opt.Label, opt.Votes),
			Action: transport.VoteAction(p.BattleID, opt.Track, p.Amount),
		}})
	}
	return rows
}

// renderBattleCreated is the single primary message of a successful genre
// selection: the backend confirmation followed by the voting prompt.
func renderBattleCreated(env transport.Envelope, attempt battle.Attempt) transport.Message {
	conf := attempt.Confirmation
	session := attempt.Session
	var b strings.Builder
	fmt.Fprintf(&b, "🎵 %s\n", strings.TrimSpace(conf.Message))
	fmt.Fprintf(&b, "Battle ID: %s\n", session.ID)
	fmt.Fprintf(&b, "Balance Before: %s\n", conf.BalanceBefore)
	fmt.Fprintf(&b, "Balance After: %s\n", conf.BalanceAfter)
	fmt.Fprintf(&b, "Transaction Hash: %s\n\n", conf.TransactionHash)
	fmt.Fprintf(&b, "Vote for your favorite track below (%s per vote):\n\n", session.Amount)
	fmt.Fprintf(&b, "Track 1: %s\n", session.TrackA.Label())
	fmt.Fprintf(&b, "Track 2: %s", session.TrackB.Label())
	msg := reply(env, b.String())
	msg.Buttons = voteButtons(*attempt.Prompt)
	msg.PromptKey = promptKey(session.ID)
	return msg
}

func renderBattleFailed(env transport.Envelope, attempt battle.Attempt, err error) transport.Message {
	switch {
	case errors.Is(err, wallet.ErrNotRegistered):
		return reply(env, noWalletText)
	case errors.Is(err, battle.ErrUnknownGenre):
		return reply(env, "❌ Unknown genre. Use /startbattle to pick one from the menu.")
	case errors.Is(err, battle.ErrInsufficientCandidates):
		return reply(env, fmt.Sprintf("❌ Not enough tracks found for %s. Use /startbattle to try again.", attempt.Genre.Name))
	}
	return failure(env, "Battle creation failed", err)
}

// renderTallyRefresh replaces the voting prompt in place.
func renderTallyRefresh(env transport.Envelope, p battle.Prompt) transport.Message {
	msg := transport.Message{
		ChatID:    env.ChatID,
		Text:      fmt.Sprintf("🎶 Battle %s standings. Give your votes here:", p.BattleID),
		Buttons:   voteButtons(p),
		PromptKey: promptKey(p.BattleID),
		Replace:   true,
	}
	return msg
}

func renderVoteResult(env transport.Envelope, res battle.VoteResult) transport.Message {
	switch res.Status {
	case battle.VoteRecorded:
		tx := res.TransactionHash
		if tx == "" {
			tx = "N/A"
		}
		return reply(env, fmt.Sprintf("✅ Your vote for Track %d has been recorded!\nTransaction Hash: %s", res.Intent.Track, tx))
	case battle.VoteAlreadyCast:
		return reply(env, "ℹ️ You have already voted in this battle.")
	case battle.VoteClosed:
		return reply(env, fmt.Sprintf("⌛ Voting for battle %s has ended.", res.Intent.BattleID))
	}
	msg := strings.TrimSpace(res.Message)
	if msg == "" {
		msg = "Unknown error occurred."
	}
	return reply(env, "❌ Error: "+truncate(msg, maxDetailRunes))
}

func renderVoteError(env transport.Envelope, err error) transport.Message {
	if errors.Is(err, wallet.ErrNotRegistered) {
		return reply(env, noWalletText)
	}
	if errors.Is(err, battle.ErrValidation) {
		return failure(env, "Invalid vote", err)
	}
	return failure(env, "Vote not submitted", err)
}

func renderWalletSet(env transport.Envelope, res wallet.SetResult, persisted bool) transport.Message {
	if res.AlreadySet {
		return reply(env, fmt.Sprintf("Your wallet address is already set to %s. If you want to change it, use /changewallet.", res.Address))
	}
	name := env.DisplayName
	if name == "" {
		name = "you"
	}
	text := fmt.Sprintf("✅ Wallet address for %s set to %s.", name, res.Address)
	if !persisted {
		text += notPersistedTip
	}
	return reply(env, text)
}

func renderWalletChanged(env transport.Envelope, address string, persisted bool) transport.Message {
	text := fmt.Sprintf("✅ Your wallet address has been updated to %s.", address)
	if !persisted {
		text += notPersistedTip
	}
	return reply(env, text)
}

func renderWallet(env transport.Envelope, w wallet.Wallet) transport.Message {
	return reply(env, fmt.Sprintf("Your wallet address is %s (Linked to %s).", w.Address, w.DisplayName))
}

func renderWalletList(env transport.Envelope, wallets []wallet.Wallet) transport.Message {
	if len(wallets) == 0 {
		return reply(env, "No wallet addresses have been set yet.")
	}
	var b strings.Builder
	b.WriteString("Global Wallet Mappings:")
	for _, w := range wallets {
		fmt.Fprintf(&b, "\nUser ID %s (%s): %s", w.ParticipantID, w.DisplayName, w.Address)
	}
	return reply(env, b.String())
}

func renderClosure(env transport.Envelope, c *battle.Closure) transport.Message {
	voters := "none"
	if len(c.WinningVoters) > 0 {
		voters = strings.Join(c.WinningVoters, ", ")
	}
	winner := c.Winner
	if winner == "" {
		winner = fmt.Sprintf("Battle %s closed.", c.BattleID)
	}
	report := c.Report
	if report == "" {
		report = "No settlement report."
	}
	return reply(env, fmt.Sprintf("👥 %s\n\n👥 Winner Voters are: %s\n\nBalance Sheet\n\n%s", winner, voters, report))
}

func renderTally(env transport.Envelope, id settlement.BattleID, t *settlement.VoteTally) transport.Message {
	if !t.BattleID.IsZero() {
		id = t.BattleID
	}
	return reply(env, fmt.Sprintf("🎶 Battle ID: %s\nTrack 1 Votes: %d\nTrack 2 Votes: %d", id, t.Track1Votes, t.Track2Votes))
}

func renderDetails(env transport.Envelope, id settlement.BattleID, d *settlement.BattleDetails) transport.Message {
	if !d.BattleID.IsZero() {
		id = d.BattleID
	}
	active := "No"
	if d.IsActive {
		active = "Yes"
	}
	return reply(env, fmt.Sprintf("🎶 Battle ID: %s\nTrack 1: %s (Votes: %d)\nTrack 2: %s (Votes: %d)\nTimestamp: %s\nActive: %s",
		id, d.Track1, d.VotesTrack1, d.Track2, d.VotesTrack2, d.Timestamp, active))
}

func renderVoterCount(env transport.Envelope, id settlement.BattleID, v *settlement.VoterCount) transport.Message {
	if !v.BattleID.IsZero() {
		id = v.BattleID
	}
	return reply(env, fmt.Sprintf("🎶 Total Voters for Battle %s: %d", id, v.TotalVoters))
}

func renderVoterList(env transport.Envelope, id settlement.BattleID, v *settlement.VoterList) transport.Message {
	if len(v.VotersList) == 0 {
		return reply(env, fmt.Sprintf("👥 No voters yet for Battle ID %s.", id))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 Voters for Battle ID %s:\n", id)
	for _, voter := range v.VotersList {
		fmt.Fprintf(&b, "\n🔸 %s", voter)
	}
	return reply(env, b.String())
}

func renderLeaderboard(env transport.Envelope, id settlement.BattleID, l *settlement.Leaderboard) transport.Message {
	if len(l.Entries) == 0 {
		return reply(env, fmt.Sprintf("🏆 No votes yet for Battle ID %s.", id))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏆 Leaderboard for Battle ID %s:", id)
	for i, entry := range l.Entries {
		fmt.Fprintf(&b, "\n%d. %s - %d votes", i+1, entry.Track, entry.Votes)
	}
	return reply(env, b.String())
}

func renderBalance(env transport.Envelope, b *settlement.ContractBalance) transport.Message {
	return reply(env, fmt.Sprintf("💰 Current Balance: %s", b.Balance))
}

func renderTransfer(env transport.Envelope, userAddress string) transport.Message {
	return reply(env, fmt.Sprintf("✅ Transfer successful to address: %s", userAddress))
}
