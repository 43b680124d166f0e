// Package duel orchestrates two-party wager duels over any turn-based game:
// request, accept/reject, play, settle. Settlement runs through a 2-outcome
// pari-mutuel table so the pot moves between the duelists with no house cut.
package duel

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/game"
	"points-game-bot/internal/roulette"
)

// request is an outstanding, unaccepted challenge. The proposer's stake is
// already reserved.
type request struct {
	proposerID string
	targetName string
	amount     int64
	args       []string
}

// active is a duel both parties have committed stakes to. The same record is
// referenced from both participants' entries.
type active struct {
	proposerID string
	targetID   string
	targetName string
	amount     int64
	prediction *roulette.Table
	game       game.Game
}

// entry is one user's slot in the duel map: pending outgoing requests keyed
// by target username, the shared active duel if any, and the memo of the
// last finished duel.
type entry struct {
	requests   map[string]*request
	active     *active
	lastResult *game.Result
}

// Config assembles a duel Manager.
type Config struct {
	Bank        *bank.Bank
	Description string // e.g. "blackjack duel", used in every reply
	// ShuffleChance is the probability that the target plays first.
	ShuffleChance float64
	Rng           *rand.Rand
	// Brain plays for BrainID when a user challenges the bot itself.
	Brain   game.Brain
	BrainID string
	// NewGame constructs the game payload with its randomness injected.
	NewGame func(players []string) game.Game
	// Status renders game-specific state (hands etc.) for check/start
	// output. Optional.
	Status func(g game.Game, names game.UsernameFunc) string
	// CmdMarker prefixes move names in prompts ("!hit").
	CmdMarker string
}

// Manager is the duel negotiation state machine. All methods are
// synchronous: a single call covers every consequence of one chat command,
// including the automated opponent's replies.
type Manager struct {
	cfg   Config
	duels map[string]*entry
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.CmdMarker == "" {
		cfg.CmdMarker = "!"
	}
	return &Manager{cfg: cfg, duels: make(map[string]*entry)}
}

// FormatUsername normalizes an opponent name argument: leading @ stripped,
// lowercased.
func FormatUsername(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, "@"))
}

func (m *Manager) entry(userID string) *entry {
	e, ok := m.duels[userID]
	if !ok {
		e = &entry{requests: make(map[string]*request)}
		m.duels[userID] = e
	}
	return e
}

func (m *Manager) names(ctx context.Context) game.UsernameFunc {
	return func(playerID string) string {
		return m.cfg.Bank.Username(ctx, playerID)
	}
}

// errReply relays user-facing errors verbatim and degrades everything else
// to an apology after logging it.
func (m *Manager) errReply(err error, username string) string {
	var uerr bank.UserError
	if errors.As(err, &uerr) {
		return uerr.Error()
	}
	log.Error().Err(err).Str("component", "duel").Msg("internal failure")
	return fmt.Sprintf("%s, something went wrong...", username)
}

func appendMsg(msg, extra, sep string) string {
	if msg == "" {
		return extra
	}
	if extra == "" {
		return msg
	}
	return msg + sep + extra
}

// Request handles a duel offer. The proposer's stake is reserved the moment
// the offer is made, before acceptance. An existing offer to the same target
// is overwritten, not added to: its reservation is netted into the new one.
func (m *Manager) Request(ctx context.Context, userID, username string, amount int64, all bool, targetName string, args []string) string {
	targetName = FormatUsername(targetName)
	e := m.entry(userID)
	if e.active != nil {
		return fmt.Sprintf("Duel already in progress, %s!", username)
	}
	var extraReserve int64
	if old, ok := e.requests[targetName]; ok {
		extraReserve = old.amount
	}
	ensured, err := m.cfg.Bank.Ensure(ctx, userID, amount, all, extraReserve)
	if err != nil {
		return m.errReply(err, username)
	}
	req := &request{proposerID: userID, targetName: targetName, amount: ensured, args: args}
	log.Info().Str("proposer", userID).Str("target", targetName).Int64("amount", ensured).
		Msgf("%s requested", m.cfg.Description)

	if m.cfg.BrainID != "" && targetName == FormatUsername(m.cfg.BrainID) {
		return m.requestAgainstBrain(ctx, username, req)
	}

	e.requests[targetName] = req
	return fmt.Sprintf("%s, reply with %saccept [%s] to accept the %s, if you're ready to bet %d points!",
		targetName, m.cfg.CmdMarker, username, m.cfg.Description, ensured)
}

// requestAgainstBrain resolves a challenge to the automated opponent
// synchronously: the brain accepts or declines before the reply goes out.
func (m *Manager) requestAgainstBrain(ctx context.Context, username string, req *request) string {
	if m.cfg.Brain == nil {
		m.release(ctx, req)
		return fmt.Sprintf("Sorry, %s, I don't know how to play.", username)
	}
	if be, ok := m.duels[m.cfg.BrainID]; ok && be.active != nil {
		other := be.active.proposerID
		if other == m.cfg.BrainID {
			other = be.active.targetID
		}
		m.release(ctx, req)
		return fmt.Sprintf("%s, I'm already playing with %s...", username, m.cfg.Bank.Username(ctx, other))
	}
	respArgs, ok := m.cfg.Brain.AcceptRequest(req.args)
	if !ok {
		m.release(ctx, req)
		return fmt.Sprintf("%s, I don't want to play with you.", username)
	}
	return "I accept! " + m.start(ctx, req, req.amount, m.cfg.BrainID, respArgs)
}

// release returns a request's reserved stake without storing or removing it.
func (m *Manager) release(ctx context.Context, req *request) {
	if err := m.cfg.Bank.Reserve(ctx, req.proposerID, -req.amount); err != nil {
		log.Error().Err(err).Str("proposer", req.proposerID).Msg("failed to release duel reservation")
	}
}

// retract cancels a stored request and releases its reservation.
func (m *Manager) retract(ctx context.Context, req *request) {
	log.Info().Str("proposer", req.proposerID).Str("target", req.targetName).Int64("amount", req.amount).
		Msgf("%s retracted", m.cfg.Description)
	m.release(ctx, req)
	delete(m.entry(req.proposerID).requests, req.targetName)
}

// Accept handles an accept command. proposerName may be empty, in which case
// exactly one pending request must target the accepter. If the accepter
// cannot cover the proposed stake they go all-in with what they have; the
// proposer's stake is not reduced to match.
func (m *Manager) Accept(ctx context.Context, userID, username, proposerName string, args []string) string {
	targetName := FormatUsername(username)
	proposerName = FormatUsername(proposerName)

	if e, ok := m.duels[userID]; ok && e.active != nil {
		other := e.active.proposerID
		if other == userID {
			other = e.active.targetID
		}
		return fmt.Sprintf("%s, you already have a %s in progress with %s!",
			username, m.cfg.Description, m.cfg.Bank.Username(ctx, other))
	}

	var found *request
	for _, e := range m.duels {
		for _, req := range e.requests {
			if pe, ok := m.duels[req.proposerID]; ok && pe.active != nil {
				// The proposer is mid-duel; their remaining offers wait
				// until it resolves. A user holds at most one active duel.
				continue
			}
			proposerUsername := FormatUsername(m.cfg.Bank.Username(ctx, req.proposerID))
			if (proposerName == "" || proposerUsername == proposerName) && req.targetName == targetName {
				// Matches even when the accepter authored it: a request
				// against your own username is a self-duel.
				if found != nil {
					return fmt.Sprintf("%s, please specify your opponent!", username)
				}
				found = req
			} else if req.proposerID == userID {
				// A stale offer authored by the accepter; cancel it and
				// reclaim the points.
				m.retract(ctx, req)
			}
		}
	}
	if found == nil {
		if proposerName == "" {
			return fmt.Sprintf("%s, no one requested a %s with you!", username, m.cfg.Description)
		}
		if m.isBusy(ctx, proposerName) {
			return fmt.Sprintf("%s, %s is busy!", username, proposerName)
		}
		return fmt.Sprintf("%s, %s didn't request a %s with you!", username, proposerName, m.cfg.Description)
	}

	msg := ""
	available, err := m.cfg.Bank.Available(ctx, userID)
	if err != nil {
		return m.errReply(err, username)
	}
	amount := found.amount
	if amount >= available {
		amount = available
		msg = fmt.Sprintf("%s is going all-in with %d points! ", username, amount)
	}
	return appendMsg(msg, m.start(ctx, found, amount, userID, args), "")
}

// isBusy reports whether the named user is a party to an active duel.
func (m *Manager) isBusy(ctx context.Context, name string) bool {
	for userID, e := range m.duels {
		if e.active != nil && FormatUsername(m.cfg.Bank.Username(ctx, userID)) == name {
			return true
		}
	}
	return false
}

// start transitions a matched request to an active duel: reserves the
// target's stake, seeds the 2-outcome pari-mutuel table (proposer -> 0,
// target -> 1), deals the game with a possibly shuffled player order and
// plays out any immediate terminal state (and the brain's opening moves).
func (m *Manager) start(ctx context.Context, req *request, targetAmount int64, targetID string, targetArgs []string) string {
	if err := m.cfg.Bank.Reserve(ctx, targetID, targetAmount); err != nil {
		return m.errReply(err, m.cfg.Bank.Username(ctx, targetID))
	}
	prediction := roulette.NewPrediction(2)
	if req.proposerID == targetID {
		// Self-duel: merge both stakes across both outcomes.
		prediction.PlaceBet(targetID, req.amount+targetAmount, []int{0, 1})
	} else {
		prediction.PlaceBet(req.proposerID, req.amount, []int{0})
		prediction.PlaceBet(targetID, targetAmount, []int{1})
	}

	players := []string{req.proposerID, targetID}
	if m.cfg.Rng.Float64() < m.cfg.ShuffleChance {
		players[0], players[1] = players[1], players[0]
	}
	act := &active{
		proposerID: req.proposerID,
		targetID:   targetID,
		targetName: req.targetName,
		amount:     req.amount,
		prediction: prediction,
		game:       m.cfg.NewGame(players),
	}
	delete(m.entry(req.proposerID).requests, req.targetName)
	m.entry(req.proposerID).active = act
	m.entry(targetID).active = act
	log.Info().Str("proposer", req.proposerID).Int64("proposer_stake", req.amount).
		Str("target", targetID).Int64("target_stake", targetAmount).
		Msgf("%s started", m.cfg.Description)

	msg := fmt.Sprintf("Let the %s begin, %s is first to play! ",
		m.cfg.Description, m.cfg.Bank.Username(ctx, players[0]))
	return msg + m.printDuel(ctx, act, true, act.game.Init())
}

// printDuel renders the duel state and drives it forward: settles a terminal
// result, prompts the human whose turn it is, or plays the brain's moves
// until the turn comes back to a human (or the game ends).
func (m *Manager) printDuel(ctx context.Context, act *active, moreInfo bool, result *game.Result) string {
	msg := ""
	if moreInfo && m.cfg.Status != nil {
		msg = m.cfg.Status(act.game, m.names(ctx))
	}
	if result != nil {
		return appendMsg(msg, m.processResult(ctx, act, result), " ")
	}

	if !(m.cfg.Brain != nil && act.game.CurrentPlayer() == m.cfg.BrainID) {
		return appendMsg(msg, m.prompt(ctx, act), " ")
	}

	move, args, ok := m.cfg.Brain.Move(act.game)
	if !ok {
		return appendMsg(msg, m.resign(ctx, act, m.cfg.BrainID), " ")
	}
	moveResult, err := act.game.Move(move, args)
	if err != nil {
		log.Error().Err(err).Str("move", move).Msg("brain picked an unplayable move")
		return appendMsg(msg, m.resign(ctx, act, m.cfg.BrainID), " ")
	}
	msg = appendMsg(msg, moveResult.Describe(m.names(ctx)), " ")
	return appendMsg(msg, m.printDuel(ctx, act, false, moveResult.Result), " ")
}

func (m *Manager) prompt(ctx context.Context, act *active) string {
	moves := act.game.Moves()
	for i, mv := range moves {
		moves[i] = m.cfg.CmdMarker + mv
	}
	return fmt.Sprintf("%s, your move! Type %s!",
		m.cfg.Bank.Username(ctx, act.game.CurrentPlayer()), strings.Join(moves, " or "))
}

// processResult resolves an active duel against a game result: ties refund
// both stakes, otherwise the pot moves from loser to winner through the
// pari-mutuel table. Both entries drop to a last-result memo.
func (m *Manager) processResult(ctx context.Context, act *active, result *game.Result) string {
	m.entry(act.proposerID).active = nil
	m.entry(act.targetID).active = nil
	m.entry(act.proposerID).lastResult = result
	m.entry(act.targetID).lastResult = result

	if len(result.Ranking) == 1 {
		if err := m.cfg.Bank.RefundAll(ctx, act.prediction); err != nil {
			log.Error().Err(err).Msg("failed to refund tied duel")
		}
		log.Info().Str("proposer", act.proposerID).Str("target", act.targetID).
			Msgf("%s tied", m.cfg.Description)
		return "It's a tie! All points return to their respective owners."
	}

	winnerID := result.Ranking[0][0]
	if winnerID == act.proposerID {
		act.prediction.LastOutcome = 0
	} else {
		act.prediction.LastOutcome = 1
	}
	msg := fmt.Sprintf("The winner is %s", m.cfg.Bank.Username(ctx, winnerID))

	settler := m.cfg.Bank.NewSettler(ctx, func(username string, didWin bool, payout int64, chance float64, balance int64) string {
		if m.cfg.BrainID != "" && username == m.cfg.Bank.Username(ctx, m.cfg.BrainID) {
			// The house side of a brain duel settles silently.
			return ""
		}
		if didWin {
			return fmt.Sprintf("%s won %d points and now has %d points", username, payout, balance)
		}
		return fmt.Sprintf("%s lost %d points and now has %d points", username, -payout, balance)
	})
	act.prediction.ComputeWinnings(settler.Settle)
	for _, line := range settler.Messages {
		msg = appendMsg(msg, line, ", ")
	}
	log.Info().Str("winner", winnerID).Msgf("%s settled", m.cfg.Description)
	return msg
}

// resign resolves the duel immediately with userID as the sole loser.
func (m *Manager) resign(ctx context.Context, act *active, userID string) string {
	ranking := [][]string{{act.proposerID}, {act.targetID}}
	if userID == act.proposerID {
		ranking[0], ranking[1] = ranking[1], ranking[0]
	}
	username := m.cfg.Bank.Username(ctx, userID)
	log.Info().Str("user", userID).Msgf("%s forfeited", m.cfg.Description)
	return fmt.Sprintf("%s forfeits the %s. ", username, m.cfg.Description) +
		m.processResult(ctx, act, &game.Result{Ranking: ranking})
}

// Move relays a move command into the active duel, then plays out the
// brain's reply if it is next.
func (m *Manager) Move(ctx context.Context, userID, username, moveName string, args []string) string {
	e, ok := m.duels[userID]
	if !ok || e.active == nil {
		return fmt.Sprintf("%s, you're not in a duel!", username)
	}
	act := e.active
	if act.game.CurrentPlayer() != userID {
		return fmt.Sprintf("%s, it's not your turn!", username)
	}
	moveResult, err := act.game.Move(moveName, args)
	if err != nil {
		// Leave the duel as it was.
		log.Error().Err(err).Str("move", moveName).Msg("move rejected")
		return fmt.Sprintf("%s, something went wrong...", username)
	}
	msg := moveResult.Describe(m.names(ctx))
	return appendMsg(msg, m.printDuel(ctx, act, false, moveResult.Result), " ")
}

// Unduel forfeits the caller's active duel, or retracts all their pending
// requests, releasing the reservations.
func (m *Manager) Unduel(ctx context.Context, userID, username string) string {
	if e, ok := m.duels[userID]; ok {
		if e.active != nil {
			return m.resign(ctx, e.active, userID)
		}
		for _, req := range e.requests {
			m.retract(ctx, req)
		}
	}
	return fmt.Sprintf("%s retracted all their %s requests", username, m.cfg.Description)
}

// Check reports the caller's duel state: full status of an active duel, the
// memo of the last finished one, or nothing.
func (m *Manager) Check(ctx context.Context, userID, username string) string {
	e, ok := m.duels[userID]
	if ok && e.active != nil {
		return m.printDuel(ctx, e.active, true, nil)
	}
	if ok && e.lastResult != nil {
		msg := fmt.Sprintf("%s, your last %s result was: ", username, m.cfg.Description)
		result := e.lastResult
		if len(result.Ranking) == 1 {
			other := result.Ranking[0][0]
			if other == userID && len(result.Ranking[0]) > 1 {
				other = result.Ranking[0][1]
			}
			return msg + fmt.Sprintf("you tied with %s", m.cfg.Bank.Username(ctx, other))
		}
		winnerID := result.Ranking[0][0]
		loserID := result.Ranking[1][0]
		if userID == winnerID {
			return msg + fmt.Sprintf("you won against %s", m.cfg.Bank.Username(ctx, loserID))
		}
		return msg + fmt.Sprintf("you lost to %s", m.cfg.Bank.Username(ctx, winnerID))
	}
	return fmt.Sprintf("%s, you're not in a %s!", username, m.cfg.Description)
}

// Rendezvous lists every live duel and request the caller is a party to.
func (m *Manager) Rendezvous(ctx context.Context, userID, username string) string {
	msg := fmt.Sprintf("%s, you are participating in: ", username)
	var parts []string
	if e, ok := m.duels[userID]; ok && e.active != nil {
		parts = append(parts, fmt.Sprintf("an ongoing %s %s <-> %s", m.cfg.Description,
			m.cfg.Bank.Username(ctx, e.active.proposerID), e.active.targetName))
	}
	targetName := FormatUsername(username)
	for _, e := range m.duels {
		for _, req := range e.requests {
			if req.proposerID == userID || req.targetName == targetName {
				parts = append(parts, fmt.Sprintf("a %s request %s -> %s", m.cfg.Description,
					m.cfg.Bank.Username(ctx, req.proposerID), req.targetName))
			}
		}
	}
	if len(parts) == 0 {
		return msg + fmt.Sprintf("no %ss or requests.", m.cfg.Description)
	}
	return msg + strings.Join(parts, ", ")
}
