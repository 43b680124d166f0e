// Package handler implements the chat command handlers on top of the bank,
// the betting tables and the duel manager. Every handler returns one flat
// reply string; parse failures echo the command's usage via %{format}.
package handler

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"points-game-bot/internal/bank"

	"github.com/rs/zerolog/log"
)

var (
	numberRe = regexp.MustCompile(`^\d+$`)
	rangeRe  = regexp.MustCompile(`^\d+-\d+$`)
)

// ParseAmount parses a points amount token: a number or the "all" sentinel.
func ParseAmount(tok string) (amount int64, all bool, err error) {
	if tok == "all" {
		return 0, true, nil
	}
	amount, convErr := strconv.ParseInt(tok, 10, 64)
	if convErr != nil {
		return 0, false, errors.New("amount must be a number or 'all'")
	}
	return amount, false, nil
}

// ParseOutcomeRange parses one outcome token: a single number or an
// inclusive "L-H" range, every value within [0, outcomes).
func ParseOutcomeRange(tok string, outcomes int) ([]int, error) {
	switch {
	case numberRe.MatchString(tok):
		value, err := strconv.Atoi(tok)
		if err != nil || value >= outcomes {
			return nil, fmt.Errorf("invalid space '%s'", tok)
		}
		return []int{value}, nil
	case rangeRe.MatchString(tok):
		var start, end int
		if _, err := fmt.Sscanf(tok, "%d-%d", &start, &end); err != nil ||
			start >= outcomes || end >= outcomes || start > end {
			return nil, fmt.Errorf("invalid space range '%s'", tok)
		}
		values := make([]int, 0, end-start+1)
		for v := start; v <= end; v++ {
			values = append(values, v)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("invalid space argument '%s'", tok)
	}
}

// ParseOutcomes parses a list of outcome tokens into the deduplicated,
// sorted union of their values.
func ParseOutcomes(tokens []string, outcomes int) ([]int, error) {
	seen := make(map[int]bool)
	for _, tok := range tokens {
		values, err := ParseOutcomeRange(tok, outcomes)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			seen[v] = true
		}
	}
	union := make([]int, 0, len(seen))
	for v := range seen {
		union = append(union, v)
	}
	sort.Ints(union)
	return union, nil
}

// redNumbers are the red pockets of a European wheel; every other non-zero
// pocket is black.
var redNumbers = []int{1, 3, 5, 7, 9, 12, 14, 16, 18, 19, 21, 23, 25, 27, 30, 32, 34, 36}

// NamedBet resolves the classic roulette bet names to their outcome sets on
// an n-pocket wheel.
func NamedBet(name string, outcomes int) ([]int, bool) {
	filter := func(keep func(int) bool) []int {
		var numbers []int
		for v := 0; v < outcomes; v++ {
			if keep(v) {
				numbers = append(numbers, v)
			}
		}
		return numbers
	}
	switch name {
	case "red":
		return redNumbers, true
	case "black":
		return filter(func(v int) bool {
			if v == 0 {
				return false
			}
			for _, r := range redNumbers {
				if r == v {
					return false
				}
			}
			return true
		}), true
	case "green":
		return []int{0}, true
	case "column1":
		return filter(func(v int) bool { return v%3 == 1 }), true
	case "column2":
		return filter(func(v int) bool { return v%3 == 2 }), true
	case "column3":
		return filter(func(v int) bool { return v%3 == 0 && v != 0 }), true
	case "dozen1":
		return filter(func(v int) bool { return v >= 1 && v <= 12 }), true
	case "dozen2":
		return filter(func(v int) bool { return v >= 13 && v <= 24 }), true
	case "dozen3":
		return filter(func(v int) bool { return v >= 25 && v <= 36 }), true
	case "odd":
		return filter(func(v int) bool { return v%2 == 1 }), true
	case "even":
		return filter(func(v int) bool { return v%2 == 0 && v != 0 }), true
	case "1to18":
		return filter(func(v int) bool { return v >= 1 && v <= 18 }), true
	case "19to36":
		return filter(func(v int) bool { return v >= 19 && v <= 36 }), true
	case "all":
		return filter(func(v int) bool { return v > 0 }), true
	case "all0":
		return filter(func(v int) bool { return true }), true
	default:
		return nil, false
	}
}

// errReply relays user-facing errors verbatim and degrades anything else to
// a generic apology.
func errReply(err error, username string) string {
	var uerr bank.UserError
	if errors.As(err, &uerr) {
		return uerr.Error()
	}
	log.Error().Err(err).Msg("internal failure in handler")
	return fmt.Sprintf("%s, something went wrong...", username)
}
