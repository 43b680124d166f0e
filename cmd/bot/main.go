// Package main is the entry point for the points game bot.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"points-game-bot/internal/bank"
	"points-game-bot/internal/bot"
	"points-game-bot/internal/config"
	"points-game-bot/internal/dispatch"
	"points-game-bot/internal/duel"
	"points-game-bot/internal/game"
	"points-game-bot/internal/game/blackjack"
	"points-game-bot/internal/handler"
	"points-game-bot/internal/ledger"
	"points-game-bot/internal/model"
	"points-game-bot/internal/pkg/lock"
	"points-game-bot/internal/roulette"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger store")
	}
	defer cleanup()

	locks := lock.NewUserLock()
	b := bank.New(store, locks, cfg.Points.HouseID)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	rouletteTable := roulette.NewRoulette(cfg.Games.Roulette.Pockets)
	predictionTable := roulette.NewPrediction(cfg.Games.Roulette.Pockets)

	brainID := duel.FormatUsername(cfg.Bot.Username)
	if err := b.SetUsername(ctx, brainID, cfg.Bot.Username); err != nil {
		log.Fatal().Err(err).Msg("Failed to register bot account")
	}
	duelManager := duel.NewManager(duel.Config{
		Bank:          b,
		Description:   "blackjack duel",
		ShuffleChance: cfg.Games.Duel.ShuffleChance,
		Rng:           rng,
		Brain:         blackjack.Brain{},
		BrainID:       brainID,
		NewGame: func(players []string) game.Game {
			deck := blackjack.NewDeck()
			deck.Shuffle(rng)
			return blackjack.New(players, deck)
		},
		Status:    blackjackStatus,
		CmdMarker: cfg.Bot.Marker,
	})

	router := dispatch.NewRouter(cfg.Bot.Marker, func(ctx context.Context, c dispatch.ChatContext) {
		if err := b.SetUsername(ctx, c.UserID, c.Username); err != nil {
			log.Error().Err(err).Str("user_id", c.UserID).Msg("Failed to record username")
		}
	})
	handlers := []interface {
		Register(r *dispatch.Router) error
	}{
		handler.NewAccountHandler(b, cfg.Points.ClaimSize, cfg.Points.ClaimCooldown, nil),
		handler.NewRouletteHandler(b, rouletteTable, rng),
		handler.NewPredictionHandler(b, predictionTable),
		handler.NewDuelHandler(duelManager, []string{blackjack.MoveHit, blackjack.MoveStand}),
	}
	for _, h := range handlers {
		if err := h.Register(router); err != nil {
			log.Fatal().Err(err).Msg("Failed to register handlers")
		}
	}

	tgBot, err := bot.New(cfg, router)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("Shutdown signal received")
		tgBot.Stop()
		cancel()
	}()

	tgBot.Start()
	log.Info().Msg("Bot stopped")
}

// newStore builds the configured ledger backend. The returned cleanup is
// safe to call once the bot has stopped.
func newStore(ctx context.Context, cfg *config.Config) (ledger.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		initial, err := loadSnapshot(cfg.Storage.File)
		if err != nil {
			return nil, nil, err
		}
		store := ledger.NewMemory(initial, snapshotPersister(cfg.Storage.File), cfg.Points.StartingBalance)
		return store, func() {}, nil
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("parse database config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.Database.PoolSize)
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		store := ledger.NewPostgres(pool, cfg.Points.StartingBalance)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// loadSnapshot reads the memory backend's JSON snapshot, if it exists.
func loadSnapshot(path string) (map[string]*model.BalanceRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger snapshot: %w", err)
	}
	var records map[string]*model.BalanceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse ledger snapshot: %w", err)
	}
	return records, nil
}

// snapshotPersister writes the full ledger to a temp file and renames it
// into place, so a crash mid-write never corrupts the snapshot.
func snapshotPersister(path string) ledger.PersisterFunc {
	return func(records map[string]*model.BalanceRecord) error {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return err
		}
		return os.Rename(tmp, path)
	}
}

// blackjackStatus renders both hands for check output and duel starts.
func blackjackStatus(g game.Game, names game.UsernameFunc) string {
	bj, ok := g.(*blackjack.BlackJack)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(bj.Players()))
	for _, p := range bj.Players() {
		parts = append(parts, fmt.Sprintf("%s's hand: %s, totaling %d",
			names(p), bj.HandString(p), blackjack.HandValue(bj.Hand(p))))
	}
	return strings.Join(parts, "; ") + "."
}
