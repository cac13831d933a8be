package leveling

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"questbot.io/questbot/internal/config"
)

// Deps are the collaborators of the engine. Limiter and Archiver may be nil.
type Deps struct {
	Store     Store
	Configs   ConfigSource
	Platform  Platform
	Publisher Publisher
	Limiter   NotificationLimiter
	Archiver  Archiver
}

type Options struct {
	Levels                 *LevelTable
	BadgeNameExp           int
	DefaultQuestExp        int
	MaxQuestExp            int
	ConfirmTimeout         time.Duration
	WelcomeTTL             time.Duration
	Workers                int
	RoleMutationsPerSecond int
	// BackOff overrides the retry policy of role mutations.
	BackOff func() backoff.BackOff
}

// OptionsFromConfig validates the leveling section into engine options.
func OptionsFromConfig(c config.Leveling) (Options, error) {
	levels, err := NewLevelTable(c.Thresholds)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Levels:                 levels,
		BadgeNameExp:           c.BadgeNameExp,
		DefaultQuestExp:        c.DefaultQuestExp,
		MaxQuestExp:            c.MaxQuestExp,
		ConfirmTimeout:         c.ConfirmTimeout,
		WelcomeTTL:             c.WelcomeTTL,
		Workers:                c.Workers,
		RoleMutationsPerSecond: c.RoleMutationsPerSecond,
	}, nil
}

// Engine wires the leveling components together.
type Engine struct {
	Levels        *LevelTable
	Aggregator    *Aggregator
	Synchronizer  *Synchronizer
	Notifier      *Notifier
	Gate          *Gate
	Reactor       *Reactor
	Admin         *Admin
	Leaderboard   *Leaderboard
	Confirmations *Confirmations
}

func New(deps Deps, opts Options) *Engine {
	syncOpts := []SynchronizerOption{WithMutationRate(opts.RoleMutationsPerSecond)}
	if opts.BackOff != nil {
		syncOpts = append(syncOpts, WithBackOff(opts.BackOff))
	}
	e := &Engine{
		Levels:        opts.Levels,
		Aggregator:    NewAggregator(deps.Store, deps.Platform, opts.Levels, opts.BadgeNameExp),
		Synchronizer:  NewSynchronizer(deps.Platform, syncOpts...),
		Notifier:      NewNotifier(deps.Configs, deps.Publisher, deps.Platform, deps.Limiter),
		Gate:          NewGate(deps.Configs),
		Confirmations: NewConfirmations(),
	}
	e.Reactor = NewReactor(deps.Store, deps.Configs, deps.Platform, e.Aggregator, e.Synchronizer,
		e.Notifier, opts.Workers, opts.BadgeNameExp, opts.WelcomeTTL)
	e.Admin = &Admin{
		store:           deps.Store,
		configs:         deps.Configs,
		platform:        deps.Platform,
		notifier:        e.Notifier,
		reactor:         e.Reactor,
		sync:            e.Synchronizer,
		confirmations:   e.Confirmations,
		archiver:        deps.Archiver,
		defaultQuestExp: opts.DefaultQuestExp,
		maxQuestExp:     opts.MaxQuestExp,
		confirmTimeout:  opts.ConfirmTimeout,
	}
	e.Leaderboard = &Leaderboard{
		store:      deps.Store,
		configs:    deps.Configs,
		platform:   deps.Platform,
		aggregator: e.Aggregator,
		levels:     opts.Levels,
	}
	return e
}
