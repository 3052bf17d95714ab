package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rustyeddy/volaccel/broker"
	"github.com/rustyeddy/volaccel/broker/kraken"
	"github.com/rustyeddy/volaccel/broker/paper"
	"github.com/rustyeddy/volaccel/journal"
	"github.com/rustyeddy/volaccel/live"
	"github.com/rustyeddy/volaccel/notify"
	"github.com/rustyeddy/volaccel/pkg/logger"
	"github.com/rustyeddy/volaccel/state"
)

func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return ossignal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// newBroker returns the configured broker. Paper mode trades locally on
// Kraken public market data.
func newBroker() (broker.Broker, error) {
	client, err := kraken.New(cfg.Kraken, log)
	if err != nil {
		return nil, err
	}
	switch cfg.Live.Mode {
	case "kraken":
		return client, nil
	case "paper":
		return paper.New(client, cfg.Live.InitialCapital), nil
	}
	return nil, fmt.Errorf("unknown live mode %q", cfg.Live.Mode)
}

// newNotifier always logs and adds Telegram when configured.
func newNotifier() (notify.Notifier, error) {
	n := notify.Multi{notify.NewLog(log)}
	tg, err := notify.NewTelegram(cfg.Telegram, log)
	switch {
	case errors.Is(err, notify.ErrTelegramDisabled):
		log.Info("Telegram notifications disabled")
	case err != nil:
		return nil, err
	default:
		n = append(n, tg)
	}
	return n, nil
}

// newRunner wires a live runner. The returned close func releases the
// journal.
func newRunner() (*live.Runner, func(), error) {
	b, err := newBroker()
	if err != nil {
		return nil, nil, err
	}
	store := state.NewStore(cfg.Live.StatePath, cfg.Live.InitialCapital)
	r, err := live.New(cfg.Live, cfg.Strategy, b, store,
		log.With(logger.StringField("mode", cfg.Live.Mode)))
	if err != nil {
		return nil, nil, err
	}
	if r.Notifier, err = newNotifier(); err != nil {
		return nil, nil, err
	}

	closeFn := func() {}
	if cfg.Journal.DBPath != "" {
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		r.Journal = j
		closeFn = func() { _ = j.Close() }
	}
	return r, closeFn, nil
}

func openJournal(path string) (*journal.SQLite, error) {
	if path == "" {
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, errors.New("no journal: pass --db or set journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}
