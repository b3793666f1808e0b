package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/japaniel/rtkstories/pkg/ankiconnect"
	"github.com/japaniel/rtkstories/pkg/config"
	"github.com/japaniel/rtkstories/pkg/db"
	"github.com/japaniel/rtkstories/pkg/logging"
	"github.com/japaniel/rtkstories/pkg/stories"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: cfg.Logging.Level})
			logger.Warn("invalid logging format, using default", logging.Error(err))
		}
		c.logger = logger
	})
	return c.logger
}

// deckName returns the deck from the command line, falling back to the
// configured one.
func (c *commandContext) deckName(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	if cfg.Anki.Deck == "" {
		return "", errors.New("no deck given: pass one as an argument or set anki.deck in the config")
	}
	return cfg.Anki.Deck, nil
}

func (c *commandContext) ankiClient() (*ankiconnect.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return ankiconnect.New(cfg.Anki.URL,
		ankiconnect.WithHTTPClient(&http.Client{Timeout: cfg.AnkiTimeout()}),
		ankiconnect.WithLogger(c.log()),
	), nil
}

func (c *commandContext) fetcher() (*stories.Fetcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return stories.NewFetcher(cfg.Reference.BaseURL, &http.Client{Timeout: cfg.ReferenceTimeout()}), nil
}

// withStore opens the configured bundle store and closes it once fn returns.
func (c *commandContext) withStore(fn func(stories.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	switch cfg.Cache.Backend {
	case config.BackendSQLite:
		conn, err := db.Open(cfg.Cache.SQLitePath)
		if err != nil {
			return fmt.Errorf("open story cache: %w", err)
		}
		defer conn.Close()
		return fn(db.NewBundleStore(conn, c.log()))
	default:
		return fn(stories.NewDirStore(cfg.Cache.Dir, c.log()))
	}
}

// withCache wraps the configured store in a Cache for the duration of fn.
func (c *commandContext) withCache(fn func(*stories.Cache) error) error {
	fetcher, err := c.fetcher()
	if err != nil {
		return err
	}
	return c.withStore(func(store stories.Store) error {
		return fn(stories.NewCache(store, fetcher, c.log()))
	})
}
