// Package cli implements the citysim command tree.
package cli

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/hession/citysim/internal/config"
	"github.com/hession/citysim/internal/generator"
	"github.com/hession/citysim/internal/graph"
	"github.com/hession/citysim/internal/llm"
	"github.com/hession/citysim/internal/logger"
	"github.com/hession/citysim/internal/population"
	"github.com/hession/citysim/internal/simulator"
	"github.com/hession/citysim/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// App holds what a command needs once configuration is loaded
type App struct {
	cfg   *config.Config
	store store.Store
	gen   generator.Generator
	log   *logger.Logger
	out   io.Writer
	rnd   *rand.Rand

	// injected by tests
	genOverride generator.Generator
}

// Option configures the command tree
type Option func(*App)

// WithGenerator replaces the LLM-backed generator
func WithGenerator(gen generator.Generator) Option {
	return func(a *App) { a.genOverride = gen }
}

// WithOutput redirects command output
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

func newApp(opts ...Option) *App {
	a := &App{out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// loadConfig reads config and starts the logger
func (a *App) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.Console,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.log = logger.Named("cli")
	logger.Info("citysim %s starting, storage=%s model=%s", Version, cfg.Storage.Backend, cfg.Model.Model)

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.rnd = rand.New(rand.NewSource(seed))
	return nil
}

// open loads config, the store and the generator
func (a *App) open() error {
	if err := a.loadConfig(); err != nil {
		return err
	}
	if a.store == nil {
		st, err := store.Open(resolveStorage(a.cfg.Storage, config.GetConfigDir()), logger.Named("store"))
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		a.store = st
	}
	if a.gen == nil {
		gen, err := a.newGenerator()
		if err != nil {
			return err
		}
		a.gen = gen
	}
	return nil
}

func (a *App) newGenerator() (generator.Generator, error) {
	if a.genOverride != nil {
		return a.genOverride, nil
	}
	if !a.cfg.IsAPIKeyConfigured() {
		return nil, fmt.Errorf("API key not configured: set %s or add it to .secrets", config.EnvOpenAIAPIKey)
	}
	prompts, err := config.LoadPromptConfig()
	if err != nil {
		return nil, err
	}
	client := llm.New(
		a.cfg.Model.APIKey,
		a.cfg.Model.BaseURL,
		a.cfg.Model.Model,
		a.cfg.Model.Temperature,
		a.cfg.Model.MaxTokens,
	)
	return generator.NewLLM(client, prompts, a.cfg.Model.MaxRetries, logger.Named("generator")), nil
}

// close releases the store
func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error("close store: %v", err)
		}
		a.store = nil
	}
}

func (a *App) timeout() time.Duration {
	return a.cfg.Model.Timeout()
}

func (a *App) graph() *graph.Graph {
	return graph.New(a.store, a.gen,
		graph.WithRand(a.rnd),
		graph.WithTimeout(a.timeout()),
		graph.WithLogger(logger.Named("graph")))
}

func (a *App) simulator(opts ...simulator.Option) *simulator.Simulator {
	base := []simulator.Option{
		simulator.WithRand(a.rnd),
		simulator.WithTimeout(a.timeout()),
		simulator.WithLogger(logger.Named("simulator")),
		simulator.WithGraph(a.graph()),
	}
	return simulator.New(a.cfg.Simulation, a.store, a.gen, append(base, opts...)...)
}

func (a *App) city(opts ...simulator.Option) *population.City {
	b := population.NewBuilder(a.store, a.gen,
		population.WithRand(a.rnd),
		population.WithTimeout(a.timeout()),
		population.WithNameRetries(a.cfg.Population.NameRetries),
		population.WithLogger(logger.Named("population")))
	return population.NewCity(a.cfg.Population, a.store, b, a.graph(), a.simulator(opts...), logger.Named("population"))
}

// resolveStorage anchors relative storage paths at base
func resolveStorage(cfg config.StorageConfig, base string) config.StorageConfig {
	if base == "" {
		return cfg
	}
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(base, cfg.DataDir)
	}
	if cfg.DBPath != "" && !filepath.IsAbs(cfg.DBPath) {
		cfg.DBPath = filepath.Join(base, cfg.DBPath)
	}
	return cfg
}
