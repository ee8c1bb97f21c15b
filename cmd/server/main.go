package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/fvdveen/townlife/internal/config"
	"github.com/fvdveen/townlife/internal/engine"
	"github.com/fvdveen/townlife/internal/llm"
	"github.com/fvdveen/townlife/internal/llm/openai"
	"github.com/fvdveen/townlife/internal/logging"
	"github.com/fvdveen/townlife/internal/store"
)

func main() {
	conf, err := config.LoadEnv()
	if err != nil {
		panic(fmt.Sprintf("could not load configuration: %v", err))
	}

	rl, err := logging.NewRunLogs(logging.Config{
		BaseDir:        path.Join(conf.LogDir, conf.SimulationName),
		AlsoToStderr:   true,
		EnableDebugLog: true,
	})
	if err != nil {
		panic(fmt.Sprintf("could not start logger: %v", err))
	}
	defer func() { _ = rl.Close() }()
	defer logging.RecoverAndLog(rl.Log, rl.Sync)

	roster, err := config.Load(conf.DataDir)
	if err != nil {
		panic(fmt.Sprintf("could not load simulation bundles: %v", err))
	}

	clientOpts := []openai.ClientOpt{openai.WithAPIKey(conf.TextModelKey), openai.WithLogger(rl.Log)}
	if conf.TextModelURL != "" {
		clientOpts = append(clientOpts, openai.WithURL(conf.TextModelURL))
	}
	if conf.TextModel != "" {
		clientOpts = append(clientOpts, openai.WithModel(conf.TextModel))
	}
	var llmClient llm.Client = openai.New(clientOpts...)

	var st store.Store
	if conf.StorePath != "" {
		sqlStore, err := store.OpenSQL(conf.StorePath)
		if err != nil {
			panic(fmt.Sprintf("could not open state store: %v", err))
		}
		sqlStore.SetLogger(rl.Log)
		st = sqlStore
		defer func() { _ = st.Close() }()
	} else {
		rl.Log.Warn("no STORE_PATH configured, running with an in-memory store that does not survive a restart")
		st = store.NewMemoryStore()
	}

	sim, err := engine.New(engine.Deps{
		Log:           rl.Log,
		Roster:        roster,
		Store:         st,
		LLM:           llmClient,
		MovementSpeed: roster.World.MovementSpeed,
		DecayRates:    roster.World.DecayRates,
		SaveInterval:  secondsOrDefault(roster.World.SaveIntervalS, conf.SaveIntervalS),
	})
	if err != nil {
		panic(fmt.Sprintf("could not construct engine: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sim.Bootstrap(ctx); err != nil {
		panic(fmt.Sprintf("could not bootstrap simulation state: %v", err))
	}

	rl.Log.Info("townlife_starting", "simulation_name", conf.SimulationName)
	if err := sim.Run(ctx); err != nil {
		rl.Log.Error("townlife_run_failed", "err", err)
	}
}

func secondsOrDefault(bundleSeconds, envSeconds int) time.Duration {
	s := bundleSeconds
	if s <= 0 {
		s = envSeconds
	}
	if s <= 0 {
		s = 30
	}
	return time.Duration(s) * time.Second
}
