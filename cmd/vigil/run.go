// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/vigil/internal/version"
	"github.com/teradata-labs/vigil/pkg/ack"
	"github.com/teradata-labs/vigil/pkg/bus"
	"github.com/teradata-labs/vigil/pkg/channel"
	"github.com/teradata-labs/vigil/pkg/config"
	"github.com/teradata-labs/vigil/pkg/detect"
	"github.com/teradata-labs/vigil/pkg/fabric"
	"github.com/teradata-labs/vigil/pkg/filter"
	"github.com/teradata-labs/vigil/pkg/heartbeat"
	"github.com/teradata-labs/vigil/pkg/llm"
	"github.com/teradata-labs/vigil/pkg/neuron"
	"github.com/teradata-labs/vigil/pkg/observability"
	"github.com/teradata-labs/vigil/pkg/pipeline"
	"github.com/teradata-labs/vigil/pkg/plugin"
	"github.com/teradata-labs/vigil/pkg/schedule"
	"github.com/teradata-labs/vigil/pkg/state"
	"github.com/teradata-labs/vigil/pkg/storage"
	"github.com/teradata-labs/vigil/pkg/tool"
)

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(), nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := viper.GetString("logging.level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("vigil_starting",
		zap.String("version", version.Get()),
		zap.String("agent", cfg.Identity.Name),
		zap.String("data_path", cfg.DataPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", cfg.DataPath, err)
	}

	// Persistence.
	store, err := storage.NewSQLiteStore(filepath.Join(cfg.DataPath, "vigil.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = store.Close() }()

	metrics := observability.NewMetrics()
	signalBus := bus.New(bus.DefaultCapacity, metrics, logger)
	scheduler := schedule.NewRunner(schedule.NewStore(store), logger)
	acks := ack.NewRegistry(ack.DefaultMaxDeferral, metrics, logger)
	memories := storage.NewMemories(store)

	// Agent state.
	machine := state.NewMachine(cfg.Identity, state.NewEnergyModel(state.EnergyConfig{}), cfg.MachineConfig(), metrics, logger)
	seedInitialState(machine, cfg.InitialState)

	// Senses.
	neurons := neuron.NewRegistry(metrics, logger)
	for _, n := range []neuron.Neuron{
		neuron.NewSocialDebtNeuron(),
		neuron.NewEnergyNeuron(),
		neuron.NewContactUrgeNeuron(),
		neuron.NewTimeOfDayNeuron(),
		neuron.NewHourChangedNeuron(),
		neuron.NewThoughtPressureNeuron(),
	} {
		if err := neurons.Register(n); err != nil {
			return fmt.Errorf("failed to register neuron: %w", err)
		}
	}
	filters := filter.NewChain(metrics, logger)
	for _, f := range []filter.Filter{
		filter.NewAlertnessDamping(),
		filter.NewTickDedupe(),
	} {
		if err := filters.Register(f); err != nil {
			return fmt.Errorf("failed to register filter: %w", err)
		}
	}

	// Reasoning.
	limiter := llm.NewRateLimiter(cfg.RateLimiterConfig(), logger)
	counter := llm.NewCounter()
	provider := llm.NewOpenRouterClient(cfg.OpenRouterConfig(), limiter, counter, logger)

	// Channels.
	channels := channel.NewRegistry(logger)
	if viper.GetBool("channel.console") {
		console := newConsoleChannel(signalBus, logger)
		if err := channels.Register(console); err != nil {
			return fmt.Errorf("failed to register console channel: %w", err)
		}
		if cfg.Channel.Default == "" {
			cfg.Channel.Default = console.Name()
		}
		if cfg.Channel.PrimaryTarget == "" {
			cfg.Channel.PrimaryTarget = consoleTarget
		}
	}

	// Tools.
	tools := tool.NewRegistry()
	tool.RegisterBuiltins(tools, acks, memories, scheduler)

	// Pipeline stages.
	cogConfig := pipeline.DefaultCognitionConfig()
	cogConfig.DefaultChannel = cfg.Channel.Default
	cogConfig.PrimaryTarget = cfg.Channel.PrimaryTarget
	cognition := pipeline.NewCognition(provider, counter, tools, signalBus, machine, cogConfig, metrics, logger)

	motorConfig := pipeline.DefaultMotorConfig()
	motorConfig.DefaultChannel = cfg.Channel.Default
	motor := pipeline.NewMotor(machine, channels, scheduler, tools, acks, fabric.NewManager(fabric.DefaultCircuitBreakerConfig("channel")), signalBus, motorConfig, metrics, logger)

	autonomic := pipeline.NewAutonomic(neurons, filters, signalBus, logger)
	aggConfig := pipeline.DefaultAggregationConfig()
	aggConfig.ContactBaseThreshold = cfg.Contact.BaseThreshold
	aggregation := pipeline.NewAggregation(aggConfig, acks, detect.NewChangeDetector(detect.DefaultChangeConfig()), detect.NewPatternDetector(detect.DefaultPatternConfig(), logger), metrics, logger)

	// Plugins.
	host := plugin.NewHost(plugin.HostConfig{
		Store:     store,
		Scheduler: scheduler,
		Sink:      signalBus,
		Neurons:   neurons,
		Filters:   filters,
		Tools:     tools,
		Timezone:  cfg.Location(),
		Logger:    logger,
	})
	defer host.Close()
	manifestDir := filepath.Join(cfg.DataPath, "plugins")
	if err := os.MkdirAll(manifestDir, 0o755); err == nil {
		if werr := host.WatchManifests(manifestDir); werr != nil {
			logger.Warn("manifest_watch_failed", zap.Error(werr))
		}
	}
	defer func() {
		deactivateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		host.DeactivateAll(deactivateCtx)
	}()

	if err := channels.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	hb := heartbeat.New(machine, autonomic, aggregation, cognition, motor, signalBus, scheduler, channels, heartbeat.DefaultConfig(), metrics, logger)
	return hb.Run(ctx)
}

// seedInitialState writes the configured boot values over the machine's
// built-in defaults. Zero values mean "keep the default".
func seedInitialState(machine *state.Machine, initial config.InitialState) {
	apply := func(key string, v float64) {
		if v <= 0 {
			return
		}
		_ = machine.ApplyUpdate(key, &v, nil, false)
	}
	apply("energy", initial.Energy)
	apply("socialDebt", initial.SocialDebt)
	apply("taskPressure", initial.TaskPressure)
	apply("curiosity", initial.Curiosity)
}

// buildLogger creates the production logger, stack traces only for ERROR.
func buildLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	logLevel := zap.InfoLevel
	if level != "" {
		if err := logLevel.UnmarshalText([]byte(level)); err != nil {
			log.Printf("Invalid log level %q, using INFO: %v", level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)
	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}
