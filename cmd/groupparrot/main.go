package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/groupparrot/adapter"
	"github.com/hrygo/groupparrot/adapter/telegram"
	"github.com/hrygo/groupparrot/bot/metrics"
	"github.com/hrygo/groupparrot/bot/orchestrator"
	"github.com/hrygo/groupparrot/bot/pipeline"
	"github.com/hrygo/groupparrot/internal/profile"
	"github.com/hrygo/groupparrot/internal/version"
	"github.com/hrygo/groupparrot/llm"
	"github.com/hrygo/groupparrot/server"
)

var rootCmd = &cobra.Command{
	Use:   "groupparrot",
	Short: `A group-chat companion bot that decides when to speak, types like a human, and backs off when the room is busy.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.String(),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}
		return run(instanceProfile)
	},
}

func run(p *profile.Profile) error {
	logger := slog.Default()

	var chat pipeline.ChatService
	if p.IsAIEnabled() {
		svc, err := llm.NewService(&llm.Config{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
			Timeout:  p.LLMTimeout,
		}, logger)
		if err != nil {
			return err
		}
		go svc.Warmup(context.Background())
		chat = svc
	} else {
		logger.Warn("no LLM api key configured, replying with plain receipts only")
	}

	var sender pipeline.Sender
	var source adapter.Source
	if p.Channel == "telegram" {
		channel, err := telegram.New(telegram.Config{BotToken: p.TelegramToken}, logger)
		if err != nil {
			return err
		}
		sender = adapter.NewRateLimitedSender(channel, p.SendRatePerSecond, p.SendBurst)
		source = channel
	}

	col := metrics.NewCollector(nil)
	persona := p.Persona()
	engine := orchestrator.New(orchestrator.Deps{
		Config:  &p.Bot,
		Persona: persona,
		Sender:  sender,
		Chat:    chat,
		Metrics: col,
		Logger:  logger,
	})
	engine.SetCommands(orchestrator.NewCommands(persona, sender, engine.Stats(), engine.Energy(), logger))

	addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
	debugServer := server.New(engine, addr, logger)

	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return debugServer.Start()
	})
	if source != nil {
		g.Go(func() error {
			err := source.Run(ctx, engine)
			if err != nil && ctx.Err() != nil {
				return nil // shutdown requested
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		engine.Shutdown(shutdownCtx)
		return debugServer.Shutdown(shutdownCtx)
	})

	printGreetings(p, addr)
	return g.Wait()
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the debug server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of the debug server")

	for _, name := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("groupparrot")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile, addr string) {
	fmt.Printf("GroupParrot %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
	}
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Channel: %s\n", p.Channel)
	if !p.IsAIEnabled() {
		fmt.Println("LLM: disabled (set GROUPPARROT_LLM_API_KEY to enable)")
	} else {
		fmt.Printf("LLM: %s/%s\n", p.LLMProvider, p.LLMModel)
	}
	fmt.Printf("Debug server: http://%s\n", addr)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
