package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hauswart/hauswart/ai/agents/pipeline"
	"github.com/hauswart/hauswart/ai/core/llm"
	"github.com/hauswart/hauswart/ai/hass"
	"github.com/hauswart/hauswart/ai/memory"
	"github.com/hauswart/hauswart/ai/metrics"
	"github.com/hauswart/hauswart/internal/profile"
	"github.com/hauswart/hauswart/internal/version"
	"github.com/hauswart/hauswart/server"
)

var rootCmd = &cobra.Command{
	Use:   "hauswart",
	Short: `A voice assistant bridge between natural language and your smart home, powered by a local LLM.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory; absence is fine.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Version: version.Version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		setupLogger(instanceProfile)

		return run(instanceProfile)
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8230)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8230, "port of server")

	for _, flag := range []string{"mode", "addr", "port"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("hauswart")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func run(p *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	newAgentLLM := func(baseURL string) (llm.Service, error) {
		return llm.NewService(&llm.Config{
			BaseURL:     baseURL,
			APIKey:      p.LLMAPIKey,
			Model:       p.LLMModel,
			Temperature: p.LLMTemperature,
			MaxTokens:   p.LLMMaxTokens,
			Timeout:     p.LLMTimeout,
		})
	}

	plannerLLM, err := newAgentLLM(p.PlannerBaseURL())
	if err != nil {
		return err
	}
	selectorLLM, err := newAgentLLM(p.SelectorBaseURL())
	if err != nil {
		return err
	}
	summariserLLM, err := newAgentLLM(p.SummariserBaseURL())
	if err != nil {
		return err
	}

	home := hass.NewClient(p.HomeAssistantURL, p.HomeAssistantToken)

	memoryStore, err := memory.NewStore(p.MemoryDSN)
	if err != nil {
		return err
	}
	defer memoryStore.Close()

	collector := metrics.NewCollector(nil)

	assistant := pipeline.New(plannerLLM, selectorLLM, summariserLLM, home,
		pipeline.WithMemory(memoryStore),
		pipeline.WithMetrics(collector))

	httpServer := server.New(p, assistant, memoryStore, collector)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(ctx)
	}()

	printGreetings(p)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("main: shutting down")
		return httpServer.Shutdown(context.Background())
	}
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Hauswart %s started successfully!\n", version.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Home Assistant: %s\n", p.HomeAssistantURL)
	fmt.Printf("LLM server: %s\n", p.LLMBaseURL)
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("main: fatal", "error", err)
		os.Exit(1)
	}
}
