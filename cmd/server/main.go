package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ai-practice/internal/analytics"
	"ai-practice/internal/config"
	"ai-practice/internal/llm"
	"ai-practice/internal/practice"
	"ai-practice/internal/scheduler"
	"ai-practice/internal/server"
	"ai-practice/internal/sessionlog"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	factory := llm.NewFactory(cfg)
	llmClient, err := factory.CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	store := sessionlog.New(cfg.LogsDir, cfg.LogVersion)

	svc, err := practice.New(llmClient, store, cfg.GeneratePromptPath, cfg.VerifyPromptPath)
	if err != nil {
		log.Fatalf("failed to init practice service: %v", err)
	}

	var sched *scheduler.Scheduler
	if cfg.StatsReportEnabled {
		sched = scheduler.New()
		sched.SetReportFunction(func(_ context.Context) error {
			stats, err := analytics.AnalyzeDaily(store, time.Now().UTC())
			if err != nil {
				return err
			}
			log.Printf("📊 %s", stats.Summary())
			return nil
		})
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
	}

	srv := server.New(svc, store, cfg.Host, cfg.Port)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("🛑 Shutting down")
		if sched != nil {
			sched.Stop()
		}
		if err := srv.Stop(); err != nil {
			log.Printf("failed to stop server: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
}
