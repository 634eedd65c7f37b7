package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/app"
	"ledgerbot/internal/config"
	"ledgerbot/internal/discord"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/imagestore"
	"ledgerbot/internal/line"
	"ledgerbot/internal/notify"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/resolve"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store := draft.NewStore()
	gateway := pipeline.New(cfg.PipelineURL, cfg.CallbackBaseURL, cfg.PipelineTimeout)

	// Verdict markers back the at-most-once delivery guarantee. Redis keeps
	// the guarantee across restarts; memory is enough for a single dev run.
	var marker notify.Marker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for verdict delivery markers")
		redisMarker, err := notify.NewRedisMarker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		marker = redisMarker
	} else {
		log.Printf("Using in-memory verdict delivery markers")
		marker = notify.NewMemoryMarker()
	}
	defer marker.Close()

	var archiver line.ImageArchiver
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		images, err := imagestore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioSecure)
		if err != nil {
			log.Fatalf("image store connection failed: %v", err)
		}
		log.Printf("Archiving receipt images to MinIO bucket %q", cfg.MinioBucket)
		archiver = images
	}

	var (
		prompts  app.PromptRenderer
		resolver app.VerdictResolver
	)
	if strings.TrimSpace(cfg.DiscordToken) != "" {
		dg, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			log.Fatalf("discord session failed: %v", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages

		adapter := discord.New(dg, store, gateway, cfg.EnableWebhookCallbacks)
		discordResolver := resolve.New(discord.NewConversation(dg), marker, marker)
		adapter.SetResolver(discordResolver)

		dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			adapter.HandleInteraction(context.Background(), i)
		})

		if err := dg.Open(); err != nil {
			log.Fatalf("discord connection failed: %v", err)
		}
		defer dg.Close()

		if err := discord.RegisterCommands(dg, cfg.DiscordAppID); err != nil {
			log.Printf("WARNING: command registration failed (will retry on next restart): %v", err)
		}

		prompts = adapter
		resolver = discordResolver
	} else {
		log.Printf("DISCORD_TOKEN not set, Discord surface disabled")
	}

	var (
		lineOCR     app.LineDeliverer
		lineWebhook app.LineWebhook
	)
	if cfg.LineChannelSecret != "" && cfg.LineChannelToken != "" {
		client, err := linebot.New(cfg.LineChannelSecret, cfg.LineChannelToken)
		if err != nil {
			log.Fatalf("line client failed: %v", err)
		}
		adapter := line.New(client, store, gateway, archiver)
		adapter.SetResolver(resolve.New(line.NewConversation(adapter), marker, marker))
		lineOCR = adapter
		lineWebhook = adapter
	} else {
		log.Printf("LINE credentials not set, LINE surface disabled")
	}

	service := app.NewService(store, prompts, resolver, lineOCR, cfg.DefaultChannelID)
	httpServer := app.NewHTTPServer(service, lineWebhook)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	stopSweep := make(chan struct{})
	if cfg.DraftTTL > 0 {
		go func() {
			ticker := time.NewTicker(cfg.DraftTTL)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := store.SweepOlderThan(cfg.DraftTTL); n > 0 {
						log.Printf("swept %d abandoned drafts", n)
					}
				case <-stopSweep:
					return
				}
			}
		}()
	}

	go func() {
		log.Printf("Ledger bot listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopSweep)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
