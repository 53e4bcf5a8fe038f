// Package main provides the entry point for the KanjiLens server
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/kanjilens/kanjilens/internal/analyze"
	"github.com/kanjilens/kanjilens/internal/api"
	"github.com/kanjilens/kanjilens/internal/artifact"
	"github.com/kanjilens/kanjilens/internal/enrich"
	"github.com/kanjilens/kanjilens/internal/layout"
	"github.com/kanjilens/kanjilens/internal/pipeline"
	"github.com/kanjilens/kanjilens/pkg/config"
	"github.com/kanjilens/kanjilens/pkg/llm"
	"github.com/kanjilens/kanjilens/pkg/logging"
	"github.com/kanjilens/kanjilens/pkg/nlp"
	"github.com/kanjilens/kanjilens/pkg/ocr"
	"github.com/kanjilens/kanjilens/pkg/render"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.SetupLogger(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	// Tokenizer construction loads the analyzer dictionary into memory;
	// it is shared read-only across all requests.
	tokenizer, err := nlp.NewKagomeTokenizer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build tokenizer")
	}

	dictionary := nlp.NewIndexedDictionary()
	if cfg.NLP.DictionaryPath != "" {
		if err := dictionary.Load(cfg.NLP.DictionaryPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.NLP.DictionaryPath).
				Msg("Dictionary unavailable, vocabulary will have no glosses")
		}
	}
	defer dictionary.Close()

	llmClient, err := llm.NewChatClient(cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}

	var annotator pipeline.Annotator
	fontPath, err := cfg.Render.ResolveFontPath()
	if err != nil {
		log.Warn().Err(err).Msg("No annotation font available, annotated images disabled")
	} else {
		a, err := render.NewAnnotator(fontPath, cfg.Render.FontSize)
		if err != nil {
			log.Warn().Err(err).Str("font", fontPath).Msg("Failed to load annotation font, annotated images disabled")
		} else {
			log.Info().Str("font", fontPath).Msg("Annotation font loaded")
			annotator = a
		}
	}

	orchestrator := pipeline.NewOrchestrator(
		cfg.Pipeline,
		ocr.NewEngine(cfg.OCR.Language, cfg.OCR.MinConfidence),
		enrich.New(tokenizer, nlp.NewKanaTransliterator(), dictionary, cfg.Pipeline.EnrichWorkers, cfg.Pipeline.MaxGlosses),
		analyze.New(llmClient),
		layout.New(cfg.Layout),
		annotator,
	)

	artifacts, err := artifact.NewStore(cfg.Artifact)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize artifact store")
	}
	artifacts.Sweep()

	app := fiber.New(fiber.Config{
		AppName:      "KanjiLens API",
		BodyLimit:    int(cfg.Server.MaxRequestSize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	handlers := api.NewHandlers(orchestrator, artifacts, cfg.Server.MaxRequestSize)
	app.Get("/", handlers.Root)
	app.Get("/health", handlers.Health)
	app.Post("/process", handlers.Process)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("KanjiLens server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
