package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lzcjsyr/AIGC-Video/application/services"
	"github.com/lzcjsyr/AIGC-Video/config"
	"github.com/lzcjsyr/AIGC-Video/infrastructure/adapters"
	"github.com/lzcjsyr/AIGC-Video/infrastructure/gin_interface/controllers"
	"github.com/lzcjsyr/AIGC-Video/middleware"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

const mediaRetryBaseBackoff = 2 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, relying on the environment")
	}

	llmConfig, err := config.GetLLMConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load llm config")
	}
	imageConfig, err := config.GetImageConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load image config")
	}
	ttsConfig, err := config.GetTTSConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tts config")
	}
	pipelineConfig, err := config.GetPipelineConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load pipeline config")
	}

	zeroLogger := adapters.NewZerologWrapper()

	panicHandler := func(p interface{}) {
		zeroLogger.Error(fmt.Errorf("%v", p), "panic in worker pool")
	}
	workerPool, err := ants.NewPool(120, ants.WithPanicHandler(panicHandler))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}
	defer workerPool.Release()

	contentFetcher := adapters.NewContentFetcher(zeroLogger)

	registry := adapters.NewProviderRegistry()
	registry.RegisterTextGenerator(llmConfig.Model,
		adapters.NewTextGenerator(llmConfig, zeroLogger))
	registry.RegisterImageGenerator(imageConfig.Model,
		adapters.NewImageGenerator(contentFetcher, imageConfig, zeroLogger))
	registry.RegisterSpeechSynthesizer(ttsConfig.Voice,
		adapters.NewSpeechSynthesizer(contentFetcher, ttsConfig, zeroLogger))

	artifactStore := adapters.NewArtifactStore(zeroLogger)
	invalidator := adapters.NewArtifactInvalidator(zeroLogger)
	composer := adapters.NewFFmpegVideoComposer(zeroLogger)

	coordinator := services.NewMediaGenerationCoordinator(
		zeroLogger, artifactStore, registry, workerPool,
		pipelineConfig.MediaConcurrency, pipelineConfig.MaxAttempts, mediaRetryBaseBackoff)

	sequencer := services.NewStepSequencer(
		zeroLogger, artifactStore, invalidator, registry, coordinator, composer, pipelineConfig)

	router := gin.Default()
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Fatal().Err(err).Msg("failed to set trusted proxies")
	}

	if jwksURL := os.Getenv("JWKS_URL"); jwksURL != "" {
		authHandler, err := middleware.NewAuthHandler(jwksURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create auth handler")
		}
		router.Use(authHandler.AuthMiddleware())
	}

	controller := controllers.NewPipelineController(
		zeroLogger, sequencer, artifactStore, workerPool, pipelineConfig.WorkspaceRoot)
	controller.RegisterRoutes(router)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
