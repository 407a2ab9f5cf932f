package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/config"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/domain/conformance"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/domain/records"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/hydrate"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/igloader"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/auth"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/fhir"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/platform/middleware"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/pod"
	"github.com/GIDSOpenStandaarden/welldata-ephemeral-fhir-service/internal/session"
)

const (
	serverName    = "WellData Ephemeral FHIR Server"
	serverVersion = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "welldata-server",
		Short: "Ephemeral token-scoped FHIR facade for Solid pods",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the FHIR server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// server bundles the assembled application for serving and for tests.
type server struct {
	echo     *echo.Echo
	sessions *session.Store
}

func buildServer(cfg *config.Config, logger zerolog.Logger) (*server, error) {
	sessions := session.NewStore(logger)
	podClient := pod.NewClient(cfg.SolidEnabled, cfg.SolidContainerPath, cfg.PodTimeout, logger)

	// Session-scoped providers
	providers := map[string]*records.Provider{}
	for _, rt := range fhir.UserDataTypes {
		providers[rt] = records.NewProvider(rt, sessions, podClient, logger)
	}

	// Static conformance registries, loaded once at startup
	questionnaires := conformance.NewRegistry(fhir.TypeQuestionnaire, logger)
	profiles := conformance.NewRegistry(fhir.TypeStructureDefinition, logger)
	guides := conformance.NewRegistry(fhir.TypeImplementationGuide, logger)

	devData := hydrate.NewDevDataLoader(cfg.TestdataPath)
	if qs, err := devData.Load(fhir.TypeQuestionnaire); err != nil {
		logger.Warn().Err(err).Msg("failed to load questionnaire definitions")
	} else {
		for _, q := range qs {
			questionnaires.Store(q)
		}
		logger.Info().Int("count", len(qs)).Msg("loaded questionnaire definitions")
	}

	igLoader := igloader.New(logger)
	if err := igLoader.Load(context.Background(), cfg.IGPackageURL, profiles, guides); err != nil {
		logger.Error().Err(err).Msg("failed to load IG package")
	}

	hydrator := hydrate.New(podClient, providers, devData, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"name":    serverName,
			"version": serverVersion,
		})
	})

	fhirGroup := e.Group("/fhir")
	fhirGroup.Use(auth.AccessTokenMiddleware(sessions, hydrator.LoadSession, logger))

	// Dynamic CapabilityStatement
	capBuilder := fhir.NewCapabilityBuilder("http://localhost:"+cfg.Port+"/fhir", serverName, serverVersion)
	capBuilder.AddResource(fhir.TypePatient, fhir.DefaultInteractions(), []fhir.SearchParam{
		{Name: "identifier", Type: "token"},
		{Name: "name", Type: "string"},
		{Name: "family", Type: "string"},
		{Name: "given", Type: "string"},
		{Name: "birthdate", Type: "date"},
	})
	capBuilder.AddResource(fhir.TypeObservation, fhir.DefaultInteractions(), []fhir.SearchParam{
		{Name: "subject", Type: "reference"},
		{Name: "code", Type: "token"},
		{Name: "date", Type: "date"},
		{Name: "status", Type: "token"},
		{Name: "category", Type: "token"},
	})
	capBuilder.AddResource(fhir.TypeQuestionnaireResponse, fhir.DefaultInteractions(), []fhir.SearchParam{
		{Name: "subject", Type: "reference"},
		{Name: "questionnaire", Type: "reference"},
		{Name: "status", Type: "token"},
		{Name: "authored", Type: "date"},
		{Name: "author", Type: "reference"},
	})
	capBuilder.AddResource(fhir.TypeQuestionnaire, fhir.ReadOnlyInteractions(), []fhir.SearchParam{
		{Name: "url", Type: "uri"},
		{Name: "identifier", Type: "token"},
		{Name: "name", Type: "string"},
		{Name: "title", Type: "string"},
		{Name: "status", Type: "token"},
		{Name: "_id", Type: "token"},
	})
	capBuilder.AddResource(fhir.TypeStructureDefinition, fhir.ReadOnlyInteractions(), []fhir.SearchParam{
		{Name: "url", Type: "uri"},
		{Name: "name", Type: "string"},
		{Name: "type", Type: "token"},
		{Name: "status", Type: "token"},
		{Name: "_id", Type: "token"},
	})
	capBuilder.AddResource(fhir.TypeImplementationGuide, fhir.ReadOnlyInteractions(), []fhir.SearchParam{
		{Name: "url", Type: "uri"},
		{Name: "name", Type: "string"},
		{Name: "status", Type: "token"},
		{Name: "_id", Type: "token"},
	})

	fhirGroup.GET("/metadata", func(c echo.Context) error {
		return c.JSON(http.StatusOK, capBuilder.Build())
	})

	recordsHandler := records.NewHandler(
		providers[fhir.TypePatient],
		providers[fhir.TypeObservation],
		providers[fhir.TypeQuestionnaireResponse],
	)
	recordsHandler.RegisterRoutes(fhirGroup)

	conformanceHandler := conformance.NewHandler(questionnaires, profiles, guides)
	conformanceHandler.RegisterRoutes(fhirGroup)

	return &server{echo: e, sessions: sessions}, nil
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	srv, err := buildServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	srv.sessions.StartSweeper(sweepCtx, cfg.SweepInterval)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.echo.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.echo.Shutdown(shutdownCtx)
}
