package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/formdeck/formdeck/bridge"
	"github.com/formdeck/formdeck/callback"
	"github.com/formdeck/formdeck/forms"
	"github.com/formdeck/formdeck/internal/config"
	"github.com/formdeck/formdeck/internal/safeio"
	"github.com/formdeck/formdeck/oauthflow"
	"github.com/formdeck/formdeck/registry"
	"github.com/formdeck/formdeck/transport"
)

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			exitCode = 1
		}
	}()

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	safe := setupLogging(cfg)
	displayAppname(cfg.GetAppName())

	if cfg.Port == "" || cfg.RegisterEvent == "" {
		log.Error().Msg("missing -port/-registerEvent; this binary is launched by the Stream Deck host")
		return 1
	}

	identity := cfg.PluginUUID
	if identity == "" {
		// Dev launches without the host-assigned identity.
		identity = uuid.NewString()
	}

	conn, err := transport.New(
		cfg.Port,
		identity,
		cfg.RegisterEvent,
		cfg.Info,
		transport.WithLogger(log.Logger),
		// Once the host tears the socket down, its log pipe may be gone
		// too; stop writing before the exit path runs.
		transport.WithTerminateHook(safe.Shutdown),
	)
	if err != nil {
		log.Error().Err(err).Msg("transport setup failed")
		return 1
	}

	reg := registry.New()
	listener := callback.New(callback.WithLogger(log.Logger))
	engine, err := oauthflow.NewEngine(listener, oauthflow.WithLogger(log.Logger))
	if err != nil {
		log.Error().Err(err).Msg("oauth engine setup failed")
		return 1
	}
	submitter := forms.NewSubmitter(engine, forms.WithLogger(log.Logger))

	b, err := bridge.New(reg, conn, engine, listener, submitter,
		bridge.WithLogger(log.Logger),
		bridge.WithURLOpener(oauthflow.OpenBrowser),
	)
	if err != nil {
		log.Error().Err(err).Msg("bridge setup failed")
		return 1
	}

	conn.OnMessage(b.Router().HandleRaw)

	if err := conn.Connect(); err != nil {
		log.Error().Err(err).Msg("could not reach the Stream Deck host")
		return conn.ExitCode()
	}

	if err := b.Router().GetGlobalSettings(identity); err != nil {
		log.Warn().Err(err).Msg("global settings request not delivered")
	}

	<-conn.Done()
	listener.Stop()
	return conn.ExitCode()
}

func setupLogging(cfg *config.Config) *safeio.Writer {
	safe := safeio.NewWriter(os.Stderr)
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = zerolog.New(safe).Level(level).With().Timestamp().Logger()
	return safe
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
