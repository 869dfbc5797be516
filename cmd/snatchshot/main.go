package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/snatchshot/core/internal/application"
	"github.com/snatchshot/core/internal/config"
	"github.com/snatchshot/core/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("snatchshot", "SnatchShot client core - configuration and backend connectivity tooling")
	configPath := kingpinApp.Flag("config", "Path to KEY = VALUE configuration file").Default(config.DefaultConfigPath).String()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").Default("info").String()

	validateCmd := kingpinApp.Command("validate", "Resolve every recognized key and report all missing mandatory keys at once")

	dumpCmd := kingpinApp.Command("dump", "Print resolved configuration with the source each value came from")
	dumpFormat := dumpCmd.Flag("format", "Output format").Default("yaml").Enum("yaml", "json")
	dumpReveal := dumpCmd.Flag("reveal", "Print secret values instead of redacting them").Bool()

	pingCmd := kingpinApp.Command("ping", "Check database API health")

	listenCmd := kingpinApp.Command("listen", "Connect to the realtime endpoint and log inbound messages until interrupted")

	command := kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	resolver := config.NewDefaultResolver(*configPath)

	switch command {
	case validateCmd.FullCommand():
		if err := runValidate(resolver, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	case dumpCmd.FullCommand():
		if err := runDump(resolver, os.Stdout, *dumpFormat, *dumpReveal); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, err := logging.New(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	settings, err := config.Load(resolver)
	if err != nil {
		logger.Fatal("configuration validation failed", zap.Error(err))
	}

	app, err := application.New(settings, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	ctx, cancel := signalContext()
	defer cancel()

	app.Start(ctx)

	switch command {
	case pingCmd.FullCommand():
		if err := app.API.Health(ctx); err != nil {
			logger.Fatal("database api unreachable", zap.Error(err))
		}
		logger.Info("database api healthy", zap.String("base_url", settings.DatabaseAPIBaseURL))
	case listenCmd.FullCommand():
		if err := runListen(ctx, app, logger); err != nil && ctx.Err() == nil {
			logger.Fatal("realtime listener failed", zap.Error(err))
		}
		logger.Info("listener stopped")
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		cancel()
	}()
	return ctx, cancel
}

// runValidate resolves all recognized keys and reports every missing
// mandatory key together rather than stopping at the first.
func runValidate(resolver *config.Resolver, out io.Writer) error {
	if _, err := config.Load(resolver); err != nil {
		return err
	}
	fmt.Fprintln(out, "configuration ok: all mandatory keys resolved")
	return nil
}

type keyReport struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// runDump prints every recognized key with its resolved value and origin.
// Secrets are redacted unless reveal is set; missing keys are reported
// rather than failing, so dump stays usable on broken deployments.
func runDump(resolver *config.Resolver, out io.Writer, format string, reveal bool) error {
	keys := append(config.MandatoryKeys(), config.KeyDatabaseAPITimeout)

	reports := make([]keyReport, 0, len(keys))
	for _, key := range keys {
		value, origin, ok := resolver.Lookup(key)
		if !ok {
			reports = append(reports, keyReport{Key: key, Value: "(missing)"})
			continue
		}
		if config.IsSecret(key) && !reveal {
			value = "(redacted)"
		}
		reports = append(reports, keyReport{Key: key, Value: value, Source: origin})
	}

	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(reports)
	default:
		encoder := yaml.NewEncoder(out)
		if err := encoder.Encode(reports); err != nil {
			return err
		}
		return encoder.Close()
	}
}

// runListen streams realtime messages into the log until ctx is cancelled.
func runListen(ctx context.Context, app *application.App, logger *zap.Logger) error {
	if err := app.Realtime.Connect(ctx); err != nil {
		return err
	}

	for {
		msg, err := app.Realtime.Receive(ctx)
		if err != nil {
			return err
		}
		logger.Info("realtime message",
			zap.String("type", msg.Type),
			zap.String("id", msg.ID),
			zap.Int("payload_bytes", len(msg.Payload)),
		)
	}
}
