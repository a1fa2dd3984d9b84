// Command twoway-demo exercises a twoway pair: a concurrent ping-pong run
// followed by a closed-peer check.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/OCAP2/twoway/internal/config"
	"github.com/OCAP2/twoway/internal/logging"
	intOtel "github.com/OCAP2/twoway/internal/otel"
	"github.com/OCAP2/twoway/pkg/twoway"
)

const appName = "twoway-demo"

func main() {
	fs := pflag.NewFlagSet(appName, pflag.ExitOnError)
	configDir := fs.StringP("config", "c", ".", "directory containing "+config.FileName)
	if err := config.BindFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_ = fs.Parse(os.Args[1:])

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	if err := config.Load(configDir); err != nil {
		return err
	}

	sessionStart := time.Now()
	logCfg := config.GetLogConfig()

	if err := os.MkdirAll(logCfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(logging.LogFilePath(logCfg.Dir, appName, sessionStart), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	otelCfg := config.GetOTelConfig()
	var otelWriter io.Writer
	if otelCfg.Enabled {
		f, err := os.OpenFile(logging.LogFilePath(logCfg.Dir, appName+".otel", sessionStart), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening otel log file: %w", err)
		}
		defer f.Close()
		otelWriter = f
	}

	provider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: otelCfg.MetricInterval,
		Writer:         otelWriter,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setting up otel: %w", err)
	}
	provider.InstallGlobal()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	setupOpts := []logging.SetupOption{
		logging.WithContext(func() []slog.Attr {
			return []slog.Attr{slog.Int("goroutines", runtime.NumGoroutine())}
		}),
	}
	if logCfg.GraylogEnabled {
		gw, err := logging.NewGELFWriter(logCfg.GraylogAddress, appName)
		if err != nil {
			return err
		}
		setupOpts = append(setupOpts, logging.WithGELF(gw))
	}

	logManager := logging.NewSlogManager()
	logManager.Setup(io.MultiWriter(os.Stdout, logFile), logCfg.Level, provider.LoggerProvider(), setupOpts...)
	logger := logManager.Logger()
	defer func() { _ = logManager.Flush(context.Background()) }()

	pairLogger := newPairLogger(logCfg, logManager, logFile)
	demoCfg := config.GetDemoConfig()

	ctx := logging.ContextWithAttrs(context.Background(), slog.String("phase", "ping-pong"))
	logger.InfoContext(ctx, "starting", "messages", demoCfg.Messages, "senders", demoCfg.Senders, "logBackend", logCfg.Backend)
	result, err := PingPong(demoCfg, twoway.WithName("ping-pong"), twoway.WithLogger(pairLogger))
	if err != nil {
		logger.ErrorContext(ctx, "failed", "echoed", result.Echoed, "sent", result.Sent, "error", err)
		return err
	}
	logger.InfoContext(ctx, "complete", "sent", result.Sent, "echoed", result.Echoed, "duration", result.Duration)

	ctx = logging.ContextWithAttrs(context.Background(), slog.String("phase", "closed-peer"))
	closed, err := ClosedPeer("hello", twoway.WithName("closed-peer"), twoway.WithLogger(pairLogger))
	if err != nil {
		logger.ErrorContext(ctx, "failed", "error", err)
		return err
	}
	logger.InfoContext(ctx, "complete",
		"recovered", closed.Recovered,
		"sendError", closed.SendErr,
		"recvError", closed.RecvErr,
	)

	return provider.Flush(context.Background())
}

// newPairLogger returns the logger handed to twoway pairs for the configured backend.
func newPairLogger(cfg config.LogConfig, m *logging.SlogManager, file io.Writer) twoway.Logger {
	if cfg.Backend != "zerolog" {
		return logging.NewSlogLogger(m.Logger().With("component", "twoway"))
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	mlw := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		},
		zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	)
	zl := zerolog.New(mlw).
		Level(logging.ParseZerologLevel(cfg.Level)).
		With().Timestamp().Str("component", "twoway").Logger()
	return logging.NewZerologLogger(zl)
}
