package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"cricket-auction/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	writerMu sync.Mutex
	writer   io.Writer = os.Stdout
	closer   io.Closer
)

// Init configures the global zerolog logger. Safe to call more than once.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var output io.Writer = os.Stdout
	var fileCloser io.Closer
	if path := strings.TrimSpace(cfg.File); path != "" {
		fw, err := newSizeLimitedWriter(path, cfg.MaxMB)
		if err != nil {
			return err
		}
		output = io.MultiWriter(os.Stdout, fw)
		fileCloser = fw
	}

	writerMu.Lock()
	if closer != nil {
		_ = closer.Close()
	}
	writer = output
	closer = fileCloser
	writerMu.Unlock()

	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	zerolog.SetGlobalLevel(level)
	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	return nil
}

// Writer is the raw sink behind the global logger, used by the slog request logger.
func Writer() io.Writer {
	writerMu.Lock()
	defer writerMu.Unlock()
	return writer
}

func Close() error {
	writerMu.Lock()
	defer writerMu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	writer = os.Stdout
	return err
}
