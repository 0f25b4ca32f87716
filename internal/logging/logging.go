package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"gbce/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the global zerolog logger at stdout, plus a rotated log
// file when one is configured. The returned closer releases the file.
func Setup(cfg *config.Config) io.Closer {
	return SetupWriter(cfg, os.Stdout)
}

func SetupWriter(cfg *config.Config, out io.Writer) io.Closer {
	zerolog.SetGlobalLevel(parseLevel(cfg.Logging.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(cfg.Logging.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	var closer io.Closer = nopCloser{}
	if cfg.Logging.File != "" {
		// Files always receive JSON lines.
		file := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // Megabytes
			MaxBackups: 3,
			MaxAge:     28, // Days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
		closer = file
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer
}

func parseLevel(raw string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
