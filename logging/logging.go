// Package logging wires the process-wide go-ethereum logger: a terminal
// handler on stdout plus an optional rotating logfmt file.
package logging

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the console and file handlers.
type Config struct {
	Level      string `json:"level" toml:"level" yaml:"level"`                // console level, default "info"
	File       string `json:"file" toml:"file" yaml:"file"`                   // empty disables the file handler
	FileLevel  string `json:"file_level" toml:"file_level" yaml:"file_level"` // default "debug"
	MaxSizeMB  int    `json:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" toml:"compress" yaml:"compress"`
	Caller     bool   `json:"caller" toml:"caller" yaml:"caller"` // annotate file lines with the call site
}

func level(s string, def log.Lvl) log.Lvl {
	if s == "" {
		return def
	}
	lvl, err := log.LvlFromString(s)
	if err != nil {
		return def
	}
	return lvl
}

// Handler builds the handler tree for cfg with console output on w.
// The returned closer flushes the rotating file, if any.
func Handler(cfg Config, w io.Writer) (log.Handler, io.Closer) {
	useColor := w == os.Stdout && os.Getenv("TERM") != "dumb"
	console := log.LvlFilterHandler(
		level(cfg.Level, log.LvlInfo),
		log.StreamHandler(w, log.TerminalFormat(useColor)),
	)
	if cfg.File == "" {
		return console, nopCloser{}
	}

	rotate := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	file := log.LvlFilterHandler(
		level(cfg.FileLevel, log.LvlDebug),
		log.StreamHandler(rotate, log.LogfmtFormat()),
	)
	if cfg.Caller {
		file = log.CallerFileHandler(file)
	}
	return log.MultiHandler(console, file), rotate
}

// Setup installs the handlers for cfg on the root logger.
func Setup(cfg Config) io.Closer {
	h, closer := Handler(cfg, os.Stdout)
	log.Root().SetHandler(h)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
