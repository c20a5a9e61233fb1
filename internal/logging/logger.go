// Package logging builds the logrus logger used by the command line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/minus-twelve/tablesess/types"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger configured from cfg. Output is "stdout" (default),
// "file" or "both"; file output rotates through lumberjack.
func New(cfg types.LogConfig) (*logrus.Logger, error) {
	log := logrus.New()

	output := strings.ToLower(strings.TrimSpace(cfg.Output))
	if output == "" {
		output = "stdout"
	}
	w, err := buildWriter(cfg, output)
	if err != nil {
		return nil, err
	}
	log.SetOutput(w)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			DisableColors: output != "stdout",
		})
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)
	return log, nil
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(s string) (logrus.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return logrus.InfoLevel, nil
	case "warning":
		s = "warn"
	}
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func buildWriter(cfg types.LogConfig, output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "file":
		return newRotateWriter(cfg)
	case "both":
		w, err := newRotateWriter(cfg)
		if err != nil {
			return nil, err
		}
		return io.MultiWriter(os.Stdout, w), nil
	default:
		return nil, fmt.Errorf("unsupported log output: %s", output)
	}
}

func newRotateWriter(cfg types.LogConfig) (io.Writer, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return nil, fmt.Errorf("log file is required when output includes file")
	}
	if dir := filepath.Dir(cfg.File); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: max(cfg.MaxBackups, 0),
		MaxAge:     max(cfg.MaxAge, 0),
		Compress:   cfg.Compress,
	}, nil
}
