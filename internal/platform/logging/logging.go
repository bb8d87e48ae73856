// Package logging builds the zerolog access logger used by the HTTP layer.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const filePermission = 0o664

type Builder struct {
	writer io.Writer
	path   string
	level  string
}

type Logger struct {
	zerolog.Logger
	file *os.File
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) FromPath(path string) *Builder {
	b.path = strings.TrimSpace(path)
	return b
}

func (b *Builder) FromWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

func (b *Builder) WithLevel(level string) *Builder {
	b.level = level
	return b
}

// Make opens the log file when a path is set, otherwise writes to the given
// writer or stdout.
func (b *Builder) Make() (*Logger, error) {
	out := &Logger{}
	writer := b.writer
	if writer == nil {
		writer = os.Stdout
	}
	if b.path != "" {
		file, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePermission)
		if err != nil {
			return nil, err
		}
		out.file = file
		writer = zerolog.SyncWriter(file)
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(b.level)))
	if err != nil || b.level == "" {
		level = zerolog.InfoLevel
	}
	out.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	return out, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
