// Package logging builds the per-component log.Logger instances the
// rest of GitSocial writes to. When a log path is configured, loggers
// share one rotating lumberjack sink; otherwise they write to stderr.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu   sync.Mutex
	sink io.Writer = os.Stderr
	path string
)

// Configure points every logger created after this call at logPath. An
// empty path keeps stderr.
func Configure(logPath string) {
	mu.Lock()
	defer mu.Unlock()
	path = logPath
	if logPath == "" {
		sink = os.Stderr
		return
	}
	sink = &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// New returns a logger for one component, prefixed "[component] ".
// Components hold their own logger rather than sharing a global.
func New(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return log.New(sink, "["+component+"] ", log.LstdFlags)
}

// Tail returns up to n trailing lines of the configured log file, the
// data source behind the broker's getLogs response. With no file
// configured it returns nil.
func Tail(n int) ([]string, error) {
	mu.Lock()
	p := path
	mu.Unlock()
	if p == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
