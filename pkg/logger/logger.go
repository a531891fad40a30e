package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled stdout logger for the corestack services. Deliberately
// dependency-free; LOG_LEVEL selects the threshold at startup.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var names = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelFatal: "fatal",
}

var (
	mu  sync.RWMutex
	out = log.New(os.Stdout, "", 0)
	min = LevelInfo
)

// Init sets the global threshold. Unknown or empty input keeps Info.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		min = LevelDebug
	case "warn", "warning":
		min = LevelWarn
	case "error":
		min = LevelError
	case "fatal":
		min = LevelFatal
	default:
		min = LevelInfo
	}
}

// LevelString returns the active threshold as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return names[min]
}

func emit(l Level, format string, v ...any) {
	mu.RLock()
	skip := l < min
	mu.RUnlock()
	if skip {
		return
	}
	out.Printf("%s [%s] %s", time.Now().Format(time.RFC3339), strings.ToUpper(names[l]), fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) { emit(LevelDebug, format, v...) }
func Infof(format string, v ...any)  { emit(LevelInfo, format, v...) }
func Warnf(format string, v ...any)  { emit(LevelWarn, format, v...) }
func Errorf(format string, v ...any) { emit(LevelError, format, v...) }

func Fatalf(format string, v ...any) {
	emit(LevelFatal, format, v...)
	os.Exit(1)
}

func Debug(msg string) { Debugf("%s", msg) }
func Info(msg string)  { Infof("%s", msg) }
func Warn(msg string)  { Warnf("%s", msg) }
func Error(msg string) { Errorf("%s", msg) }
