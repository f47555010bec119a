// Package logger предоставляет логирование с префиксом сервиса и асинхронной записью,
// чтобы не блокировать основное приложение. Поддерживается логирование времени выполнения функций.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	asyncBufferSize = 8192
	pollInterval    = 10 * time.Millisecond
	slowCall        = 100 * time.Millisecond
)

var (
	mu     sync.RWMutex
	prefix string
	base   zerolog.Logger
	once   sync.Once
)

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func initWorker() {
	var out io.Writer = os.Stderr
	if os.Getenv("LOG_PRETTY") == "true" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	// Буфер полон, не блокируем, теряем лог
	w := diode.NewWriter(out, asyncBufferSize, pollInterval, func(int) {})
	base = zerolog.New(w).Level(parseLevel(os.Getenv("LOG_LEVEL"))).With().Timestamp().Logger()
}

func get() zerolog.Logger {
	once.Do(initWorker)
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return base
	}
	return base.With().Str("svc", prefix).Logger()
}

// SetPrefix задаёт префикс для всех последующих логов (например "api").
func SetPrefix(p string) {
	once.Do(initWorker)
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetOutput направляет логи в w синхронно (тесты, перенаправление вывода).
func SetOutput(w io.Writer) {
	once.Do(initWorker)
	mu.Lock()
	base = base.Output(w)
	mu.Unlock()
}

// SetLevel переопределяет уровень из LOG_LEVEL (значение из конфига).
func SetLevel(level string) {
	once.Do(initWorker)
	mu.Lock()
	base = base.Level(parseLevel(level))
	mu.Unlock()
}

// Info пишет в log с префиксом (асинхронно).
func Info(v ...any) {
	l := get()
	l.Info().Msg(fmt.Sprint(v...))
}

// Infof форматирует и пишет с префиксом (асинхронно).
func Infof(format string, v ...any) {
	l := get()
	l.Info().Msgf(format, v...)
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	l := get()
	l.Debug().Msgf(format, v...)
}

// Warnf пишет предупреждение.
func Warnf(format string, v ...any) {
	l := get()
	l.Warn().Msgf(format, v...)
}

// Error пишет ошибку с префиксом (асинхронно).
func Error(v ...any) {
	l := get()
	l.Error().Msg(fmt.Sprint(v...))
}

// Errorf форматирует ошибку с префиксом (асинхронно).
func Errorf(format string, v ...any) {
	l := get()
	l.Error().Msgf(format, v...)
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug, все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	l := get()
	ev := l.Debug()
	if elapsed >= slowCall {
		ev = l.Info()
	}
	ev.Str("fn", fn).Int64("duration_ms", elapsed.Milliseconds()).Send()
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
