// Package utils предоставляет логгер и вспомогательные функции для обработки ответов LLM.
//
// Логгер — тонкая обёртка над log/slog с tint-хендлером.
// До вызова InitLogger все записи отбрасываются: библиотечный код не пишет в stderr.
// Thread-safe: slog.Logger безопасен для конкурентного использования.
package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	logMutex sync.Mutex
	logger   = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile  *os.File
)

// LoggerOptions — параметры логгера.
type LoggerOptions struct {
	// Level: debug | info | warn | error (по умолчанию info).
	Level string

	// NoColor отключает ANSI-цвета (для файлов и CI).
	NoColor bool
}

// InitLogger направляет логи в w через tint-хендлер.
func InitLogger(w io.Writer, opts LoggerOptions) {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      ParseLevel(opts.Level),
		TimeFormat: time.DateTime,
		NoColor:    opts.NoColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})

	logMutex.Lock()
	defer logMutex.Unlock()
	logger = slog.New(handler)
}

// InitFileLogger создаёт .log файл в dir и пишет логи туда.
//
// Имя файла: poncho-YYYY-MM-DD-HH-MM.log.
func InitFileLogger(dir string, opts LoggerOptions) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log dir: %w", err)
	}

	filename := fmt.Sprintf("%s/poncho-%s.log", strings.TrimRight(dir, "/"), time.Now().Format("2006-01-02-15-04"))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	Close()
	opts.NoColor = true
	InitLogger(f, opts)

	logMutex.Lock()
	logFile = f
	logMutex.Unlock()

	Info("Logger initialized", "file", filename)
	return filename, nil
}

// ParseLevel переводит строку в slog.Level (неизвестное значение → info).
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger возвращает текущий slog.Logger.
func Logger() *slog.Logger {
	logMutex.Lock()
	defer logMutex.Unlock()
	return logger
}

// Info - информационное сообщение.
func Info(msg string, keyvals ...any) {
	Logger().Info(msg, keyvals...)
}

// Error - сообщение об ошибке.
func Error(msg string, keyvals ...any) {
	Logger().Error(msg, keyvals...)
}

// Debug - отладочное сообщение.
func Debug(msg string, keyvals ...any) {
	Logger().Debug(msg, keyvals...)
}

// Warn - предупреждение.
func Warn(msg string, keyvals ...any) {
	Logger().Warn(msg, keyvals...)
}

// Close закрывает лог-файл (если был открыт) и возвращает логгер в режим discard.
//
// Вызывается через defer в main().
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Close failed: %v]\n", err)
		}
		logFile = nil
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}
