package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupGracefulShutdown отменяет контекст по SIGINT/SIGTERM.
//
// Возвращает функцию очистки для defer в main():
//   ctx, cancel := context.WithCancel(context.Background())
//   defer SetupGracefulShutdown(cancel)()
//
// Отмена контекста прерывает текущий вызов LLM или набор инструментов,
// и цикл агента завершается с ошибкой отмены.
func SetupGracefulShutdown(cancel context.CancelFunc) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			Info("Received signal, shutting down gracefully", "signal", sig.String())
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
		Close()
	}
}
