package debug

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/ilkoid/poncho-react/pkg/s3storage"
)

// Sink — место хранения готового трейса.
type Sink interface {
	// Write сохраняет JSON трейса и возвращает его расположение.
	Write(ctx context.Context, runID string, data []byte) (string, error)
}

// FileSink пишет трейсы в локальную директорию.
type FileSink struct {
	Dir string
}

// NewFileSink создаёт директорию (если нужно) и возвращает sink.
func NewFileSink(dir string) (*FileSink, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
	}
	return &FileSink{Dir: dir}, nil
}

func (s *FileSink) Write(_ context.Context, runID string, data []byte) (string, error) {
	filePath := runID + ".json"
	if s.Dir != "" {
		filePath = filepath.Join(s.Dir, filePath)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write debug log: %w", err)
	}
	return filePath, nil
}

// S3Sink выгружает трейсы в S3-совместимое хранилище.
type S3Sink struct {
	client s3storage.ClientInterface
	prefix string
}

// NewS3Sink создаёт sink поверх s3storage клиента.
func NewS3Sink(client s3storage.ClientInterface, prefix string) *S3Sink {
	return &S3Sink{client: client, prefix: prefix}
}

func (s *S3Sink) Write(ctx context.Context, runID string, data []byte) (string, error) {
	key := path.Join(s.prefix, runID+".json")
	if err := s.client.Upload(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return "s3://" + key, nil
}
