package service

import (
	"context"
	"io"
)

// FixtureStorage persists test case input and output files.
type FixtureStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	Download(ctx context.Context, location string) ([]byte, error)
	Remove(ctx context.Context, name string) error
}
