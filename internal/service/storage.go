package service

import (
	"context"
	"io"
)

// FileStorage abstracts the external file store. Upload failures are fatal
// for the triggering operation; Delete is best-effort and callers only log
// its failures.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}
