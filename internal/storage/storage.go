package storage

import (
	"context"
	"io"
)

type Uploader interface {
	// Upload stores r under objectName and returns the object's URI.
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedURI string, err error)
}
