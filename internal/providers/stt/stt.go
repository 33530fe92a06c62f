package stt

import "context"

type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	// TranscribeURI transcribes audio already uploaded to object storage
	// (gs://bucket/object).
	TranscribeURI(ctx context.Context, uri string, language string) (text string, confidence float64, err error)
	Close() error
}

// NormalizeLanguage maps short codes to BCP-47 tags; empty means en-US.
func NormalizeLanguage(v string) string {
	switch v {
	case "id", "id-ID":
		return "id-ID"
	case "", "en", "en-US":
		return "en-US"
	default:
		return v
	}
}
