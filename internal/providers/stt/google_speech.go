package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
)

type GoogleSpeech struct {
	c *speech.Client

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{
		c:            c,
		Encoding:     speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
		SampleRateHz: 0,
	}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, language string) (string, float64, error) {
	return g.recognize(ctx, language, &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
	})
}

// TranscribeURI uses a long-running recognize so recorded answers longer than
// a minute are accepted.
func (g *GoogleSpeech) TranscribeURI(ctx context.Context, uri string, language string) (string, float64, error) {
	op, err := g.c.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: g.config(language),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: uri},
		},
	})
	if err != nil {
		return "", 0, err
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return "", 0, err
	}
	text, conf := joinResults(resp.Results)
	return text, conf, nil
}

func (g *GoogleSpeech) recognize(ctx context.Context, language string, audio *speechpb.RecognitionAudio) (string, float64, error) {
	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: g.config(language),
		Audio:  audio,
	})
	if err != nil {
		return "", 0, err
	}
	text, conf := joinResults(resp.Results)
	return text, conf, nil
}

func (g *GoogleSpeech) config(language string) *speechpb.RecognitionConfig {
	return &speechpb.RecognitionConfig{
		Encoding:                   g.Encoding,
		SampleRateHertz:            g.SampleRateHz,
		LanguageCode:               NormalizeLanguage(strings.TrimSpace(language)),
		EnableAutomaticPunctuation: true,
	}
}

// joinResults concatenates the best alternative of every result segment and
// averages their confidence.
func joinResults(results []*speechpb.SpeechRecognitionResult) (string, float64) {
	var parts []string
	var sum float64
	for _, r := range results {
		var best *speechpb.SpeechRecognitionAlternative
		for _, alt := range r.Alternatives {
			if alt.Transcript != "" && (best == nil || alt.Confidence > best.Confidence) {
				best = alt
			}
		}
		if best == nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(best.Transcript))
		sum += float64(best.Confidence)
	}
	if len(parts) == 0 {
		return "", 0
	}
	return strings.Join(parts, " "), sum / float64(len(parts))
}
