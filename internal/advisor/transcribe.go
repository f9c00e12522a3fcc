package advisor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/carlmjohnson/requests"
	openai "github.com/sashabaranov/go-openai"
)

// Transcribe downloads a call recording and turns it into text. Unlike Ask
// it does return errors: the caller decides whether a failed transcription
// becomes a tracked error, a fallback answer, or both.
func (a *Advisor) Transcribe(ctx context.Context, recordingURL, language string) (string, error) {
	if recordingURL == "" {
		return "", fmt.Errorf("advisor: recording url is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var audio bytes.Buffer
	if err := requests.URL(recordingURL).ToBytesBuffer(&audio).Fetch(callCtx); err != nil {
		return "", fmt.Errorf("advisor: fetching recording: %w", err)
	}
	if audio.Len() == 0 {
		return "", fmt.Errorf("advisor: recording is empty")
	}

	resp, err := a.client.CreateTranscription(callCtx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   &audio,
		FilePath: "recording.wav",
		Language: whisperLanguage(language),
	})
	if err != nil {
		return "", fmt.Errorf("advisor: transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func whisperLanguage(language string) string {
	switch language {
	case "en", "ha", "yo":
		return language
	default:
		return "en"
	}
}
