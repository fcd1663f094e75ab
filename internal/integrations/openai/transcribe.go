package openai

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

const transcriptionModel = "whisper-1"

// Transcribe forwards one audio file to the transcription endpoint and
// returns the raw upstream response. The caller owns the response body. The
// multipart body is streamed, the audio is never held in memory as a whole.
func (p *Provider) Transcribe(ctx context.Context, apiKey, filename string, audio io.Reader) (*http.Response, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: transcribe: %s is not set", SecretAPIKey)
	}
	if filename == "" {
		filename = "audio"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeTranscriptionForm(mw, filename, audio))
	}()

	url := apiURL(p.baseURL) + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("openai: create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := p.httpClient.Do(req)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("openai: transcription request failed: %w", err)
	}
	return res, nil
}

func writeTranscriptionForm(mw *multipart.Writer, filename string, audio io.Reader) error {
	if err := mw.WriteField("model", transcriptionModel); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return err
	}
	return mw.Close()
}
