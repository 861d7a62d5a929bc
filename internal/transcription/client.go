package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// RawSegment is one segment as the recognition service reported it.
type RawSegment struct {
	Start float64
	End   float64
	Text  string
}

// Transcriber sends compressed audio to a speech recognition backend.
// Implementations do not retry.
type Transcriber interface {
	Transcribe(ctx context.Context, audio AudioArtifact, language string) ([]RawSegment, error)
}

// HTTPClient talks to an OpenAI-compatible /audio/transcriptions endpoint
// (Groq, OpenAI, LocalAI) using verbose_json output.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

// NewHTTPClient builds a client for endpoint, e.g. "https://api.groq.com/openai/v1".
// A nil httpClient uses one without a timeout; callers bound requests through ctx.
func NewHTTPClient(endpoint, apiKey, model string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
		http:     httpClient,
	}
}

// verboseResponse matches the verbose_json transcription format. Segment
// fields are pointers so a missing field is distinguishable from zero.
type verboseResponse struct {
	Text     string            `json:"text"`
	Language string            `json:"language"`
	Duration float64           `json:"duration"`
	Segments *[]verboseSegment `json:"segments"`
}

type verboseSegment struct {
	ID    int      `json:"id"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
	Text  *string  `json:"text"`
}

func (c *HTTPClient) Transcribe(ctx context.Context, audio AudioArtifact, language string) ([]RawSegment, error) {
	f, err := os.Open(audio.Path)
	if err != nil {
		return nil, serviceErr(0, "open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
	}
	if language != "" {
		fields["language"] = language
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, serviceErr(0, "write form field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audio.Path))
	if err != nil {
		return nil, serviceErr(0, "create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, serviceErr(0, "copy audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, serviceErr(0, "close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/audio/transcriptions", &body)
	if err != nil {
		return nil, serviceErr(0, "build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, serviceErr(0, "send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, serviceErr(resp.StatusCode, "%s", strings.TrimSpace(string(b)))
	}

	var vr verboseResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, serviceErr(resp.StatusCode, "decode response: %w", err)
	}
	return vr.rawSegments(resp.StatusCode)
}

func (vr verboseResponse) rawSegments(status int) ([]RawSegment, error) {
	if vr.Segments == nil {
		return nil, &ServiceError{StatusCode: status, Err: errors.New("response has no segments field")}
	}
	out := make([]RawSegment, 0, len(*vr.Segments))
	for i, seg := range *vr.Segments {
		switch {
		case seg.Start == nil:
			return nil, serviceErr(status, "segment %d: missing start", i)
		case seg.End == nil:
			return nil, serviceErr(status, "segment %d: missing end", i)
		case seg.Text == nil:
			return nil, serviceErr(status, "segment %d: missing text", i)
		}
		out = append(out, RawSegment{Start: *seg.Start, End: *seg.End, Text: *seg.Text})
	}
	return out, nil
}
