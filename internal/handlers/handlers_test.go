package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcription/internal/queue"
	"github.com/codebuildervaibhav/video-transcription/internal/storage"
	"github.com/codebuildervaibhav/video-transcription/internal/transcription"
	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEnqueuer struct {
	mu        sync.Mutex
	jobs      []*queue.Job
	capturing []string
	failed    map[string]error
	err       error
}

func (f *fakeEnqueuer) Capturing(job *queue.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capturing = append(f.capturing, job.ID)
}

func (f *fakeEnqueuer) CaptureFailed(job *queue.Job, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = make(map[string]error)
	}
	f.failed[job.ID] = err
}

func (f *fakeEnqueuer) EnqueueJob(job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type stubPipeline struct {
	err error
	req transcription.Request
}

func (s *stubPipeline) TranscribeVideo(_ context.Context, req transcription.Request) (*types.TranscriptionResult, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &types.TranscriptionResult{
		Text:        "[0.00s - 2.00s] Hi[2.00s - 5.00s] there",
		Segments:    []types.Segment{{Start: 0, End: 2, Text: "Hi"}, {Start: 2, End: 5, Text: "there"}},
		Duration:    5,
		BitrateKbps: 40,
	}, nil
}

type stubStore struct {
	names []string
}

func (s *stubStore) SaveTranscript(name string, _ *types.TranscriptionResult) (storage.SavedPaths, error) {
	s.names = append(s.names, name)
	return storage.SavedPaths{Text: "/out/talk.txt", Segments: "/out/talk.json"}, nil
}

func (s *stubStore) AudioPath(jobID, _ string) (string, error) {
	return "/out/" + jobID + ".mp3", nil
}

func multipartRequest(t *testing.T, url, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestTranscribeHandlerSuccess(t *testing.T) {
	pipeline := &stubPipeline{}
	store := &stubStore{}
	h := NewTranscribeHandler(pipeline, store, TranscribeOptions{
		Target:   types.CompressionTarget{TargetSizeKB: 500, MinBitrateKbps: 32},
		Language: "en",
		Timeout:  time.Minute,
	}, discardLogger())
	app := fiber.New()
	app.Post("/video_transcribe", h.Handle)

	resp, err := app.Test(multipartRequest(t, "/video_transcribe", "talk.mp4", []byte("video"), nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["transcription_text"] != "[0.00s - 2.00s] Hi[2.00s - 5.00s] there" {
		t.Fatalf("unexpected text %v", body["transcription_text"])
	}
	if body["bitrate_kbps"] != float64(40) || body["segments_path"] != "/out/talk.json" {
		t.Fatalf("unexpected body %v", body)
	}
	if segs, _ := body["segments"].([]any); len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %v", body["segments"])
	}
	if pipeline.req.Language != "en" || pipeline.req.Target.TargetSizeKB != 500 {
		t.Fatalf("unexpected pipeline request %+v", pipeline.req)
	}
	if len(store.names) != 1 || store.names[0] != "talk" {
		t.Fatalf("expected transcript saved as talk, got %v", store.names)
	}
}

func TestTranscribeHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"no audio", transcription.ErrNoAudioTrack, 422, "ERR_NO_AUDIO"},
		{"invalid duration", transcription.ErrInvalidDuration, 422, "ERR_INVALID_DURATION"},
		{"transcode", &transcription.TranscodeError{Diagnostic: "Unknown encoder", Err: errors.New("exit 1")}, 500, "ERR_TRANSCODE"},
		{"service", &transcription.ServiceError{StatusCode: 401, Err: errors.New("bad key")}, 502, "ERR_TRANSCRIPTION_SERVICE"},
		{"timeout", &transcription.ServiceError{Err: context.DeadlineExceeded}, 504, "ERR_TIMEOUT"},
		{"other", errors.New("boom"), 500, "ERR_INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTranscribeHandler(&stubPipeline{err: tt.err}, &stubStore{}, TranscribeOptions{}, discardLogger())
			app := fiber.New()
			app.Post("/video_transcribe", h.Handle)

			resp, err := app.Test(multipartRequest(t, "/video_transcribe", "talk.mkv", []byte("video"), nil), -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if body := decodeBody(t, resp); body["code"] != tt.code {
				t.Fatalf("expected code %s, got %v", tt.code, body)
			}
		})
	}
}

func TestTranscribeHandlerRejectsInput(t *testing.T) {
	h := NewTranscribeHandler(&stubPipeline{}, &stubStore{}, TranscribeOptions{}, discardLogger())
	app := fiber.New()
	app.Post("/video_transcribe", h.Handle)

	resp, err := app.Test(multipartRequest(t, "/video_transcribe", "notes.txt", []byte("x"), nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decodeBody(t, resp); resp.StatusCode != 400 || body["code"] != "ERR_INVALID_FORMAT" {
		t.Fatalf("expected invalid format, got %d %v", resp.StatusCode, body)
	}

	resp, err = app.Test(multipartRequest(t, "/video_transcribe", "", nil, map[string]string{"name": "x"}), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body := decodeBody(t, resp); resp.StatusCode != 400 || body["code"] != "ERR_NO_FILE" {
		t.Fatalf("expected no file, got %d %v", resp.StatusCode, body)
	}
}

func TestUploadHandlerEnqueues(t *testing.T) {
	tmp := t.TempDir()
	jobs := &fakeEnqueuer{}
	app := fiber.New()
	app.Post("/upload", NewUploadHandler(jobs, tmp, 10, discardLogger()).Handle)

	resp, err := app.Test(multipartRequest(t, "/upload", "talk.mov", []byte("video"), map[string]string{"name": "weekly"}), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if len(jobs.jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if job.ID != body["job_id"] || job.RequestName != "weekly" || job.SourceType != types.SourceUpload {
		t.Fatalf("unexpected job %+v", job)
	}
	if filepath.Dir(job.FilePath) != tmp || filepath.Ext(job.FilePath) != ".mov" {
		t.Fatalf("unexpected temp path %s", job.FilePath)
	}
	if b, err := os.ReadFile(job.FilePath); err != nil || string(b) != "video" {
		t.Fatalf("upload not saved: %q %v", b, err)
	}
}

func TestUploadHandlerQueueFull(t *testing.T) {
	tmp := t.TempDir()
	app := fiber.New()
	app.Post("/upload", NewUploadHandler(&fakeEnqueuer{err: queue.ErrQueueFull}, tmp, 10, discardLogger()).Handle)

	resp, err := app.Test(multipartRequest(t, "/upload", "talk.mp4", []byte("video"), nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if entries, _ := os.ReadDir(tmp); len(entries) != 0 {
		t.Fatalf("expected temp upload removed, got %v", entries)
	}
}

type fakeLookup map[string]queue.JobStatus

func (f fakeLookup) Get(id string) (queue.JobStatus, bool) {
	st, ok := f[id]
	return st, ok
}

func TestJobsHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/jobs/:id", NewJobsHandler(fakeLookup{
		"job-1": {ID: "job-1", Status: types.StatusProcessing, Attempts: 2},
	}).Handle)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != 200 || body["status"] != types.StatusProcessing || body["attempts"] != float64(2) {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/jobs/missing", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTranscriptsHandler(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewMetadataDB(filepath.Join(dir, "t.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	txt := filepath.Join(dir, "a.txt")
	seg := filepath.Join(dir, "a.json")
	os.WriteFile(txt, []byte("[0.00s - 1.00s] hi"), 0o644)
	os.WriteFile(seg, []byte(`[{"start":0,"end":1,"text":"hi"}]`), 0o644)
	if err := db.SaveTranscript(storage.TranscriptRecord{
		JobID: "job-1", RequestName: "a", SourceType: "upload", LocalPath: txt, SegmentsPath: seg,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	h := NewTranscriptsHandler(db)
	app := fiber.New()
	app.Get("/transcripts", h.List)
	app.Get("/transcripts/:id/text", h.Text)
	app.Get("/transcripts/:id/segments", h.Segments)

	get := func(path string) (*http.Response, string) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return resp, string(b)
	}

	if resp, body := get("/transcripts"); resp.StatusCode != 200 || !strings.Contains(body, `"job_id":"job-1"`) {
		t.Fatalf("unexpected list %d %s", resp.StatusCode, body)
	}
	if resp, body := get("/transcripts/job-1/text"); resp.StatusCode != 200 || body != "[0.00s - 1.00s] hi" {
		t.Fatalf("unexpected text %d %s", resp.StatusCode, body)
	}
	resp, body := get("/transcripts/job-1/segments")
	if resp.StatusCode != 200 || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") || !strings.Contains(body, `"text":"hi"`) {
		t.Fatalf("unexpected segments %d %s", resp.StatusCode, body)
	}
	if resp, _ := get("/transcripts/missing/text"); resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestExtractGDriveFileID(t *testing.T) {
	id := "1AbCdEfGhIjKlMnOpQrStUvWxYz012345"
	cases := []struct {
		in, want string
	}{
		{"https://drive.google.com/file/d/" + id + "/view?usp=sharing", id},
		{"https://drive.google.com/open?id=" + id, id},
		{id, id},
		{"https://example.com/video.mp4", ""},
	}
	for _, c := range cases {
		if got := extractGDriveFileID(c.in); got != c.want {
			t.Errorf("extractGDriveFileID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestGDriveHandlerDownloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/private":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Header().Set("Content-Disposition", `attachment; filename="clip.mov"`)
			io.WriteString(w, "video bytes")
		}
	}))
	defer srv.Close()

	tmp := t.TempDir()
	jobs := &fakeEnqueuer{}
	h := NewGDriveHandler(jobs, tmp, 10, discardLogger())
	h.client = srv.Client()
	h.downloadURL = srv.URL + "/%s"
	app := fiber.New()
	app.Post("/gdrive", h.Handle)

	post := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/gdrive", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		return resp
	}

	resp := post(`{"url":"https://drive.google.com/file/d/abc123/view","name":"demo"}`)
	if resp.StatusCode != fiber.StatusAccepted || len(jobs.jobs) != 1 {
		t.Fatalf("expected job enqueued, got %d (%d jobs)", resp.StatusCode, len(jobs.jobs))
	}
	job := jobs.jobs[0]
	if filepath.Ext(job.FilePath) != ".mov" || job.SourceType != types.SourceGDrive || job.RequestName != "demo" {
		t.Fatalf("unexpected job %+v", job)
	}
	if b, _ := os.ReadFile(job.FilePath); string(b) != "video bytes" {
		t.Fatalf("unexpected download %q", b)
	}

	resp = post(`{"url":"https://drive.google.com/file/d/private/view"}`)
	if body := decodeBody(t, resp); body["code"] != "ERR_FILE_NOT_ACCESSIBLE" {
		t.Fatalf("expected not accessible, got %v", body)
	}

	resp = post(`{"url":"https://example.com/video.mp4"}`)
	if body := decodeBody(t, resp); body["code"] != "ERR_INVALID_URL" {
		t.Fatalf("expected invalid url, got %v", body)
	}
}

func TestYouTubeHandlerUsesPageTitle(t *testing.T) {
	tmp := t.TempDir()
	jobs := &fakeEnqueuer{}
	h := NewYouTubeHandler(jobs, tmp, discardLogger())
	h.async = false
	h.title = func(context.Context, string) (string, error) { return "Conference Keynote", nil }
	h.fetch = func(_ context.Context, _ string, out string) error {
		return os.WriteFile(out, []byte("video"), 0o644)
	}
	app := fiber.New()
	app.Post("/youtube", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/youtube", strings.NewReader(`{"url":"https://www.youtube.com/watch?v=abc"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body := decodeBody(t, resp)
	if resp.StatusCode != fiber.StatusAccepted || body["status"] != "capturing" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
	if len(jobs.jobs) != 1 || jobs.jobs[0].RequestName != "Conference Keynote" || jobs.jobs[0].ID != body["job_id"] {
		t.Fatalf("unexpected jobs %+v", jobs.jobs)
	}
}

func TestYouTubeHandlerDownloadFailure(t *testing.T) {
	jobs := &fakeEnqueuer{}
	h := NewYouTubeHandler(jobs, t.TempDir(), discardLogger())
	h.async = false
	h.title = func(context.Context, string) (string, error) { return "", errors.New("no chrome") }
	h.fetch = func(context.Context, string, string) error { return errors.New("yt-dlp: not found") }
	app := fiber.New()
	app.Post("/youtube", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/youtube", strings.NewReader(`{"url":"https://youtu.be/abc"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	id, _ := decodeBody(t, resp)["job_id"].(string)
	if len(jobs.jobs) != 0 {
		t.Fatalf("expected no job after failed download, got %d", len(jobs.jobs))
	}
	if len(jobs.capturing) != 1 || jobs.capturing[0] != id {
		t.Fatalf("expected job %s registered while capturing, got %v", id, jobs.capturing)
	}
	if jobs.failed[id] == nil || !strings.Contains(jobs.failed[id].Error(), "yt-dlp") {
		t.Fatalf("expected yt-dlp failure recorded, got %v", jobs.failed)
	}
}

func TestYouTubeJobStatusVisible(t *testing.T) {
	cases := []struct {
		name      string
		fetchErr  error
		stopPool  bool
		wantError string
	}{
		{name: "download fails", fetchErr: errors.New("yt-dlp: video unavailable"), wantError: "video unavailable"},
		{name: "pool stopped", stopPool: true, wantError: "enqueue"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := queue.NewWorkerPool(queue.Options{Workers: 1, QueueSize: 1}, nil, nil, nil, nil, nil, discardLogger())
			t.Cleanup(pool.Stop)
			if tc.stopPool {
				pool.Stop()
			}

			var fetchingStatus string
			h := NewYouTubeHandler(pool, t.TempDir(), discardLogger())
			h.async = false
			h.title = func(context.Context, string) (string, error) { return "Talk", nil }
			app := fiber.New()
			app.Post("/youtube", h.Handle)
			app.Get("/jobs/:id", NewJobsHandler(pool.Registry()).Handle)

			getJob := func(id string) (int, map[string]any) {
				resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil), -1)
				if err != nil {
					t.Fatalf("get job: %v", err)
				}
				return resp.StatusCode, decodeBody(t, resp)
			}

			h.fetch = func(_ context.Context, _ string, out string) error {
				st, ok := pool.Registry().Get(strings.TrimSuffix(strings.TrimPrefix(filepath.Base(out), "youtube_"), ".mp4"))
				if !ok {
					t.Errorf("job not registered during download")
				} else {
					fetchingStatus = st.Status
				}
				if tc.fetchErr != nil {
					return tc.fetchErr
				}
				return os.WriteFile(out, []byte("video"), 0o644)
			}

			req := httptest.NewRequest(http.MethodPost, "/youtube", strings.NewReader(`{"url":"https://youtu.be/abc"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			id, _ := decodeBody(t, resp)["job_id"].(string)

			if fetchingStatus != types.StatusCapturing {
				t.Fatalf("expected %s during download, got %q", types.StatusCapturing, fetchingStatus)
			}
			code, body := getJob(id)
			if code != fiber.StatusOK || body["status"] != types.StatusFailed {
				t.Fatalf("expected FAILED job, got %d %v", code, body)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tc.wantError) {
				t.Fatalf("expected error containing %q, got %q", tc.wantError, msg)
			}
		})
	}
}
