package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

func sampleScript() *types.Script {
	return &types.Script{
		Title: "Index Funds 101",
		Sections: []types.Section{
			{Heading: "Introduction", DurationSec: 18},
			{Heading: "What Is An Index Fund", DurationSec: 45.5},
			{Heading: "Conclusion", DurationSec: 12},
		},
	}
}

func TestBuildMetadata(t *testing.T) {
	cfg := config.Default().Upload
	req := types.GenerationRequest{Title: "Index Funds 101", Category: "investing", DurationMinutes: 2}

	m := BuildMetadata(cfg, req, sampleScript())
	if m.Title != "Index Funds 101" || m.CategoryID != "27" || m.Visibility != "private" {
		t.Fatalf("meta = %+v", m)
	}
	for _, want := range []string{"0:00 Introduction", "0:18 What Is An Index Fund", "1:03 Conclusion"} {
		if !strings.Contains(m.Description, want) {
			t.Errorf("description missing %q:\n%s", want, m.Description)
		}
	}
	if m.Tags[0] != "investing" || !contains(m.Tags, "index funds 101") || !contains(m.Tags, "conclusion") {
		t.Fatalf("tags = %v", m.Tags)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestBuildMetadataCapsTagsAndTitle(t *testing.T) {
	cfg := config.Default().Upload
	cfg.TitleMaxChars = 10
	script := &types.Script{}
	for i := 0; i < 40; i++ {
		script.Sections = append(script.Sections, types.Section{Heading: fmt.Sprintf("Part %d", i)})
	}

	m := BuildMetadata(cfg, types.GenerationRequest{Title: "Ünïcode titles are long", Category: "ai"}, script)
	if m.Title != "Ünïcode..." {
		t.Fatalf("title = %q", m.Title)
	}
	if len(m.Tags) != maxTags {
		t.Fatalf("tags = %d", len(m.Tags))
	}
}

func TestTimestamp(t *testing.T) {
	tests := map[float64]string{0: "0:00", 59.9: "0:59", 61: "1:01", 3725: "1:02:05"}
	for in, want := range tests {
		if got := timestamp(in); got != want {
			t.Errorf("timestamp(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadPostsVideo(t *testing.T) {
	var mu sync.Mutex
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"vid123"}`)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "run.mp4")
	if err := os.WriteFile(path, []byte("mp4 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	y := NewYouTube(config.Default().Upload, nil)
	y.service = func(ctx context.Context) (*youtube.Service, error) {
		return youtube.NewService(ctx, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	}

	url, err := y.Upload(context.Background(), types.GenerationRequest{Title: "Index Funds 101", Category: "investing"},
		&types.RunResult{Video: types.CompiledVideo{Path: path}, Script: sampleScript()})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if url != "https://www.youtube.com/watch?v=vid123" {
		t.Fatalf("url = %s", url)
	}
	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(body, "Index Funds 101") || !strings.Contains(body, "mp4 bytes") {
		t.Fatalf("upload body missing metadata or media:\n%s", body)
	}
}

func TestUploadWithoutCredentials(t *testing.T) {
	t.Setenv("YOUTUBE_CLIENT_ID", "")
	y := NewYouTube(config.Default().Upload, nil)
	_, err := y.Upload(context.Background(), types.GenerationRequest{Title: "x"}, &types.RunResult{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
