package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"video-essay-pipeline/config"
)

type recorder struct {
	mu       sync.Mutex
	requests []string
}

func (r *recorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.requests = append(r.requests, req.Method+" "+req.URL.Path)
		r.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}
}

func (r *recorder) saw(line string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.requests {
		if l == line {
			return true
		}
	}
	return false
}

func artifact(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "20240309-140506_index-funds-101_ab12cd34.mp4")
	if err := os.WriteFile(p, []byte("mp4 bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func storageConfig() config.StorageConfig {
	cfg := config.Default().Storage
	cfg.Bucket = "essays"
	cfg.Region = "us-east-1"
	cfg.PresignExpiry = time.Hour
	return cfg
}

func TestS3PublishPutsAndPresigns(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}, nil
		}),
	})
	p := newS3Publisher(client, storageConfig(), nil)

	path := artifact(t)
	u, err := p.Publish(context.Background(), path)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	key := "/essays/videos/" + filepath.Base(path)
	if !rec.saw("PUT " + key) {
		t.Fatalf("requests = %v", rec.requests)
	}
	if !strings.Contains(u, key) || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("url = %s", u)
	}
}

func TestMinioPublishPutsAndPresigns(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	cfg := storageConfig()
	cfg.Endpoint = strings.TrimPrefix(srv.URL, "http://")
	cfg.AccessKey, cfg.SecretKey = "minio", "minio123"
	p, err := NewMinio(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	path := artifact(t)
	u, err := p.Publish(context.Background(), path)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	key := "/essays/videos/" + filepath.Base(path)
	if !rec.saw("PUT " + key) {
		t.Fatalf("requests = %v", rec.requests)
	}
	if !strings.Contains(u, key) || !strings.Contains(u, "X-Amz-Signature=") {
		t.Fatalf("url = %s", u)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	p, err := New(context.Background(), config.StorageConfig{Backend: "none"}, nil)
	if err != nil || p != nil {
		t.Fatalf("none: %v %v", p, err)
	}
	if _, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}, nil); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestObjectKeyAndContentType(t *testing.T) {
	if got := objectKey("videos/", "/tmp/out/run.mp4"); got != "videos/run.mp4" {
		t.Fatalf("key = %s", got)
	}
	if got := objectKey("", "run.mp3"); got != "run.mp3" {
		t.Fatalf("key = %s", got)
	}
	tests := map[string]string{
		"a.mp4": "video/mp4",
		"a.MP3": "audio/mpeg",
		"a.bin": "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%s) = %s, want %s", name, got, want)
		}
	}
}
