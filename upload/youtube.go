package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

var ErrNotConfigured = errors.New("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")

// YouTube uploads finished videos through the Data API v3.
type YouTube struct {
	cfg     config.UploadConfig
	service func(ctx context.Context) (*youtube.Service, error)
	log     *slog.Logger
}

func NewYouTube(cfg config.UploadConfig, logger *slog.Logger) *YouTube {
	if logger == nil {
		logger = slog.Default()
	}
	return &YouTube{cfg: cfg, service: oauthService, log: logger.With("component", "upload")}
}

// Upload posts res.Video with metadata built from the request and script,
// returning the watch URL.
func (y *YouTube) Upload(ctx context.Context, req types.GenerationRequest, res *types.RunResult) (string, error) {
	svc, err := y.service(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube auth: %w", err)
	}
	meta := BuildMetadata(y.cfg, req, res.Script)

	f, err := os.Open(res.Video.Path)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  meta.CategoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           meta.Visibility,
			SelfDeclaredMadeForKids: y.cfg.MadeForKids,
		},
	}
	y.log.Info("uploading", "title", meta.Title, "bytes", res.Video.SizeBytes)

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		NotifySubscribers(y.cfg.NotifySubscribers).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	url := "https://www.youtube.com/watch?v=" + uploaded.Id
	y.log.Info("uploaded", "video_id", uploaded.Id, "url", url)
	return url, nil
}

// oauthService builds a client from a long-lived refresh token in the
// environment.
func oauthService(ctx context.Context) (*youtube.Service, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, ErrNotConfigured
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	client := oauth2.NewClient(ctx, conf.TokenSource(ctx, token))
	return youtube.NewService(ctx, option.WithHTTPClient(client))
}
