package visuals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

// Query describes what one run needs from the stock providers
type Query struct {
	Category    string
	VisualStyle string
	Desired     int    // clips wanted, 0 means the configured default
	Dir         string // run-scoped download directory
	PexelsKey   string
	UnsplashKey string
}

// Fetcher gathers stock clips and stills for a run. It never fails: missing
// keys, empty searches and broken downloads all shrink the result instead.
type Fetcher struct {
	cfg      config.AssetsConfig
	search   *http.Client
	download *http.Client
	log      *slog.Logger

	// overridable in tests
	videoSource func(key string) Source
	imageSource func(key string) Source
}

func New(cfg config.AssetsConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		cfg:      cfg,
		search:   &http.Client{Timeout: cfg.SearchTimeout},
		download: &http.Client{},
		log:      logger.With("component", "visuals"),
	}
	f.videoSource = func(key string) Source {
		return &Pexels{BaseURL: cfg.PexelsURL, APIKey: key, PerPage: cfg.PerPage, MinWidth: cfg.MinWidth, Client: f.search}
	}
	f.imageSource = func(key string) Source {
		return &Unsplash{BaseURL: cfg.UnsplashURL, APIKey: key, PerPage: cfg.PerPage, Client: f.search}
	}
	return f
}

// Fetch collects up to q.Desired clips, one per search term. Stills are only
// fetched when fewer than the configured minimum of clips came back.
func (f *Fetcher) Fetch(ctx context.Context, q Query) types.AssetSet {
	desired := q.Desired
	if desired <= 0 {
		desired = f.cfg.DesiredClips
	}
	terms := SearchTerms(q.Category, q.VisualStyle)
	set := types.AssetSet{Videos: []types.MediaAsset{}, Images: []types.MediaAsset{}}

	if err := os.MkdirAll(q.Dir, 0o755); err != nil {
		f.log.Warn("cannot create asset dir, continuing without assets", "dir", q.Dir, "error", err)
		return set
	}

	if q.PexelsKey != "" {
		set.Videos = f.gather(ctx, f.videoSource(q.PexelsKey), terms, desired, q.Dir)
	} else {
		f.log.Info("pexels key not configured, skipping stock video")
	}

	if len(set.Videos) < f.cfg.MinClips {
		if q.UnsplashKey != "" {
			set.Images = f.gather(ctx, f.imageSource(q.UnsplashKey), terms, f.cfg.MaxImages, q.Dir)
		} else {
			f.log.Info("unsplash key not configured, skipping stills")
		}
	}

	f.log.Info("assets gathered", "videos", len(set.Videos), "images", len(set.Images))
	return set
}

func (f *Fetcher) gather(ctx context.Context, src Source, terms []string, limit int, dir string) []types.MediaAsset {
	out := []types.MediaAsset{}
	seen := map[string]bool{}
	ext := ".mp4"
	if src.Kind() == types.AssetImage {
		ext = ".jpg"
	}

	for _, term := range terms {
		if len(out) >= limit || ctx.Err() != nil {
			break
		}
		cands, err := src.Search(ctx, term)
		if err != nil {
			f.log.Warn("search failed, skipping term", "provider", src.Name(), "term", term, "error", err)
			continue
		}
		for _, c := range cands {
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true

			path := filepath.Join(dir, fmt.Sprintf("%s_%s_%02d%s", src.Kind(), src.Name(), len(out)+1, ext))
			if err := f.fetchOne(ctx, c.URL, path); err != nil {
				f.log.Warn("download failed, skipping asset", "provider", src.Name(), "term", term, "error", err)
				continue
			}
			out = append(out, types.MediaAsset{
				Kind:       src.Kind(),
				LocalPath:  path,
				Provider:   src.Name(),
				SearchTerm: term,
				SourceURL:  c.URL,
			})
			f.log.Debug("asset saved", "provider", src.Name(), "term", term, "path", path, "quality", c.Quality)
			break
		}
	}
	return out
}

// fetchOne streams url to path under the per-download timeout. Partial files
// are removed on failure.
func (f *Fetcher) fetchOne(ctx context.Context, url, path string) (err error) {
	if f.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("empty body")
	}
	return nil
}
