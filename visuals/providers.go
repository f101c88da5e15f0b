package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"video-essay-pipeline/types"
)

// Candidate is a downloadable search hit
type Candidate struct {
	URL     string
	Width   int
	Height  int
	Quality string
}

// Source is a stock-media search provider.
type Source interface {
	Name() string
	Kind() types.AssetKind
	Search(ctx context.Context, term string) ([]Candidate, error)
}

// Pexels searches landscape stock video
type Pexels struct {
	BaseURL  string
	APIKey   string
	PerPage  int
	MinWidth int
	Client   *http.Client
}

func (p *Pexels) Name() string          { return "pexels" }
func (p *Pexels) Kind() types.AssetKind { return types.AssetVideo }

type pexelsResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	ID         int          `json:"id"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Duration   int          `json:"duration"`
	VideoFiles []pexelsFile `json:"video_files"`
}

type pexelsFile struct {
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

func (p *Pexels) Search(ctx context.Context, term string) ([]Candidate, error) {
	q := url.Values{}
	q.Set("query", term)
	q.Set("per_page", strconv.Itoa(p.PerPage))
	q.Set("orientation", "landscape")

	var resp pexelsResponse
	if err := getJSON(ctx, p.Client, p.BaseURL+"/videos/search?"+q.Encode(), p.APIKey, &resp); err != nil {
		return nil, fmt.Errorf("pexels search %q: %w", term, err)
	}

	var out []Candidate
	for _, v := range resp.Videos {
		if f, ok := pickFile(v.VideoFiles, p.MinWidth); ok {
			out = append(out, Candidate{URL: f.Link, Width: f.Width, Height: f.Height, Quality: f.Quality})
		}
	}
	return out, nil
}

// pickFile prefers an hd rendition at least minWidth wide, then any file
// with a link.
func pickFile(files []pexelsFile, minWidth int) (pexelsFile, bool) {
	if f, ok := lo.Find(files, func(f pexelsFile) bool {
		return f.Quality == "hd" && f.Width >= minWidth && f.Link != ""
	}); ok {
		return f, true
	}
	return lo.Find(files, func(f pexelsFile) bool { return f.Link != "" })
}

// Unsplash searches landscape stills
type Unsplash struct {
	BaseURL string
	APIKey  string
	PerPage int
	Client  *http.Client
}

func (u *Unsplash) Name() string          { return "unsplash" }
func (u *Unsplash) Kind() types.AssetKind { return types.AssetImage }

type unsplashResponse struct {
	Results []struct {
		ID     string `json:"id"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		URLs   struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func (u *Unsplash) Search(ctx context.Context, term string) ([]Candidate, error) {
	q := url.Values{}
	q.Set("query", term)
	q.Set("per_page", strconv.Itoa(u.PerPage))
	q.Set("orientation", "landscape")

	var resp unsplashResponse
	if err := getJSON(ctx, u.Client, u.BaseURL+"/search/photos?"+q.Encode(), "Client-ID "+u.APIKey, &resp); err != nil {
		return nil, fmt.Errorf("unsplash search %q: %w", term, err)
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URLs.Regular == "" {
			continue
		}
		out = append(out, Candidate{URL: r.URLs.Regular, Width: r.Width, Height: r.Height, Quality: "regular"})
	}
	return out, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL, auth string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
