package research

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	"github.com/vartanbeno/go-reddit/v2/reddit"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

// hookWords boost a topic when they appear in its title
var hookWords = []string{
	"how", "why", "mistake", "secret", "guide", "beginner", "explained",
	"strategy", "future", "crash", "boom", "lesson", "truth", "myth",
}

// Topic is a candidate essay title with where it came from.
type Topic struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Score       int       `json:"score"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// PostLister is the slice of the reddit client the suggester needs;
// *reddit.SubredditService satisfies it.
type PostLister interface {
	TopPosts(ctx context.Context, subreddit string, opts *reddit.ListPostOptions) ([]*reddit.Post, *reddit.Response, error)
}

type FeedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

// Suggester proposes titles for a category from its subreddits and feeds.
type Suggester struct {
	cfg    config.ResearchConfig
	reddit PostLister
	feeds  FeedParser
	log    *slog.Logger
	now    func() time.Time
}

// New builds a Suggester on a read-only reddit client and a gofeed parser.
func New(cfg config.ResearchConfig, client *http.Client, logger *slog.Logger) (*Suggester, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	rc, err := reddit.NewReadonlyClient(reddit.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	parser := gofeed.NewParser()
	parser.Client = client
	return NewWith(cfg, rc.Subreddit, parser, logger), nil
}

func NewWith(cfg config.ResearchConfig, posts PostLister, feeds FeedParser, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{
		cfg:    cfg,
		reddit: posts,
		feeds:  feeds,
		log:    logger.With("component", "research"),
		now:    time.Now,
	}
}

// Suggest returns up to cfg.Limit scored topics for category, best first.
// Source failures are logged and skipped; an error is returned only when
// every source failed.
func (s *Suggester) Suggest(ctx context.Context, category string) ([]Topic, error) {
	key := string(types.NormalizeCategory(category))
	subs := s.cfg.Subreddits[key]
	feeds := s.cfg.Feeds[key]
	if len(subs) == 0 && len(feeds) == 0 {
		return nil, types.NewError(types.KindInvalidRequest, "suggest", fmt.Errorf("no sources for category %q", category))
	}

	var candidates []Topic
	failures := 0
	for _, sub := range subs {
		topics, err := s.fromSubreddit(ctx, sub)
		if err != nil {
			failures++
			s.log.Warn("subreddit failed", "subreddit", sub, "error", err)
			continue
		}
		candidates = append(candidates, topics...)
	}
	for _, u := range feeds {
		topics, err := s.fromFeed(ctx, u)
		if err != nil {
			failures++
			s.log.Warn("feed failed", "feed", u, "error", err)
			continue
		}
		candidates = append(candidates, topics...)
	}
	if failures == len(subs)+len(feeds) {
		return nil, types.NewError(types.KindProviderError, "suggest", fmt.Errorf("all %d sources failed", failures))
	}

	for i := range candidates {
		candidates[i].Score = s.score(candidates[i])
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	candidates = lo.UniqBy(candidates, func(t Topic) string { return normalizeTitle(t.Title) })
	if s.cfg.Limit > 0 && len(candidates) > s.cfg.Limit {
		candidates = candidates[:s.cfg.Limit]
	}
	s.log.Info("topics suggested", "category", key, "count", len(candidates))
	return candidates, nil
}

func (s *Suggester) fromSubreddit(ctx context.Context, sub string) ([]Topic, error) {
	posts, _, err := s.reddit.TopPosts(ctx, sub, &reddit.ListPostOptions{
		ListOptions: reddit.ListOptions{Limit: 25},
		Time:        s.cfg.TimeFilter,
	})
	if err != nil {
		return nil, err
	}

	var out []Topic
	for _, p := range posts {
		if p == nil || p.Score < s.cfg.MinScore || strings.TrimSpace(p.Title) == "" {
			continue
		}
		t := Topic{
			Title:  strings.TrimSpace(p.Title),
			Source: "r/" + sub,
			URL:    "https://reddit.com" + p.Permalink,
			Score:  p.Score,
		}
		if p.Created != nil {
			t.PublishedAt = p.Created.Time
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Suggester) fromFeed(ctx context.Context, feedURL string) ([]Topic, error) {
	feed, err := s.feeds.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	var out []Topic
	for _, item := range feed.Items {
		if strings.TrimSpace(item.Title) == "" {
			continue
		}
		t := Topic{Title: strings.TrimSpace(item.Title), Source: feed.Title, URL: item.Link}
		if item.PublishedParsed != nil {
			t.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			t.PublishedAt = *item.UpdatedParsed
		}
		out = append(out, t)
	}
	return out, nil
}

// score keeps the reddit upvotes as a base and adds hook and recency bonuses.
func (s *Suggester) score(t Topic) int {
	score := t.Score
	lower := strings.ToLower(t.Title)
	for _, w := range hookWords {
		if strings.Contains(lower, w) {
			score += 50
		}
	}
	if !t.PublishedAt.IsZero() && s.now().Sub(t.PublishedAt) < 72*time.Hour {
		score += 200
	}
	return score
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
