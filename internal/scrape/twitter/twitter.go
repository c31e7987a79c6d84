package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const DefaultSyndicationURL = "https://cdn.syndication.twimg.com"

var (
	ErrTweetNotFound   = errors.New("tweet not found")
	ErrInvalidTweetURL = errors.New("invalid twitter/x url or tweet id")
)

var (
	tweetURLPattern = regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status(?:es)?/(\d+)`)
	tweetIDPattern  = regexp.MustCompile(`^[0-9]+$`)
)

var syndicationFeatures = strings.Join([]string{
	"tfw_timeline_list:",
	"tfw_follower_count_sunset:true",
	"tfw_tweet_edit_backend:on",
	"tfw_refsrc_session:on",
	"tfw_fosnr_soft_interventions_enabled:on",
	"tfw_show_birdwatch_pivots_enabled:on",
	"tfw_show_business_verified_badge:on",
	"tfw_duplicate_scribes_to_settings:on",
	"tfw_use_profile_image_shape_enabled:on",
	"tfw_show_blue_verified_badge:on",
	"tfw_legacy_timeline_sunset:true",
	"tfw_show_gov_verified_badge:on",
	"tfw_show_business_affiliate_badge:on",
	"tfw_tweet_edit_frontend:on",
}, ";")

// Client resolves posts through the public syndication endpoint.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	cache   *cache.Cache
}

type Options struct {
	BaseURL       string
	RatePerSecond float64
	CacheTTL      time.Duration
}

func New(log *slog.Logger, httpClient *http.Client, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultSyndicationURL
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Client{
		log:     log,
		http:    httpClient,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		limiter: rate.NewLimiter(limit, 1),
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL),
	}
}

// IsTweetURL reports whether text contains a twitter.com or x.com status link.
func IsTweetURL(text string) bool {
	return tweetURLPattern.MatchString(text)
}

// ExtractTweetID accepts a bare numeric id or a status URL.
func ExtractTweetID(urlOrID string) (string, bool) {
	s := strings.TrimSpace(urlOrID)
	if tweetIDPattern.MatchString(s) {
		return s, true
	}
	if m := tweetURLPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// Resolve fetches and normalizes the post behind urlOrID.
func (c *Client) Resolve(ctx context.Context, urlOrID string) (models.Tweet, error) {
	const op = "twitter.Client.Resolve"

	log := c.log.With(slog.String("op", op))

	id, ok := ExtractTweetID(urlOrID)
	if !ok {
		return models.Tweet{}, fmt.Errorf("%s: %w", op, ErrInvalidTweetURL)
	}

	if cached, found := c.cache.Get(id); found {
		log.Debug("tweet served from cache", slog.String("tweet_id", id))
		return cached.(models.Tweet), nil
	}

	raw, err := c.fetch(ctx, id)
	if err != nil {
		log.Warn("tweet lookup failed", slog.String("tweet_id", id), sl.Err(err))
		return models.Tweet{}, fmt.Errorf("%s: %w", op, err)
	}

	tweet := raw.normalize(id)
	c.cache.SetDefault(id, tweet)

	log.Debug("tweet resolved",
		slog.String("tweet_id", id),
		slog.Int("images", len(tweet.ImageURLs)),
		slog.Int("videos", len(tweet.VideoURLs)),
	)

	return tweet, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*tweetResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("id", id)
	q.Set("lang", "en")
	q.Set("features", syndicationFeatures)
	q.Set("token", Token(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tweet-result?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTweetNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch tweet: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("decode tweet: %w", err)
	}
	if len(generic) == 0 {
		return nil, ErrTweetNotFound
	}

	var result tweetResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode tweet: %w", err)
	}
	if result.Typename == "TweetTombstone" {
		return nil, ErrTweetNotFound
	}

	return &result, nil
}

type tweetResult struct {
	Typename          string         `json:"__typename"`
	Text              string         `json:"text"`
	CreatedAt         string         `json:"created_at"`
	FavoriteCount     int            `json:"favorite_count"`
	ConversationCount int            `json:"conversation_count"`
	User              tweetUser      `json:"user"`
	Photos            []tweetPhoto   `json:"photos"`
	MediaDetails      []mediaDetails `json:"mediaDetails"`
}

type tweetUser struct {
	Name                 string `json:"name"`
	ScreenName           string `json:"screen_name"`
	ProfileImageURLHTTPS string `json:"profile_image_url_https"`
}

type tweetPhoto struct {
	URL string `json:"url"`
}

type mediaDetails struct {
	Type          string `json:"type"`
	MediaURLHTTPS string `json:"media_url_https"`
	VideoInfo     *struct {
		Variants []videoVariant `json:"variants"`
	} `json:"video_info"`
}

type videoVariant struct {
	Bitrate     int    `json:"bitrate"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

func (r *tweetResult) normalize(id string) models.Tweet {
	images := []string{}
	videos := []string{}

	for _, p := range r.Photos {
		images = append(images, p.URL)
	}

	for _, m := range r.MediaDetails {
		switch m.Type {
		case "photo":
			if !slices.Contains(images, m.MediaURLHTTPS) {
				images = append(images, m.MediaURLHTTPS)
			}
		case "video", "animated_gif":
			if m.VideoInfo == nil {
				continue
			}
			if best, ok := bestMP4(m.VideoInfo.Variants); ok {
				videos = append(videos, best)
			}
		}
	}

	return models.Tweet{
		ID:        id,
		Text:      r.Text,
		ImageURLs: images,
		VideoURLs: videos,
		Author: models.Author{
			Name:            r.User.Name,
			Username:        r.User.ScreenName,
			ProfileImageURL: r.User.ProfileImageURLHTTPS,
		},
		CreatedAt: r.CreatedAt,
		Likes:     r.FavoriteCount,
		Replies:   r.ConversationCount,
	}
}

func bestMP4(variants []videoVariant) (string, bool) {
	mp4 := make([]videoVariant, 0, len(variants))
	for _, v := range variants {
		if v.ContentType == "video/mp4" {
			mp4 = append(mp4, v)
		}
	}
	if len(mp4) == 0 {
		return "", false
	}

	sort.SliceStable(mp4, func(i, j int) bool { return mp4[i].Bitrate > mp4[j].Bitrate })
	return mp4[0].URL, true
}
