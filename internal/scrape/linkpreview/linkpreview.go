package linkpreview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"inspirations/internal/domain/models"
	"inspirations/internal/lib/logger/sl"
	"inspirations/internal/scrape/netguard"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

var (
	ErrNoPreviewImage = errors.New("no preview image found")
	ErrNotAnImage     = errors.New("response is not an image")
	ErrTooLarge       = errors.New("response exceeds size limit")
)

type Options struct {
	UserAgent     string
	MaxPageBytes  int64
	MaxImageBytes int64
	FallbackURL   string
	RatePerSecond float64
}

// Fetcher builds link previews from a page's Open Graph tags, falling back to
// a metadata service when the page yields no usable image.
type Fetcher struct {
	log     *slog.Logger
	guard   *netguard.Guard
	http    *http.Client
	limiter *rate.Limiter
	opts    Options
}

func New(log *slog.Logger, guard *netguard.Guard, httpClient *http.Client, opts Options) *Fetcher {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.MaxPageBytes <= 0 {
		opts.MaxPageBytes = 2 << 20
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 10 << 20
	}

	return &Fetcher{
		log:     log,
		guard:   guard,
		http:    guard.Client(httpClient),
		limiter: rate.NewLimiter(limit, 1),
		opts:    opts,
	}
}

type pageMeta struct {
	title       string
	description string
	images      []string
}

// Preview resolves rawURL into a title, description and downloaded image.
func (f *Fetcher) Preview(ctx context.Context, rawURL string) (models.LinkPreview, error) {
	const op = "linkpreview.Fetcher.Preview"

	normalized, ok := netguard.NormalizeURL(rawURL)
	if !ok {
		return models.LinkPreview{}, fmt.Errorf("%s: %w", op, netguard.ErrInvalidURL)
	}

	log := f.log.With(slog.String("op", op), slog.String("url", normalized))

	pageURL, err := f.guard.Check(ctx, normalized)
	if err != nil {
		return models.LinkPreview{}, fmt.Errorf("%s: %w", op, err)
	}

	preview := models.LinkPreview{URL: normalized}

	meta, err := f.fetchPage(ctx, pageURL)
	if err != nil {
		log.Warn("page fetch failed", sl.Err(err))
	}
	preview.Title = meta.title
	preview.Description = meta.description

	for _, candidate := range meta.images {
		img, err := f.download(ctx, candidate)
		if err != nil {
			log.Debug("image candidate rejected", slog.String("image", candidate), sl.Err(err))
			continue
		}
		preview.Image = img
		preview.ImageURL = candidate
		break
	}

	if preview.Image == nil && f.opts.FallbackURL != "" {
		fb, err := f.fallback(ctx, normalized)
		if err != nil {
			log.Warn("fallback metadata failed", sl.Err(err))
		} else {
			if preview.Title == "" {
				preview.Title = fb.title
			}
			if preview.Description == "" {
				preview.Description = fb.description
			}
			for _, candidate := range fb.images {
				img, err := f.download(ctx, candidate)
				if err != nil {
					log.Debug("fallback image rejected", slog.String("image", candidate), sl.Err(err))
					continue
				}
				preview.Image = img
				preview.ImageURL = candidate
				break
			}
		}
	}

	if preview.Image == nil {
		return models.LinkPreview{}, fmt.Errorf("%s: %w", op, ErrNoPreviewImage)
	}

	if preview.Title == "" {
		preview.Title = pageURL.Hostname()
	}

	return preview, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, pageURL *url.URL) (pageMeta, error) {
	resp, err := f.get(ctx, pageURL.String(), "text/html,application/xhtml+xml")
	if err != nil {
		return pageMeta{images: []string{faviconURL(pageURL)}}, err
	}
	defer resp.Body.Close()

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	if resp.StatusCode != http.StatusOK {
		return pageMeta{images: []string{faviconURL(base)}}, fmt.Errorf("page status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.opts.MaxPageBytes))
	if err != nil {
		return pageMeta{images: []string{faviconURL(base)}}, err
	}

	return parseMeta(doc, base), nil
}

func parseMeta(doc *goquery.Document, base *url.URL) pageMeta {
	meta := pageMeta{
		title: firstNonEmpty(
			metaContent(doc, "og:title"),
			metaContent(doc, "twitter:title"),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		description: firstNonEmpty(
			metaContent(doc, "og:description"),
			metaContent(doc, "description"),
			metaContent(doc, "twitter:description"),
		),
	}

	seen := map[string]bool{}
	add := func(ref string) {
		abs := resolve(base, ref)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		meta.images = append(meta.images, abs)
	}

	for _, name := range []string{"og:image", "og:image:url", "og:image:secure_url", "twitter:image", "twitter:image:src"} {
		add(metaContent(doc, name))
	}
	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if rel == "icon" || rel == "shortcut icon" || rel == "apple-touch-icon" {
			add(s.AttrOr("href", ""))
		}
	})
	add(faviconURL(base))

	return meta
}

// metaContent reads <meta property=name> or <meta name=name>.
func metaContent(doc *goquery.Document, name string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, name, name)).First()
	return strings.TrimSpace(sel.AttrOr("content", ""))
}

func (f *Fetcher) download(ctx context.Context, imageURL string) (*models.RemoteObject, error) {
	if _, err := f.guard.Check(ctx, imageURL); err != nil {
		return nil, err
	}

	resp, err := f.get(ctx, imageURL, "image/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image status %d", resp.StatusCode)
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotAnImage, contentType)
	}
	if resp.ContentLength > f.opts.MaxImageBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.opts.MaxImageBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrNotAnImage)
	}

	return &models.RemoteObject{
		SourceURL:   imageURL,
		ContentType: contentType,
		Data:        data,
	}, nil
}

type fallbackResponse struct {
	Status string `json:"status"`
	Data   struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Image       *struct {
			URL string `json:"url"`
		} `json:"image"`
		Logo *struct {
			URL string `json:"url"`
		} `json:"logo"`
	} `json:"data"`
}

func (f *Fetcher) fallback(ctx context.Context, pageURL string) (pageMeta, error) {
	endpoint, err := url.Parse(f.opts.FallbackURL)
	if err != nil {
		return pageMeta{}, err
	}
	q := endpoint.Query()
	q.Set("url", pageURL)
	endpoint.RawQuery = q.Encode()

	resp, err := f.get(ctx, endpoint.String(), "application/json")
	if err != nil {
		return pageMeta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pageMeta{}, fmt.Errorf("fallback status %d", resp.StatusCode)
	}

	var out fallbackResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, f.opts.MaxPageBytes)).Decode(&out); err != nil {
		return pageMeta{}, fmt.Errorf("decode fallback: %w", err)
	}
	if out.Status != "success" {
		return pageMeta{}, fmt.Errorf("fallback status %q", out.Status)
	}

	meta := pageMeta{title: out.Data.Title, description: out.Data.Description}
	if out.Data.Image != nil && out.Data.Image.URL != "" {
		meta.images = append(meta.images, out.Data.Image.URL)
	}
	if out.Data.Logo != nil && out.Data.Logo.URL != "" {
		meta.images = append(meta.images, out.Data.Logo.URL)
	}

	return meta, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	return f.http.Do(req)
}

func faviconURL(base *url.URL) string {
	return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
