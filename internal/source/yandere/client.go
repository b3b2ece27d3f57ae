package yandere

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bottle/internal/models"
	"bottle/internal/source"
)

const (
	DefaultBaseURL = "https://yande.re"
	DefaultLimit   = 100
)

// Client reads the public yande.re JSON API.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	limit     int
}

var _ source.YandereClient = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		userAgent: userAgent,
		limit:     DefaultLimit,
	}
}

// post mirrors the fields of /post.json this client uses.
type post struct {
	ID        int64  `json:"id"`
	Tags      string `json:"tags"`
	CreatorID *int64 `json:"creator_id"`
	Author    string `json:"author"`
	CreatedAt int64  `json:"created_at"`
	MD5       string `json:"md5"`
	FileURL   string `json:"file_url"`
	FileExt   string `json:"file_ext"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Posts fetches one page of posts matching the feed's tags or pool.
func (c *Client) Posts(ctx context.Context, params source.YandereParams, req source.PageRequest) (*source.Page, error) {
	tags := params.Tags
	if params.Kind == models.FeedKindPool {
		tags = strings.TrimSpace(fmt.Sprintf("pool:%d %s", params.PoolID, tags))
	}
	page := req.Page
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	q.Set("tags", tags)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.limit))
	endpoint := c.baseURL + "/post.json?" + q.Encode()

	var posts []post
	if err := c.getJSON(ctx, endpoint, &posts); err != nil {
		return nil, err
	}
	return c.toPage(posts), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidURL, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", models.ErrNetwork, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: yandere: %v", models.ErrMalformed, err)
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: yandere returned %s", models.ErrRateLimited, resp.Status)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: yandere returned %s", models.ErrAuthentication, resp.Status)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: yandere returned %s", models.ErrNotFound, resp.Status)
	case code >= 500:
		return fmt.Errorf("%w: yandere returned %s", models.ErrNetwork, resp.Status)
	default:
		return fmt.Errorf("%w: yandere returned %s", models.ErrMalformed, resp.Status)
	}
}

func (c *Client) toPage(posts []post) *source.Page {
	page := &source.Page{HasMore: len(posts) >= c.limit}
	for _, p := range posts {
		userID := p.Author
		if p.CreatorID != nil {
			userID = strconv.FormatInt(*p.CreatorID, 10)
		}
		posted := time.Unix(p.CreatedAt, 0).UTC()
		item := models.Post{
			PostID:   strconv.FormatInt(p.ID, 10),
			UserID:   userID,
			Title:    p.Tags,
			URL:      fmt.Sprintf("%s/post/show/%d", c.baseURL, p.ID),
			PostedAt: &posted,
		}
		if p.FileURL != "" {
			item.Media = []models.Media{{URL: p.FileURL, Filename: filename(p), PageIndex: 0}}
		}
		page.Posts = append(page.Posts, item)

		cursor := &models.Cursor{Value: item.PostID, Rank: p.ID}
		if page.Top == nil || p.ID > page.Top.Rank {
			page.Top = cursor
		}
		if page.Bottom == nil || p.ID < page.Bottom.Rank {
			page.Bottom = cursor
		}
	}
	return page
}

func filename(p post) string {
	if p.MD5 != "" && p.FileExt != "" {
		return p.MD5 + "." + p.FileExt
	}
	u, err := url.Parse(p.FileURL)
	if err != nil {
		return strconv.FormatInt(p.ID, 10)
	}
	name := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
