package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bottle/internal/models"
)

// Params is the decoded, community-specific configuration of a feed. The set
// of implementations is closed.
type Params interface {
	Community() models.Community
	// Directional feeds keep a cursor pair and catch up in both directions.
	Directional() bool
	Validate() error
	isParams()
}

type PixivParams struct {
	Kind        string `json:"kind"`
	UserID      int64  `json:"user_id,omitempty"`
	Restriction string `json:"restriction,omitempty"`
	Query       string `json:"query,omitempty"`
}

type TwitterParams struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id,omitempty"`
	Query  string `json:"query,omitempty"`
}

type YandereParams struct {
	Kind   string `json:"kind"`
	Tags   string `json:"tags,omitempty"`
	PoolID int64  `json:"pool_id,omitempty"`
}

type PandaParams struct {
	Kind  string `json:"kind"`
	Query string `json:"query,omitempty"`
	// FavoriteSlot selects one favorites folder, nil means all of them.
	FavoriteSlot *int `json:"favorite_slot,omitempty"`
}

func (PixivParams) Community() models.Community   { return models.CommunityPixiv }
func (TwitterParams) Community() models.Community { return models.CommunityTwitter }
func (YandereParams) Community() models.Community { return models.CommunityYandere }
func (PandaParams) Community() models.Community   { return models.CommunityPanda }

func (p PixivParams) Directional() bool   { return p.Kind == models.FeedKindBookmarks }
func (p TwitterParams) Directional() bool { return p.Kind == models.FeedKindLikes }
func (YandereParams) Directional() bool   { return false }
func (p PandaParams) Directional() bool {
	return p.Kind == models.FeedKindSearch || p.Kind == models.FeedKindWatched
}

func (PixivParams) isParams()   {}
func (TwitterParams) isParams() {}
func (YandereParams) isParams() {}
func (PandaParams) isParams()   {}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (p PixivParams) Validate() error {
	switch p.Kind {
	case models.FeedKindTimeline:
		return nil
	case models.FeedKindBookmarks:
		if p.UserID <= 0 {
			return invalid("pixiv bookmarks need a user_id")
		}
		if p.Restriction != "" && p.Restriction != "public" && p.Restriction != "private" {
			return invalid("pixiv restriction must be public or private, got %q", p.Restriction)
		}
		return nil
	case models.FeedKindPosts:
		if p.UserID <= 0 {
			return invalid("pixiv posts need a user_id")
		}
		return nil
	case models.FeedKindSearch:
		if strings.TrimSpace(p.Query) == "" {
			return invalid("pixiv search needs a query")
		}
		return nil
	}
	return invalid("unknown pixiv feed kind %q", p.Kind)
}

func (p TwitterParams) Validate() error {
	switch p.Kind {
	case models.FeedKindTimeline:
		return nil
	case models.FeedKindLikes, models.FeedKindPosts:
		if p.UserID <= 0 {
			return invalid("twitter %s need a user_id", p.Kind)
		}
		return nil
	case models.FeedKindSearch:
		if strings.TrimSpace(p.Query) == "" {
			return invalid("twitter search needs a query")
		}
		return nil
	}
	return invalid("unknown twitter feed kind %q", p.Kind)
}

func (p YandereParams) Validate() error {
	switch p.Kind {
	case models.FeedKindTags:
		return nil
	case models.FeedKindPool:
		if p.PoolID <= 0 {
			return invalid("yandere pool needs a pool_id")
		}
		return nil
	}
	return invalid("unknown yandere feed kind %q", p.Kind)
}

func (p PandaParams) Validate() error {
	switch p.Kind {
	case models.FeedKindSearch:
		return nil
	case models.FeedKindWatched:
		return nil
	case models.FeedKindFavorites:
		if p.FavoriteSlot != nil && (*p.FavoriteSlot < 0 || *p.FavoriteSlot > 9) {
			return invalid("panda favorite_slot must be between 0 and 9")
		}
		return nil
	}
	return invalid("unknown panda feed kind %q", p.Kind)
}

// DecodeParams parses the stored params of a feed of the given community.
func DecodeParams(community models.Community, raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		return nil, invalid("feed params are empty")
	}
	var (
		p   Params
		err error
	)
	switch community {
	case models.CommunityPixiv:
		p, err = decode[PixivParams](raw)
	case models.CommunityTwitter:
		p, err = decode[TwitterParams](raw)
	case models.CommunityYandere:
		p, err = decode[YandereParams](raw)
	case models.CommunityPanda:
		p, err = decode[PandaParams](raw)
	default:
		return nil, invalid("unknown community %q", community)
	}
	if err != nil {
		return nil, invalid("decode %s params: %v", community, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func decode[T Params](raw json.RawMessage) (Params, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var errNoClient = errors.New("no client configured for community")
