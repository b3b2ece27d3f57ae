package clix

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"bottle/internal/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseCommunity reads an optional --community flag. Empty means all.
func ParseCommunity(flags *pflag.FlagSet) (models.Community, error) {
	raw, _ := flags.GetString("community")
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return models.ParseCommunity(raw)
}

// ParseFeedArgs accepts either "<id>@<community>" or "<community> <id>".
func ParseFeedArgs(args []string) (models.FeedID, error) {
	switch len(args) {
	case 1:
		return models.ParseFeedID(args[0])
	case 2:
		community, err := models.ParseCommunity(args[0])
		if err != nil {
			return models.FeedID{}, err
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return models.FeedID{}, fmt.Errorf("%w: invalid feed id %q", models.ErrInvalidInput, args[1])
		}
		return models.FeedID{Community: community, FeedID: id}, nil
	}
	return models.FeedID{}, fmt.Errorf("%w: expected <id>@<community> or <community> <id>", models.ErrInvalidInput)
}

// ParseJSON reads a flag holding a JSON object.
func ParseJSON(flags *pflag.FlagSet, name string) (json.RawMessage, error) {
	raw, _ := flags.GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: --%s is required", models.ErrInvalidInput, name)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("%w: --%s is not valid JSON", models.ErrInvalidInput, name)
	}
	return json.RawMessage(raw), nil
}

// ParseOptionalPositive returns nil unless the flag was set.
func ParseOptionalPositive(flags *pflag.FlagSet, name string) (*int, error) {
	if !flags.Changed(name) {
		return nil, nil
	}
	v, err := flags.GetInt(name)
	if err != nil {
		return nil, err
	}
	if v <= 0 {
		return nil, fmt.Errorf("%w: --%s must be positive", models.ErrInvalidInput, name)
	}
	return &v, nil
}
