package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/streamtag/streamtag/internal/db"
)

// SearchList performs paginated search via FT.SEARCH.
func (s *Store) SearchList(
	ctx context.Context, index, query string, offset, limit int, fields []string,
) (*db.SearchResult, error) {
	args := []string{index, query, "LIMIT", strconv.Itoa(offset), strconv.Itoa(limit)}

	if len(fields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	return parseListResult(raw)
}

// SearchCountMulti runs every query as an FT.SEARCH count (LIMIT 0 0) in a
// single DoMulti round-trip and returns the hit totals, parallel to queries.
// A query the store rejects (syntax error) yields -1 rather than failing its
// siblings; a network or context error fails the whole call.
func (s *Store) SearchCountMulti(ctx context.Context, index string, queries []string) ([]int, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(queries))
	for i, q := range queries {
		cmds[i] = s.b().Arbitrary("FT.SEARCH").Args(index, q, "LIMIT", "0", "0").Build()
	}

	results := s.client.DoMulti(ctx, cmds...)

	counts := make([]int, len(results))
	for i, res := range results {
		raw, err := res.ToArray()
		if err != nil {
			if _, ok := rueidis.IsRedisErr(err); ok {
				counts[i] = -1
				continue
			}
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		if len(raw) == 0 {
			counts[i] = 0
			continue
		}
		total, err := raw[0].AsInt64()
		if err != nil {
			return nil, fmt.Errorf("parse count for query %d: %w", i, err)
		}
		counts[i] = int(total)
	}

	return counts, nil
}

func parseListResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, total)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}
