package redis

import (
	"fmt"

	"context"

	"github.com/redis/rueidis"

	"github.com/streamtag/streamtag/internal/db"
)

// BulkWrite submits all commands in a single DoMulti round-trip. Each
// command gets its own outcome: a store-reported command error is recorded
// per item, while a network or context error fails the whole submission so
// the caller can retry it atomically.
func (s *Store) BulkWrite(ctx context.Context, cmds []db.BulkCommand) ([]db.BulkOutcome, error) {
	if len(cmds) == 0 {
		return nil, nil
	}

	completed := make([]rueidis.Completed, len(cmds))
	for i, c := range cmds {
		built, err := s.buildBulkCommand(c)
		if err != nil {
			return nil, err
		}
		completed[i] = built
	}

	results := s.client.DoMulti(ctx, completed...)

	outcomes := make([]db.BulkOutcome, len(results))
	for i, res := range results {
		outcome := db.BulkOutcome{Key: cmds[i].Key}
		if err := res.Error(); err != nil {
			if _, ok := rueidis.IsRedisErr(err); !ok {
				// Not a server verdict: the submission itself failed.
				return nil, &db.Error{Op: cmds[i].Op, Err: err}
			}
			outcome.Err = &db.Error{Op: cmds[i].Op, Err: err}
		}
		outcomes[i] = outcome
	}

	return outcomes, nil
}

func (s *Store) buildBulkCommand(c db.BulkCommand) (rueidis.Completed, error) {
	switch c.Op {
	case db.OpJSONSet:
		return s.b().Arbitrary("JSON.SET").Keys(c.Key).Args("$", string(c.Data)).Build(), nil
	case db.OpHSet:
		cmd := s.b().Hset().Key(c.Key).FieldValue()
		for k, v := range c.Fields {
			cmd = cmd.FieldValue(k, v)
		}
		return cmd.Build(), nil
	case db.OpDel:
		return s.b().Del().Key(c.Key).Build(), nil
	default:
		return rueidis.Completed{}, fmt.Errorf("unsupported bulk op %q for key %s", c.Op, c.Key)
	}
}
