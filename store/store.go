// Package store persists engagement ticks and the per-enrollment live state.
//
// Three backends implement engagement.Store: an in-process Memory store, a
// Postgres store (sqlx + lib/pq) and a DynamoDB single-table store. Ticks are
// append-only; the live state is one row per subject/course pair, replaced on
// every tick.
package store

import (
	"context"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	cfg "github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/engagement"
)

// Reader reads back what a session persisted.
type Reader interface {
	// Ticks returns up to limit of the subject's most recent ticks, oldest
	// first; limit <= 0 means no limit.
	Ticks(ctx context.Context, subjectID string, limit int) ([]engagement.Tick, error)
	LiveState(ctx context.Context, subjectID, courseID string) (engagement.LiveState, bool, error)
}

// Backend is a store that can be written by the monitor and read back.
type Backend interface {
	engagement.Store
	Reader
}

// Compile-time interface checks.
var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Dynamo)(nil)
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the backend named by c.Driver. The returned Closer releases
// any connection the backend holds.
func Open(ctx context.Context, c cfg.Store) (Backend, io.Closer, error) {
	switch c.Driver {
	case "", "memory":
		return NewMemory(), nopCloser{}, nil
	case "postgres":
		pg, err := OpenPostgres(ctx, c.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg, nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("aws config: %w", err)
		}
		return NewDynamo(dynamodb.NewFromConfig(awsCfg), c.Table), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", c.Driver)
}

func liveKey(subjectID, courseID string) string { return subjectID + "\x00" + courseID }

// lastN keeps the final n elements of ticks; n <= 0 keeps all.
func lastN(ticks []engagement.Tick, n int) []engagement.Tick {
	if n > 0 && len(ticks) > n {
		return ticks[len(ticks)-n:]
	}
	return ticks
}
