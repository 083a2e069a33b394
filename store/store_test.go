package store

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/engagement"
)

func sampleTick(subject, course string, at time.Time, focus float64) engagement.Tick {
	return engagement.Tick{
		SubjectID:        subject,
		CourseID:         course,
		Timestamp:        at,
		FocusScore:       focus,
		FrustrationScore: 0.25,
		RawObservations:  json.RawMessage(`{"face":{"kind":"face","available":true}}`),
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	id, err := m.AppendTick(ctx, sampleTick("s1", "c1", now, 0.4))
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "generated ids are uuids")

	_, err = m.AppendTick(ctx, sampleTick("s2", "", now, 0.7))
	require.NoError(t, err)
	_, err = m.AppendTick(ctx, sampleTick("s1", "c1", now.Add(time.Second), 0.5))
	require.NoError(t, err)
	ticks, err := m.Ticks(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 2)
	ticks, err = m.Ticks(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	assert.Equal(t, 0.5, ticks[0].FocusScore, "limit keeps the most recent")
	ticks, _ = m.Ticks(ctx, "s2", 0)
	assert.Len(t, ticks, 1)

	_, ok, err := m.LiveState(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.UpsertLiveState(ctx, engagement.LiveState{SubjectID: "s1", CourseID: "c1", LatestFocusScore: 0.4, IsMonitoring: true}))
	require.NoError(t, m.UpsertLiveState(ctx, engagement.LiveState{SubjectID: "s1", CourseID: "c1", LatestFocusScore: 0.6, IsMonitoring: true}))
	live, ok, _ := m.LiveState(ctx, "s1", "c1")
	require.True(t, ok)
	assert.Equal(t, 0.6, live.LatestFocusScore)

	require.NoError(t, m.EndMonitoring(ctx, "s1", "c1"))
	live, _, _ = m.LiveState(ctx, "s1", "c1")
	assert.False(t, live.IsMonitoring)

	require.NoError(t, m.EndMonitoring(ctx, "nobody", "c1"))
	_, ok, _ = m.LiveState(ctx, "nobody", "c1")
	assert.False(t, ok)
}

func TestMemoryStoreConcurrentAppends(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = m.AppendTick(context.Background(), sampleTick("s", "c", time.Now(), 0.5))
			}
		}()
	}
	wg.Wait()
	ticks, err := m.Ticks(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Len(t, ticks, 400)
}

func TestOpenMemoryAndUnknownDriver(t *testing.T) {
	st, closer, err := Open(context.Background(), cfg.Store{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)
	require.NoError(t, closer.Close())

	_, _, err = Open(context.Background(), cfg.Store{Driver: "sqlite"})
	assert.Error(t, err)
}

// fakeDynamo keeps items keyed by PK/SK and implements the parts of the
// query language Dynamo uses.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func attrS(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func itemKey(k map[string]types.AttributeValue) string {
	return attrS(k["PK"]) + "|" + attrS(k["SK"])
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemKey(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: new(string)}
	}
	item["isMonitoring"] = in.ExpressionAttributeValues[":f"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := attrS(in.ExpressionAttributeValues[":pk"])
	prefix := attrS(in.ExpressionAttributeValues[":sk"])
	var keys []string
	for k := range f.items {
		if strings.HasPrefix(k, pk+"|"+prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &dynamodb.QueryOutput{}
	for _, k := range keys {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func TestDynamoStore(t *testing.T) {
	ctx := context.Background()
	api := newFakeDynamo()
	d := NewDynamo(api, "edmo-engagement")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base.Add(2 * time.Second), base, base.Add(500 * time.Millisecond)} {
		_, err := d.AppendTick(ctx, sampleTick("s1", "c1", at, float64(i)/10))
		require.NoError(t, err)
	}

	recent, err := d.Ticks(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[1].Timestamp.Equal(base.Add(2*time.Second)))

	ticks, err := d.Ticks(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.True(t, ticks[0].Timestamp.Equal(base))
	assert.True(t, ticks[1].Timestamp.Equal(base.Add(500*time.Millisecond)))
	assert.True(t, ticks[2].Timestamp.Equal(base.Add(2*time.Second)))
	assert.JSONEq(t, `{"face":{"kind":"face","available":true}}`, string(ticks[0].RawObservations))

	require.NoError(t, d.EndMonitoring(ctx, "s1", "c1"), "missing live row is not an error")

	require.NoError(t, d.UpsertLiveState(ctx, engagement.LiveState{
		SubjectID: "s1", CourseID: "c1", LatestFocusScore: 0.8, FrustrationLevel: 0.1,
		LastUpdated: base, IsMonitoring: true,
	}))
	live, ok, err := d.LiveState(ctx, "s1", "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.8, live.LatestFocusScore)
	assert.True(t, live.IsMonitoring)
	assert.True(t, live.LastUpdated.Equal(base))

	require.NoError(t, d.EndMonitoring(ctx, "s1", "c1"))
	live, _, err = d.LiveState(ctx, "s1", "c1")
	require.NoError(t, err)
	assert.False(t, live.IsMonitoring)
	assert.Equal(t, 0.8, live.LatestFocusScore)

	_, ok, err = d.LiveState(ctx, "s1", "other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("EDMO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EDMO_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer p.Close()

	subject := "test-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err = p.AppendTick(ctx, sampleTick(subject, "", now, 0.3))
	require.NoError(t, err)
	_, err = p.AppendTick(ctx, sampleTick(subject, "c1", now.Add(time.Second), 0.6))
	require.NoError(t, err)

	ticks, err := p.Ticks(ctx, subject, 10)
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, "", ticks[0].CourseID)
	assert.Equal(t, 0.6, ticks[1].FocusScore)
	assert.JSONEq(t, `{"face":{"kind":"face","available":true}}`, string(ticks[1].RawObservations))

	require.NoError(t, p.UpsertLiveState(ctx, engagement.LiveState{SubjectID: subject, CourseID: "c1", LatestFocusScore: 0.6, LastUpdated: now, IsMonitoring: true}))
	require.NoError(t, p.UpsertLiveState(ctx, engagement.LiveState{SubjectID: subject, CourseID: "c1", LatestFocusScore: 0.9, LastUpdated: now, IsMonitoring: true}))
	require.NoError(t, p.EndMonitoring(ctx, subject, "c1"))

	live, ok, err := p.LiveState(ctx, subject, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, live.LatestFocusScore)
	assert.False(t, live.IsMonitoring)
}
