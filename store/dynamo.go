package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/maastricht-university/edmo-engagement/engagement"
)

// Single-table key layout. Every record of a subject shares the partition
// key; ticks sort chronologically under TICK#, live rows sit under LIVE#.
const (
	pkSubject = "SUBJECT#"
	skTick    = "TICK#"
	skLive    = "LIVE#"

	// tsLayout is fixed-width so sort keys order chronologically.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// DynamoAPI is the subset of the DynamoDB client used by Dynamo.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Dynamo implements engagement.Store on a single DynamoDB table with
// string PK/SK keys.
type Dynamo struct {
	client    DynamoAPI
	tableName string
}

func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

type tickItem struct {
	ID               string  `dynamodbav:"id"`
	SubjectID        string  `dynamodbav:"subjectId"`
	CourseID         string  `dynamodbav:"courseId,omitempty"`
	Timestamp        string  `dynamodbav:"timestamp"`
	FocusScore       float64 `dynamodbav:"focusScore"`
	FrustrationScore float64 `dynamodbav:"frustrationScore"`
	RawObservations  string  `dynamodbav:"rawObservations"`
}

type liveItem struct {
	SubjectID        string  `dynamodbav:"subjectId"`
	CourseID         string  `dynamodbav:"courseId"`
	LatestFocusScore float64 `dynamodbav:"latestFocusScore"`
	FrustrationLevel float64 `dynamodbav:"frustrationLevel"`
	LastUpdated      string  `dynamodbav:"lastUpdated"`
	IsMonitoring     bool    `dynamodbav:"isMonitoring"`
}

func subjectPK(subjectID string) string { return pkSubject + subjectID }

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals data and writes it with the given keys.
func (d *Dynamo) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

func (d *Dynamo) AppendTick(ctx context.Context, t engagement.Tick) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ts := t.Timestamp.UTC().Format(tsLayout)
	item := tickItem{
		ID:               t.ID,
		SubjectID:        t.SubjectID,
		CourseID:         t.CourseID,
		Timestamp:        ts,
		FocusScore:       t.FocusScore,
		FrustrationScore: t.FrustrationScore,
		RawObservations:  string(t.RawObservations),
	}
	if err := d.putItem(ctx, subjectPK(t.SubjectID), skTick+ts+"#"+t.ID, item); err != nil {
		return "", fmt.Errorf("append tick %s: %w", t.ID, err)
	}
	return t.ID, nil
}

func (d *Dynamo) UpsertLiveState(ctx context.Context, s engagement.LiveState) error {
	item := liveItem{
		SubjectID:        s.SubjectID,
		CourseID:         s.CourseID,
		LatestFocusScore: s.LatestFocusScore,
		FrustrationLevel: s.FrustrationLevel,
		LastUpdated:      s.LastUpdated.UTC().Format(tsLayout),
		IsMonitoring:     s.IsMonitoring,
	}
	if err := d.putItem(ctx, subjectPK(s.SubjectID), skLive+s.CourseID, item); err != nil {
		return fmt.Errorf("upsert live state: %w", err)
	}
	return nil
}

// EndMonitoring flips isMonitoring on an existing live row. A missing row is
// left absent.
func (d *Dynamo) EndMonitoring(ctx context.Context, subjectID, courseID string) error {
	pk, sk := subjectPK(subjectID), skLive+courseID
	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &d.tableName,
		Key:                 key(pk, sk),
		UpdateExpression:    aws.String("SET isMonitoring = :f"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// LiveState reads the projection for a subject/course pair.
func (d *Dynamo) LiveState(ctx context.Context, subjectID, courseID string) (engagement.LiveState, bool, error) {
	pk, sk := subjectPK(subjectID), skLive+courseID
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &d.tableName,
		Key:       key(pk, sk),
	})
	if err != nil {
		return engagement.LiveState{}, false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if out.Item == nil {
		return engagement.LiveState{}, false, nil
	}
	var item liveItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return engagement.LiveState{}, false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	updated, _ := time.Parse(tsLayout, item.LastUpdated)
	return engagement.LiveState{
		SubjectID:        item.SubjectID,
		CourseID:         item.CourseID,
		LatestFocusScore: item.LatestFocusScore,
		FrustrationLevel: item.FrustrationLevel,
		LastUpdated:      updated,
		IsMonitoring:     item.IsMonitoring,
	}, true, nil
}

// Ticks returns up to limit of the subject's most recent ticks in
// chronological order; limit <= 0 returns all of them.
func (d *Dynamo) Ticks(ctx context.Context, subjectID string, limit int) ([]engagement.Tick, error) {
	pk := subjectPK(subjectID)
	input := &dynamodb.QueryInput{
		TableName:              &d.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
			":sk": &types.AttributeValueMemberS{Value: skTick},
		},
	}

	var out []engagement.Tick
	for {
		res, err := d.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		for _, raw := range res.Items {
			var it tickItem
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, fmt.Errorf("unmarshal tick: %w", err)
			}
			ts, _ := time.Parse(tsLayout, it.Timestamp)
			out = append(out, engagement.Tick{
				ID:               it.ID,
				SubjectID:        it.SubjectID,
				CourseID:         it.CourseID,
				Timestamp:        ts,
				FocusScore:       it.FocusScore,
				FrustrationScore: it.FrustrationScore,
				RawObservations:  []byte(it.RawObservations),
			})
		}
		if res.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	return lastN(out, limit), nil
}
