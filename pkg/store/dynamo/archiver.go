// Package dynamo archives relay records to a DynamoDB table keyed
// PK=SESSION#<session_id>, SK=MSG#<message_id> or ACK#<message_id>, with a
// native TTL attribute so the table prunes itself.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tinyland-inc/relayclaw/pkg/relay"
)

const (
	skPrefixMsg = "MSG#"
	skPrefixAck = "ACK#"

	// DynamoDB caps BatchWriteItem at 25 requests.
	maxBatchWrite = 25
)

// dynamodbAPI is the minimal DynamoDB interface required by Archiver.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Archiver writes delivered messages and ack records to one table.
type Archiver struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func New(api dynamodbAPI, tableName string, ttlDays int) (*Archiver, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	if ttlDays <= 0 {
		ttlDays = 30
	}
	return &Archiver{
		api:       api,
		tableName: tableName,
		ttl:       time.Duration(ttlDays) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

// NewFromEnv builds an Archiver using the default AWS credential chain.
func NewFromEnv(ctx context.Context, region, tableName string, ttlDays int) (*Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: loading aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), tableName, ttlDays)
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

func (a *Archiver) ttlValue() int64 {
	return a.now().Add(a.ttl).Unix()
}

func (a *Archiver) messageItem(msg relay.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: sessionPK(msg.SessionID)},
		"SK":          &types.AttributeValueMemberS{Value: skPrefixMsg + msg.ID},
		"channel_id":  &types.AttributeValueMemberS{Value: msg.ChannelID},
		"author_id":   &types.AttributeValueMemberS{Value: msg.Author.ID},
		"content":     &types.AttributeValueMemberS{Value: msg.Content},
		"received_at": &types.AttributeValueMemberS{Value: msg.ReceivedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":         &types.AttributeValueMemberN{Value: strconv.FormatInt(a.ttlValue(), 10)},
	}
}

// ArchiveMessages writes a drained batch, chunked to the BatchWriteItem
// limit. Unprocessed items from throttling are retried once, then dropped.
func (a *Archiver) ArchiveMessages(ctx context.Context, msgs []relay.Message) error {
	for start := 0; start < len(msgs); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(msgs))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, msg := range msgs[start:end] {
			requests = append(requests, types.WriteRequest{
				PutRequest: &types.PutRequest{Item: a.messageItem(msg)},
			})
		}

		out, err := a.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{a.tableName: requests},
		})
		if err != nil {
			return fmt.Errorf("dynamo: ArchiveMessages batch write: %w", err)
		}

		if leftover := out.UnprocessedItems[a.tableName]; len(leftover) > 0 {
			_, err = a.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{a.tableName: leftover},
			})
			if err != nil {
				return fmt.Errorf("dynamo: ArchiveMessages retry: %w", err)
			}
		}
	}
	return nil
}

func (a *Archiver) ArchiveAck(ctx context.Context, rec relay.AckRecord) error {
	_, err := a.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
			"SK":       &types.AttributeValueMemberS{Value: skPrefixAck + rec.MessageID},
			"status":   &types.AttributeValueMemberS{Value: rec.Status},
			"acked_at": &types.AttributeValueMemberS{Value: rec.Timestamp.UTC().Format(time.RFC3339Nano)},
			"ttl":      &types.AttributeValueMemberN{Value: strconv.FormatInt(a.ttlValue(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamo: ArchiveAck: %w", err)
	}
	return nil
}
