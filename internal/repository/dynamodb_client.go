package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"llm-gateway/internal/domain"
)

const (
	pkPrefixSession = "SESSION#"
	skState         = "STATE"
	ttlDuration     = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps each session as a single item in a DynamoDB table.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ SessionStore = (*DynamoStore)(nil)

// NewDynamoStore creates a session store over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func sessionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefixSession + id},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// GetSession reads a session with a strongly consistent read so a get after
// a completed put always observes it. A missing item is an empty session.
func (s *DynamoStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Session{}, errors.New("repository: GetSession: id is required")
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            sessionKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.NewSession(id), nil
	}

	session, err := itemToSession(id, out.Item)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	return session, nil
}

// PutSession replaces the stored messages. No condition expression: the
// last completed write wins.
func (s *DynamoStore) PutSession(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("repository: PutSession: id is required")
	}
	now := s.now().UTC()
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      sessionItem(session, now),
	})
	if err != nil {
		return fmt.Errorf("repository: PutSession: %w", err)
	}
	return nil
}

func sessionItem(session domain.Session, now time.Time) map[string]types.AttributeValue {
	item := sessionKey(session.ID)
	item["sessionId"] = &types.AttributeValueMemberS{Value: session.ID}
	item["messages"] = &types.AttributeValueMemberL{Value: messagesAttr(session.Messages)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttlDuration).Unix(), 10)}
	return item
}

func messagesAttr(msgs []domain.Message) []types.AttributeValue {
	out := make([]types.AttributeValue, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"role":    &types.AttributeValueMemberS{Value: m.Role},
			"content": &types.AttributeValueMemberS{Value: m.Content},
		}})
	}
	return out
}

func itemToSession(id string, item map[string]types.AttributeValue) (domain.Session, error) {
	session := domain.NewSession(id)
	if raw, ok := item["messages"]; ok {
		list, ok := raw.(*types.AttributeValueMemberL)
		if !ok {
			return domain.Session{}, errors.New("repository: attribute \"messages\" is not a list")
		}
		for i, v := range list.Value {
			m, ok := v.(*types.AttributeValueMemberM)
			if !ok {
				return domain.Session{}, fmt.Errorf("repository: message %d is not a map", i)
			}
			role, err := strAttr(m.Value, "role")
			if err != nil {
				return domain.Session{}, err
			}
			content, err := strAttr(m.Value, "content")
			if err != nil {
				return domain.Session{}, err
			}
			session.Messages = append(session.Messages, domain.Message{Role: role, Content: content})
		}
	}
	if updated, err := strAttr(item, "updatedAt"); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			session.UpdatedAt = ts
		}
	}
	return session, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
