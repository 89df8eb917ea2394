package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pdf-chat/internal/domain"
)

const (
	pkPrefixList = "LIST#"
	skSources    = "SOURCES"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoStore keeps the source list as a JSON attribute on a single item.
//
// The item carries a version number. Save only succeeds when the stored
// version is the one seen by the last Load, and returns ErrConflict otherwise,
// so writers that loaded a stale list cannot overwrite newer changes.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time

	mu      sync.Mutex
	version int64
}

// NewDynamoStore creates a store backed by tableName.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func listKey() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pkPrefixList + SourcesKey},
		"SK": &types.AttributeValueMemberS{Value: skSources},
	}
}

// Load reads the source list. A missing item is an empty list.
func (s *DynamoStore) Load(ctx context.Context) ([]domain.Source, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            listKey(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		s.setVersion(0)
		return []domain.Source{}, nil
	}

	version, err := versionAttr(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: Load: %w", err)
	}
	raw, err := strAttr(out.Item, "sources")
	if err != nil {
		return nil, fmt.Errorf("repository: Load: %w", err)
	}
	sources, err := decodeSources([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("repository: Load: %w", err)
	}
	s.setVersion(version)
	return sources, nil
}

// Save replaces the stored source list if nobody else wrote it since the last
// Load.
func (s *DynamoStore) Save(ctx context.Context, sources []domain.Source) error {
	data, err := encodeSources(sources)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.version + 1

	item := listKey()
	item["sources"] = &types.AttributeValueMemberS{Value: string(data)}
	item["count"] = &types.AttributeValueMemberN{Value: strconv.Itoa(len(sources))}
	item["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)}

	in := &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ExpressionAttributeNames: map[string]string{"#v": "version"},
	}
	if s.version == 0 {
		in.ConditionExpression = aws.String("attribute_not_exists(#v)")
	} else {
		in.ConditionExpression = aws.String("#v = :v")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.version, 10)},
		}
	}

	if _, err := s.api.PutItem(ctx, in); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("repository: Save: %w", ErrConflict)
		}
		return fmt.Errorf("repository: Save put item: %w", err)
	}
	s.version = next
	return nil
}

func (s *DynamoStore) setVersion(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// versionAttr reads the optional version attribute. Items written before
// versioning count as version 0.
func versionAttr(item map[string]types.AttributeValue) (int64, error) {
	v, ok := item["version"]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("repository: attribute \"version\" is not a number")
	}
	version, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse version: %w", err)
	}
	return version, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	str, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return str.Value, nil
}
