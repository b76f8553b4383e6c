package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ResaleScanner/internal/domain"
	"ResaleScanner/internal/ports"
)

const (
	// DynamoBatchLimit is the BatchGetItem key limit.
	DynamoBatchLimit = 100
	maxBatchRounds   = 5
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore persists processing records in a single-key DynamoDB table.
type DynamoStore struct {
	api   DynamoAPI
	table string
}

var _ ports.RecordStore = (*DynamoStore)(nil)

// NewDynamoStore wraps an existing client.
func NewDynamoStore(api DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{api: api, table: table}
}

// NewDynamoStoreFromConfig builds a DynamoDB client; endpoint is optional.
func NewDynamoStoreFromConfig(cfg aws.Config, endpoint, table string) *DynamoStore {
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewDynamoStore(client, table)
}

// BatchLimit reports the maximum keys per BatchGet.
func (s *DynamoStore) BatchLimit() int {
	return DynamoBatchLimit
}

// BatchGet loads the records that exist for keys, following UnprocessedKeys.
func (s *DynamoStore) BatchGet(ctx context.Context, keys []string) (map[string]domain.Record, error) {
	result := make(map[string]domain.Record)
	keys = uniqueKeys(keys)
	if len(keys) == 0 {
		return result, nil
	}
	if len(keys) > DynamoBatchLimit {
		return nil, fmt.Errorf("batch get: %d keys exceeds limit %d", len(keys), DynamoBatchLimit)
	}

	keyAttrs := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, key := range keys {
		keyAttrs = append(keyAttrs, primaryKey(key))
	}
	request := map[string]types.KeysAndAttributes{
		s.table: {Keys: keyAttrs},
	}

	for round := 0; len(request) > 0; round++ {
		if round == maxBatchRounds {
			return nil, fmt.Errorf("batch get: unprocessed keys remain after %d rounds", maxBatchRounds)
		}

		out, err := s.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, fmt.Errorf("batch get item: %w", err)
		}

		for _, item := range out.Responses[s.table] {
			var rec domain.Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			result[rec.ID] = rec
		}
		request = out.UnprocessedKeys
	}

	return result, nil
}

// Upsert applies req in one UpdateItem call: SET for overwrite attributes and
// SET if_not_exists for create-only ones.
func (s *DynamoStore) Upsert(ctx context.Context, req domain.UpsertRequest) error {
	if req.Key == "" {
		return errors.New("upsert: empty key")
	}
	if len(req.Overwrite) == 0 && len(req.CreateOnly) == 0 {
		return fmt.Errorf("upsert %s: no attributes", req.Key)
	}

	var update expression.UpdateBuilder
	for _, name := range sortedNames(req.Overwrite) {
		update = update.Set(expression.Name(name), expression.Value(req.Overwrite[name]))
	}
	for _, name := range sortedNames(req.CreateOnly) {
		if _, dup := req.Overwrite[name]; dup {
			continue
		}
		update = update.Set(expression.Name(name),
			expression.IfNotExists(expression.Name(name), expression.Value(req.CreateOnly[name])))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return fmt.Errorf("build update for %s: %w", req.Key, err)
	}

	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       primaryKey(req.Key),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return fmt.Errorf("update item %s: %w", req.Key, err)
	}
	return nil
}

func primaryKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		domain.AttrID: &types.AttributeValueMemberS{Value: key},
	}
}

func sortedNames(attrs domain.Attributes) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
