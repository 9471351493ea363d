// Package dynamostore implements the managed-KV-wide-column store
// variant on aws-sdk-go-v2's DynamoDB client, one table per keyspace.
package dynamostore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/affinidi/webvh-server/internal/apperr"
	"github.com/affinidi/webvh-server/internal/store"
)

// Store is a DynamoDB-backed store.Store. Each keyspace maps to a table
// named "{tablePrefix}{keyspace}" with a single partition key "pk".
type Store struct {
	client      *dynamodb.Client
	tablePrefix string
}

// Open loads the default AWS credential chain (environment, shared
// config, IMDS) via aws-sdk-go-v2/config, matching the SDK family
// already present in the example pack.
func Open(ctx context.Context, region, tablePrefix string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, apperr.Wrap(apperr.Config, "loading aws config", err)
	}
	return &Store{client: dynamodb.NewFromConfig(cfg), tablePrefix: tablePrefix}, nil
}

func (s *Store) tableName(keyspace string) string {
	return s.tablePrefix + keyspace
}

// Keyspace assumes the table has already been provisioned (e.g. via
// infrastructure-as-code); DynamoDB table creation is not a request-path
// operation, so this call only validates the name is non-empty.
func (s *Store) Keyspace(_ context.Context, name string) (store.Keyspace, error) {
	if name == "" {
		return nil, apperr.New(apperr.Config, "keyspace name must not be empty")
	}
	return &keyspace{client: s.client, table: s.tableName(name)}, nil
}

func (s *Store) Batch() store.Batch {
	return &batch{client: s.client, tablePrefix: s.tablePrefix}
}

func (s *Store) Persist(_ context.Context) error {
	return nil // managed backend.
}

func (s *Store) Close() error {
	return nil
}

type keyspace struct {
	client *dynamodb.Client
	table  string
}

func (k *keyspace) InsertRaw(ctx context.Context, key string, value []byte) error {
	_, err := k.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(k.table),
		Item: map[string]types.AttributeValue{
			"pk":    &types.AttributeValueMemberS{Value: key},
			"value": &types.AttributeValueMemberB{Value: value},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "dynamodb put item", err)
	}
	return nil
}

func (k *keyspace) GetRaw(ctx context.Context, key string) ([]byte, error) {
	out, err := k.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(k.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "dynamodb get item", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	v, ok := out.Item["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, apperr.New(apperr.Serialization, "dynamodb item missing binary value")
	}
	return v.Value, nil
}

func (k *keyspace) Remove(ctx context.Context, key string) error {
	_, err := k.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(k.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "dynamodb delete item", err)
	}
	return nil
}

func (k *keyspace) ContainsKey(ctx context.Context, key string) (bool, error) {
	v, err := k.GetRaw(ctx, key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (k *keyspace) PrefixIterRaw(ctx context.Context, prefix string) ([]store.KV, error) {
	out, err := k.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(k.table),
		FilterExpression: aws.String("begins_with(pk, :p)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: prefix},
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "dynamodb scan", err)
	}
	result := make([]store.KV, 0, len(out.Items))
	for _, item := range out.Items {
		pk, ok := item["pk"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		val, ok := item["value"].(*types.AttributeValueMemberB)
		if !ok {
			continue
		}
		result = append(result, store.KV{Key: pk.Value, Value: val.Value})
	}
	return result, nil
}

// TakeRaw uses DeleteItem with ReturnValues: ALL_OLD, which DynamoDB
// performs as a single atomic operation against the item.
func (k *keyspace) TakeRaw(ctx context.Context, key string) ([]byte, error) {
	out, err := k.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(k.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: key},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Store, "dynamodb take", err)
	}
	if out.Attributes == nil {
		return nil, nil
	}
	v, ok := out.Attributes["value"].(*types.AttributeValueMemberB)
	if !ok {
		return nil, nil
	}
	return v.Value, nil
}

type batch struct {
	client      *dynamodb.Client
	tablePrefix string
	ops         []store.BatchOp
}

func (b *batch) Insert(ks, key string, value []byte) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: value})
}

func (b *batch) Remove(ks, key string) {
	b.ops = append(b.ops, store.BatchOp{Keyspace: ks, Key: key, Value: nil})
}

// Commit uses TransactWriteItems, which DynamoDB guarantees is
// all-or-nothing across items — including across the distinct tables
// this batch may touch (DynamoDB transactions are not limited to a
// single table).
func (b *batch) Commit(ctx context.Context) error {
	items := make([]types.TransactWriteItem, 0, len(b.ops))
	for _, op := range b.ops {
		table := b.tablePrefix + op.Keyspace
		if op.Value == nil {
			items = append(items, types.TransactWriteItem{
				Delete: &types.Delete{
					TableName: aws.String(table),
					Key: map[string]types.AttributeValue{
						"pk": &types.AttributeValueMemberS{Value: op.Key},
					},
				},
			})
			continue
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(table),
				Item: map[string]types.AttributeValue{
					"pk":    &types.AttributeValueMemberS{Value: op.Key},
					"value": &types.AttributeValueMemberB{Value: op.Value},
				},
			},
		})
	}
	if len(items) == 0 {
		return nil
	}
	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return apperr.Wrap(apperr.Store, "dynamodb transact write", err)
	}
	return nil
}
