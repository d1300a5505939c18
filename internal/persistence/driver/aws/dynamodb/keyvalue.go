package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/relaymesh/gateway/internal/persistence/driver/aws/internal/awsx"
	"github.com/relaymesh/gateway/internal/persistence/kv"
)

const (
	keyspaceAttr = "Keyspace"
	keyAttr      = "Key"
	valueAttr    = "Value"
)

// KeyValueStore is an implementation of [kv.Store] that persists keyspaces in
// a DynamoDB table.
//
// The table must have a composite primary key with a partition key named
// "Keyspace" (string) and a sort key named "Key" (binary).
type KeyValueStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the name of the table used for storage.
	Table string

	// DecorateGetItem is an optional function that is called before each
	// DynamoDB "GetItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetItem func(*dynamodb.GetItemInput) []func(*dynamodb.Options)

	// DecorateQuery is an optional function that is called before each
	// DynamoDB "Query" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecoratePutItem is an optional function that is called before each
	// DynamoDB "PutItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecoratePutItem func(*dynamodb.PutItemInput) []func(*dynamodb.Options)

	// DecorateDeleteItem is an optional function that is called before each
	// DynamoDB "DeleteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteItem func(*dynamodb.DeleteItemInput) []func(*dynamodb.Options)
}

// Open returns the keyspace with the given name.
func (s *KeyValueStore) Open(ctx context.Context, name string) (kv.Keyspace, error) {
	return &keyspace{
		store: s,
		name:  name,
	}, ctx.Err()
}

type keyspace struct {
	store *KeyValueStore
	name  string
}

func (ks *keyspace) primaryKey(k []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyspaceAttr: &types.AttributeValueMemberS{Value: ks.name},
		keyAttr:      &types.AttributeValueMemberB{Value: k},
	}
}

func (ks *keyspace) Get(ctx context.Context, k []byte) ([]byte, error) {
	out, err := awsx.Do(
		ctx,
		ks.store.Client.GetItem,
		ks.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName:            aws.String(ks.store.Table),
			Key:                  ks.primaryKey(k),
			ProjectionExpression: aws.String("#V"),
			ExpressionAttributeNames: map[string]string{
				"#V": valueAttr,
			},
		},
	)
	if err != nil || out.Item == nil {
		return nil, err
	}

	v, err := getAttr[*types.AttributeValueMemberB](out.Item, valueAttr)
	if err != nil {
		return nil, err
	}

	return v.Value, nil
}

func (ks *keyspace) Has(ctx context.Context, k []byte) (bool, error) {
	out, err := awsx.Do(
		ctx,
		ks.store.Client.GetItem,
		ks.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(ks.store.Table),
			Key:       ks.primaryKey(k),
			// Project an unknown attribute to avoid fetching the value.
			ProjectionExpression: aws.String("NonExistent"),
		},
	)
	if err != nil {
		return false, err
	}

	return out.Item != nil, nil
}

func (ks *keyspace) Set(ctx context.Context, k, v []byte) error {
	if len(v) == 0 {
		_, err := awsx.Do(
			ctx,
			ks.store.Client.DeleteItem,
			ks.store.DecorateDeleteItem,
			&dynamodb.DeleteItemInput{
				TableName: aws.String(ks.store.Table),
				Key:       ks.primaryKey(k),
			},
		)
		return err
	}

	item := ks.primaryKey(k)
	item[valueAttr] = &types.AttributeValueMemberB{Value: v}

	_, err := awsx.Do(
		ctx,
		ks.store.Client.PutItem,
		ks.store.DecoratePutItem,
		&dynamodb.PutItemInput{
			TableName: aws.String(ks.store.Table),
			Item:      item,
		},
	)
	return err
}

func (ks *keyspace) Range(ctx context.Context, fn kv.RangeFunc) error {
	var startKey map[string]types.AttributeValue

	for {
		out, err := awsx.Do(
			ctx,
			ks.store.Client.Query,
			ks.store.DecorateQuery,
			&dynamodb.QueryInput{
				TableName:              aws.String(ks.store.Table),
				KeyConditionExpression: aws.String("#S = :S"),
				ProjectionExpression:   aws.String("#K, #V"),
				ExpressionAttributeNames: map[string]string{
					"#S": keyspaceAttr,
					"#K": keyAttr,
					"#V": valueAttr,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":S": &types.AttributeValueMemberS{Value: ks.name},
				},
				ExclusiveStartKey: startKey,
			},
		)
		if err != nil {
			return err
		}

		for _, item := range out.Items {
			k, err := getAttr[*types.AttributeValueMemberB](item, keyAttr)
			if err != nil {
				return err
			}

			v, err := getAttr[*types.AttributeValueMemberB](item, valueAttr)
			if err != nil {
				return err
			}

			ok, err := fn(ctx, k.Value, v.Value)
			if !ok || err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}

		startKey = out.LastEvaluatedKey
	}
}

func (ks *keyspace) Close() error {
	return nil
}

// CreateKeyValueStoreTable creates a DynamoDB table for use with
// [KeyValueStore].
//
// It is a no-op if the table already exists.
func CreateKeyValueStoreTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
	decorators ...func(*dynamodb.CreateTableInput) []func(*dynamodb.Options),
) error {
	_, err := awsx.Do(
		ctx,
		client.CreateTable,
		func(in *dynamodb.CreateTableInput) []func(*dynamodb.Options) {
			var options []func(*dynamodb.Options)
			for _, dec := range decorators {
				options = append(options, dec(in)...)
			}

			return options
		},
		&dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{
					AttributeName: aws.String(keyspaceAttr),
					AttributeType: types.ScalarAttributeTypeS,
				},
				{
					AttributeName: aws.String(keyAttr),
					AttributeType: types.ScalarAttributeTypeB,
				},
			},
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(keyspaceAttr),
					KeyType:       types.KeyTypeHash,
				},
				{
					AttributeName: aws.String(keyAttr),
					KeyType:       types.KeyTypeRange,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	)

	if errors.As(err, new(*types.ResourceInUseException)) {
		return nil
	}

	return err
}

func getAttr[T types.AttributeValue](
	item map[string]types.AttributeValue,
	name string,
) (v T, err error) {
	a, ok := item[name]
	if !ok {
		return v, fmt.Errorf("item is corrupt: missing %q attribute", name)
	}

	v, ok = a.(T)
	if !ok {
		return v, fmt.Errorf(
			"item is corrupt: %q attribute should be %s not %s",
			name,
			reflect.TypeOf(v).Name(),
			reflect.TypeOf(a).Name(),
		)
	}

	return v, nil
}
