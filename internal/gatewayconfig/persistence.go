package gatewayconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dogmatiq/ferrite"
	dynamodbdriver "github.com/relaymesh/gateway/internal/persistence/driver/aws/dynamodb"
	s3driver "github.com/relaymesh/gateway/internal/persistence/driver/aws/s3"
)

var (
	objectStoreBucket = ferrite.
				String("GATEWAY_OBJECT_STORE_BUCKET", "the object store bucket in which parcels are kept").
				Optional(ferrite.WithRegistry(FerriteRegistry))

	keyValueTable = ferrite.
			String("GATEWAY_KEYVALUE_TABLE", "the DynamoDB table in which ledgers and certificates are kept").
			Optional(ferrite.WithRegistry(FerriteRegistry))

	awsEndpoint = ferrite.
			URL("GATEWAY_AWS_ENDPOINT", "the endpoint of the AWS-compatible services, for local development stacks").
			Optional(ferrite.WithRegistry(FerriteRegistry))
)

func (c *Config) finalizePersistence() {
	if c.UseEnv {
		if c.Persistence.KeyValue == nil || c.Persistence.Objects == nil {
			cfg, err := awsconfig.LoadDefaultConfig(context.Background())
			if err != nil {
				panic(fmt.Sprintf("unable to load AWS configuration: %s", err))
			}

			if c.Persistence.KeyValue == nil {
				table, ok := keyValueTable.Value()
				if !ok {
					panic("no key/value table is configured, set GATEWAY_KEYVALUE_TABLE or provide the WithKeyValueStore() option")
				}

				c.Persistence.KeyValue = &dynamodbdriver.KeyValueStore{
					Client: awsdynamodb.NewFromConfig(
						cfg,
						func(o *awsdynamodb.Options) {
							if u, ok := awsEndpoint.Value(); ok {
								o.BaseEndpoint = aws.String(u.String())
							}
						},
					),
					Table: table,
				}
			}

			if c.Persistence.Objects == nil {
				c.Persistence.Objects = &s3driver.ObjectStore{
					Client: awss3.NewFromConfig(
						cfg,
						func(o *awss3.Options) {
							if u, ok := awsEndpoint.Value(); ok {
								o.BaseEndpoint = aws.String(u.String())
								o.UsePathStyle = true
							}
						},
					),
				}
			}
		}

		if c.Persistence.Bucket == "" {
			if bucket, ok := objectStoreBucket.Value(); ok {
				c.Persistence.Bucket = bucket
			}
		}
	}

	if c.Persistence.KeyValue == nil {
		panic("no key/value store is configured, set GATEWAY_KEYVALUE_TABLE or provide the WithKeyValueStore() option")
	}

	if c.Persistence.Objects == nil {
		panic("no object store is configured, configure the AWS environment or provide the WithObjectStore() option")
	}

	if c.Persistence.Bucket == "" {
		panic("no parcel bucket is configured, set GATEWAY_OBJECT_STORE_BUCKET or provide the WithObjectStore() option")
	}
}
