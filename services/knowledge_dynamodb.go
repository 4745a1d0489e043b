package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"edith/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const knowledgeItemID = "current"

var errNoDocumentAttribute = errors.New("knowledge item has no document attribute")

// DynamoAPI is the part of *dynamodb.Client the knowledge store uses.
type DynamoAPI interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoKnowledgeStore keeps the document as a single JSON attribute of one
// item. PutItem replaces the item atomically.
type DynamoKnowledgeStore struct {
	db    DynamoAPI
	table string
}

type DynamoOptions struct {
	Endpoint string
	Region   string
}

// NewDynamoDBClient builds a client. A non-empty endpoint points the client at
// DynamoDB Local with static dummy credentials.
func NewDynamoDBClient(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}

	if opts.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: opts.Endpoint}, nil
		})
		loadOpts = append(loadOpts,
			config.WithEndpointResolverWithOptions(customResolver),
			config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func NewDynamoKnowledgeStore(ctx context.Context, db DynamoAPI, table string) *DynamoKnowledgeStore {
	s := &DynamoKnowledgeStore{db: db, table: table}
	s.ensureTableExists(ctx)
	return s
}

func (s *DynamoKnowledgeStore) ensureTableExists(ctx context.Context) {
	_, err := s.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("ID"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("ID"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		slog.Debug("Knowledge table might already exist", "table", s.table, "error", err)
	}
}

func (s *DynamoKnowledgeStore) Load(ctx context.Context) (models.KnowledgeDocument, error) {
	result, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"ID": &types.AttributeValueMemberS{Value: knowledgeItemID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge item: %w", err)
	}

	doc := models.KnowledgeDocument{}
	if result.Item == nil {
		return doc, nil
	}
	body, ok := result.Item["Document"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errNoDocumentAttribute
	}
	if err := json.Unmarshal([]byte(body.Value), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge item: %w", err)
	}
	return doc, nil
}

func (s *DynamoKnowledgeStore) Replace(ctx context.Context, doc models.KnowledgeDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode knowledge: %w", err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"ID":        &types.AttributeValueMemberS{Value: knowledgeItemID},
			"Document":  &types.AttributeValueMemberS{Value: string(data)},
			"UpdatedAt": &types.AttributeValueMemberS{Value: GetCurrentTimestamp()},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put knowledge item: %w", err)
	}
	return nil
}
