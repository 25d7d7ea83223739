package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

// Store persists one policy per merchant.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Get returns the merchant's policy, or (nil, nil) when none is saved —
// absence means "always confirm".
func (s *Store) Get(ctx context.Context, merchantID string) (*Policy, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"merchant_id": &types.AttributeValueMemberS{Value: merchantID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Policy
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	return &p, nil
}

// Save replaces the merchant's rule set wholesale.
func (s *Store) Save(ctx context.Context, merchantID string, rules []Rule) (*Policy, error) {
	now := s.nowFunc().UTC()
	p := &Policy{
		MerchantID: merchantID,
		Rules:      rules,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, err := s.Get(ctx, merchantID); err != nil {
		return nil, err
	} else if existing != nil {
		p.CreatedAt = existing.CreatedAt
	}

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return nil, fmt.Errorf("put policy: %w", err)
	}
	return p, nil
}

// Delete removes the merchant's policy. Deleting a missing policy is a no-op.
func (s *Store) Delete(ctx context.Context, merchantID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"merchant_id": &types.AttributeValueMemberS{Value: merchantID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}
