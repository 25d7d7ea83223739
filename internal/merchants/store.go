package merchants

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

// Store reads merchant snapshots. The engine never writes this table.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
}

func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches a merchant by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, merchantID string) (*Merchant, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"merchant_id": &types.AttributeValueMemberS{Value: merchantID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var m Merchant
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, fmt.Errorf("unmarshal merchant: %w", err)
	}
	return &m, nil
}

// List returns all merchants. Sweep jobs filter on settings in code; the
// table is small enough that a scan per sweep is acceptable.
func (s *Store) List(ctx context.Context) ([]Merchant, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName: &s.tableName,
	})
	if err != nil {
		return nil, fmt.Errorf("scan merchants: %w", err)
	}
	var result []Merchant
	for _, item := range out.Items {
		var m Merchant
		if err := attributevalue.UnmarshalMap(item, &m); err != nil {
			return nil, fmt.Errorf("unmarshal merchant: %w", err)
		}
		result = append(result, m)
	}
	return result, nil
}
