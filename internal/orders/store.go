package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/confirmly/confirmation-engine/internal/awsx"
)

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrStatusConflict indicates a conditional status write lost a race:
	// the persisted status no longer matches the expected one.
	ErrStatusConflict = errors.New("order status conflict")
)

// Store encapsulates operations on the orders table.
//
// Message-id lookups use index items stored in the same table under a
// "msg#<id>" partition key, written alongside the confirmation records they
// point at.
type Store struct {
	client    awsx.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client awsx.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create persists a new order. Fails if the order id already exists.
func (s *Store) Create(ctx context.Context, order *Order) error {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = StatusPending
	}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("order %s already exists", order.OrderID)
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// TransitionStatus moves an order from `from` to `to`.
//
// The transition table is checked first; an illegal move returns
// ErrInvalidStatusTransition without touching storage. The write itself is a
// conditional update ("set status where status = expected"), so a competing
// writer that already moved the order causes ErrStatusConflict instead of a
// double-applied transition.
func (s *Store) TransitionStatus(ctx context.Context, orderID string, from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidStatusTransition)
	}

	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: string(to)},
			":expected": &types.AttributeValueMemberS{Value: string(from)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("#s = :expected"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusConflict
		}
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// AppendConfirmations appends confirmation records to the order in a single
// write, then writes message-id index items for records that carry one.
func (s *Store) AppendConfirmations(ctx context.Context, orderID string, confs []Confirmation) error {
	if len(confs) == 0 {
		return nil
	}
	list, err := attributevalue.MarshalList(confs)
	if err != nil {
		return fmt.Errorf("marshal confirmations: %w", err)
	}

	now := s.nowFunc().UTC()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET confirmations = list_append(if_not_exists(confirmations, :empty), :new), updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":   &types.AttributeValueMemberL{Value: list},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("append confirmations: %w", err)
	}

	for _, c := range confs {
		if c.MessageID == "" {
			continue
		}
		idx := map[string]types.AttributeValue{
			"order_id":     &types.AttributeValueMemberS{Value: messageKey(c.MessageID)},
			"ref_order_id": &types.AttributeValueMemberS{Value: orderID},
		}
		if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName: &s.tableName,
			Item:      idx,
		}); err != nil {
			return fmt.Errorf("put message index: %w", err)
		}
	}
	return nil
}

// AppendAutoAction appends one automation audit record.
func (s *Store) AppendAutoAction(ctx context.Context, orderID string, action AutoAction) error {
	list, err := attributevalue.MarshalList([]AutoAction{action})
	if err != nil {
		return fmt.Errorf("marshal auto action: %w", err)
	}
	now := s.nowFunc().UTC()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString("SET auto_actions = list_append(if_not_exists(auto_actions, :empty), :new), updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":   &types.AttributeValueMemberL{Value: list},
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotFound
		}
		return fmt.Errorf("append auto action: %w", err)
	}
	return nil
}

// FindByMessageID resolves a provider message id to the order holding the
// matching confirmation. Returns (nil, nil) when nothing is indexed.
func (s *Store) FindByMessageID(ctx context.Context, messageID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: messageKey(messageID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get message index: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	ref, ok := out.Item["ref_order_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, nil
	}
	return s.Get(ctx, ref.Value)
}

// ReplaceConfirmation overwrites the confirmation at index with the given
// record, guarded on the message id so a concurrently re-ordered list is not
// corrupted.
func (s *Store) ReplaceConfirmation(ctx context.Context, orderID string, index int, c Confirmation) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	now := s.nowFunc().UTC()
	path := fmt.Sprintf("confirmations[%d]", index)
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression: awsString(fmt.Sprintf("SET %s = :c, updated_at = :ua", path)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberM{Value: item},
			":mid": &types.AttributeValueMemberS{Value: c.MessageID},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString(fmt.Sprintf("%s.message_id = :mid", path)),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrStatusConflict
		}
		return fmt.Errorf("replace confirmation: %w", err)
	}
	return nil
}

// FindPendingByPhone returns the newest pending order for a phone number.
// SMS replies carry no reference to the outbound message, so the customer's
// number is the only correlation key available. Returns (nil, nil) when no
// pending order matches.
func (s *Store) FindPendingByPhone(ctx context.Context, phone string) (*Order, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("phone = :p AND #s = :pending"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":       &types.AttributeValueMemberS{Value: phone},
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending by phone: %w", err)
	}
	var newest *Order
	for _, item := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			cp := o
			newest = &cp
		}
	}
	return newest, nil
}

// ListPendingOlderThan returns pending orders for a merchant created before
// the cutoff. Backed by a filtered scan; created_at sorts lexically because
// timestamps are stored as RFC3339.
func (s *Store) ListPendingOlderThan(ctx context.Context, merchantID string, cutoff time.Time) ([]Order, error) {
	out, err := s.client.Scan(ctx, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         awsString("merchant_id = :m AND #s = :pending AND created_at < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":m":       &types.AttributeValueMemberS{Value: merchantID},
			":pending": &types.AttributeValueMemberS{Value: string(StatusPending)},
			":cutoff":  &types.AttributeValueMemberS{Value: cutoff.UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending orders: %w", err)
	}
	var result []Order
	for _, item := range out.Items {
		var o Order
		if err := attributevalue.UnmarshalMap(item, &o); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		result = append(result, o)
	}
	return result, nil
}

func messageKey(messageID string) string {
	return "msg#" + messageID
}

func awsString(s string) *string { return &s }
