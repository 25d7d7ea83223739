package orders

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory stand-in for the DynamoDB calls the orders
// Store issues. It understands only the expressions this package uses.
type simpleMock struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue
}

func newSimpleMock() *simpleMock {
	return &simpleMock{table: map[string]map[string]types.AttributeValue{}}
}

func keyOf(av map[string]types.AttributeValue) string {
	if k, ok := av["order_id"].(*types.AttributeValueMemberS); ok {
		return k.Value
	}
	return ""
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(params.Item)
	if k == "" {
		return nil, errors.New("missing key")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(order_id)" {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(params.Key)
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, keyOf(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(params.Key)
	item, ok := m.table[k]

	cond := ""
	if params.ConditionExpression != nil {
		cond = *params.ConditionExpression
	}
	if strings.Contains(cond, "attribute_exists(order_id)") && !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if cond == "#s = :expected" {
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
		cur, _ := item["status"].(*types.AttributeValueMemberS)
		want := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS)
		if cur == nil || cur.Value != want.Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !ok {
		// Updates on missing items would create them in real DynamoDB; the
		// store always guards with a condition, so treat this as a bug.
		return nil, errors.New("item not found")
	}

	expr := ""
	if params.UpdateExpression != nil {
		expr = *params.UpdateExpression
	}

	switch {
	case strings.Contains(expr, "#s = :new"):
		item["status"] = params.ExpressionAttributeValues[":new"]
	case strings.Contains(expr, "confirmations = list_append"):
		appendList(item, "confirmations", params.ExpressionAttributeValues[":new"])
	case strings.Contains(expr, "auto_actions = list_append"):
		appendList(item, "auto_actions", params.ExpressionAttributeValues[":new"])
	case strings.Contains(expr, "confirmations["):
		idx := indexFromExpr(expr)
		list, _ := item["confirmations"].(*types.AttributeValueMemberL)
		if list == nil || idx < 0 || idx >= len(list.Value) {
			return nil, &types.ConditionalCheckFailedException{}
		}
		if strings.Contains(cond, "message_id = :mid") {
			elem, _ := list.Value[idx].(*types.AttributeValueMemberM)
			mid, _ := elem.Value["message_id"].(*types.AttributeValueMemberS)
			want := params.ExpressionAttributeValues[":mid"].(*types.AttributeValueMemberS)
			if mid == nil || mid.Value != want.Value {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
		list.Value[idx] = &types.AttributeValueMemberM{
			Value: params.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberM).Value,
		}
	}
	if ua, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = ua
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return &dyn.QueryOutput{}, nil
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := params.ExpressionAttributeValues[":pending"].(*types.AttributeValueMemberS).Value
	byPhone := strings.Contains(*params.FilterExpression, "phone = :p")

	var items []map[string]types.AttributeValue
	for k, item := range m.table {
		if strings.HasPrefix(k, "msg#") {
			continue
		}
		st, _ := item["status"].(*types.AttributeValueMemberS)
		if st == nil || st.Value != status {
			continue
		}
		if byPhone {
			phone := params.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS).Value
			p, _ := item["phone"].(*types.AttributeValueMemberS)
			if p != nil && p.Value == phone {
				items = append(items, item)
			}
			continue
		}
		merchant := params.ExpressionAttributeValues[":m"].(*types.AttributeValueMemberS).Value
		cutoff := params.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberS).Value
		mid, _ := item["merchant_id"].(*types.AttributeValueMemberS)
		ca, _ := item["created_at"].(*types.AttributeValueMemberS)
		if mid == nil || ca == nil {
			continue
		}
		if mid.Value == merchant && ca.Value < cutoff {
			items = append(items, item)
		}
	}
	return &dyn.ScanOutput{Items: items}, nil
}

func appendList(item map[string]types.AttributeValue, attr string, new types.AttributeValue) {
	existing, _ := item[attr].(*types.AttributeValueMemberL)
	if existing == nil {
		existing = &types.AttributeValueMemberL{}
	}
	add := new.(*types.AttributeValueMemberL)
	existing.Value = append(existing.Value, add.Value...)
	item[attr] = existing
}

func indexFromExpr(expr string) int {
	open := strings.Index(expr, "[")
	close := strings.Index(expr, "]")
	if open < 0 || close < open {
		return -1
	}
	n := 0
	for _, r := range expr[open+1 : close] {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
