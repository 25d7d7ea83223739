package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/confirmly/confirmation-engine/internal/clock"
	"github.com/confirmly/confirmation-engine/internal/merchants"
	"github.com/confirmly/confirmation-engine/internal/orders"
	"github.com/confirmly/confirmation-engine/internal/policy"
	"github.com/confirmly/confirmation-engine/internal/queue"
	"github.com/confirmly/confirmation-engine/internal/webhooks"
)

var testNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type fakeOrderStore struct {
	created []*orders.Order
	byID    map[string]*orders.Order
	moves   [][2]orders.Status
}

func (f *fakeOrderStore) Create(ctx context.Context, order *orders.Order) error {
	f.created = append(f.created, order)
	if f.byID == nil {
		f.byID = map[string]*orders.Order{}
	}
	f.byID[order.OrderID] = order
	return nil
}

func (f *fakeOrderStore) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	return f.byID[orderID], nil
}

func (f *fakeOrderStore) TransitionStatus(ctx context.Context, orderID string, from, to orders.Status) error {
	if !orders.CanTransition(from, to) {
		return orders.ErrInvalidStatusTransition
	}
	f.moves = append(f.moves, [2]orders.Status{from, to})
	f.byID[orderID].Status = to
	return nil
}

type fakeMerchantStore struct {
	m *merchants.Merchant
}

func (f *fakeMerchantStore) Get(ctx context.Context, merchantID string) (*merchants.Merchant, error) {
	return f.m, nil
}

type fakePolicyStore struct {
	p       *policy.Policy
	saved   *policy.Policy
	deleted []string
}

func (f *fakePolicyStore) Get(ctx context.Context, merchantID string) (*policy.Policy, error) {
	return f.p, nil
}

func (f *fakePolicyStore) Save(ctx context.Context, merchantID string, rules []policy.Rule) (*policy.Policy, error) {
	f.saved = &policy.Policy{MerchantID: merchantID, Rules: rules}
	return f.saved, nil
}

func (f *fakePolicyStore) Delete(ctx context.Context, merchantID string) error {
	f.deleted = append(f.deleted, merchantID)
	return nil
}

type fakeScheduler struct {
	kinds []string
}

func (f *fakeScheduler) Schedule(ctx context.Context, orderID, merchantID, kind string, runAt time.Time) error {
	f.kinds = append(f.kinds, kind)
	return nil
}

type fakeQueue struct {
	payloads []interface{}
}

func (f *fakeQueue) Enqueue(ctx context.Context, payload interface{}, attributes map[string]string) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func testMerchant() *merchants.Merchant {
	return &merchants.Merchant{
		MerchantID: "m-1",
		Settings: merchants.Settings{
			ConfirmPrepaid:        false,
			ConfirmWindowHours:    24,
			AutoCancelUnconfirmed: true,
			ReConfirmEnabled:      true,
		},
		Channels: merchants.Channels{
			Chat: &merchants.ChatConfig{PhoneNumberID: "123", Token: "t"},
		},
	}
}

func ordersRouter(os *fakeOrderStore, ms *fakeMerchantStore, ps *fakePolicyStore, sch *fakeScheduler, q *fakeQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewOrdersHandler(os, ms, ps, sch, q, clock.NewFixed(testNow)).Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader([]byte("{}"))
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const createOrderBody = `{
	"merchantId": "m-1",
	"phone": "+911234567890",
	"customer": {"name": "Jo", "pincode": "560001"},
	"amount": 499.5,
	"currency": "inr",
	"paymentMode": "cod"
}`

func TestCreateOrderQueuesConfirmationAndTimers(t *testing.T) {
	os := &fakeOrderStore{}
	sch := &fakeScheduler{}
	q := &fakeQueue{}
	r := ordersRouter(os, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, sch, q)

	w := doJSON(t, r, http.MethodPost, "/v1/orders", createOrderBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		OrderID            string `json:"orderId"`
		ConfirmationQueued bool   `json:"confirmationQueued"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID == "" || !resp.ConfirmationQueued {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}

	if len(os.created) != 1 || os.created[0].Currency != "INR" {
		t.Fatalf("order not created with normalized currency: %+v", os.created)
	}
	if len(q.payloads) != 1 {
		t.Fatalf("expected 1 confirmation job, got %d", len(q.payloads))
	}
	job := q.payloads[0].(queue.ConfirmationJob)
	if job.OrderID != resp.OrderID || len(job.Channels) != 1 || job.Channels[0] != orders.ChannelChat {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(sch.kinds) != 2 {
		t.Fatalf("expected auto-cancel and re-confirm timers, got %+v", sch.kinds)
	}
}

func TestCreateOrderPrepaidGatedOut(t *testing.T) {
	os := &fakeOrderStore{}
	q := &fakeQueue{}
	r := ordersRouter(os, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, q)

	body := strings.Replace(createOrderBody, `"cod"`, `"prepaid"`, 1)
	w := doJSON(t, r, http.MethodPost, "/v1/orders", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if len(q.payloads) != 0 {
		t.Fatalf("prepaid order must not queue confirmation when disabled")
	}
	if len(os.created) != 1 {
		t.Fatalf("order must still be created")
	}
}

func TestCreateOrderPolicySkip(t *testing.T) {
	q := &fakeQueue{}
	ps := &fakePolicyStore{p: &policy.Policy{
		MerchantID: "m-1",
		Rules: []policy.Rule{
			{Key: "amount", Operator: policy.OpGreaterThan, Value: 100, Effect: policy.EffectSkip},
		},
	}}
	r := ordersRouter(&fakeOrderStore{}, &fakeMerchantStore{m: testMerchant()}, ps, &fakeScheduler{}, q)

	w := doJSON(t, r, http.MethodPost, "/v1/orders", createOrderBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if len(q.payloads) != 0 {
		t.Fatalf("policy skip must suppress the confirmation job")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	r := ordersRouter(&fakeOrderStore{}, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, &fakeQueue{})

	w := doJSON(t, r, http.MethodPost, "/v1/orders", `{"merchantId": "m-1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestManualConfirmAndIllegalMove(t *testing.T) {
	os := &fakeOrderStore{byID: map[string]*orders.Order{
		"o-1": {OrderID: "o-1", MerchantID: "m-1", Status: orders.StatusPending},
	}}
	r := ordersRouter(os, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, &fakeQueue{})

	w := doJSON(t, r, http.MethodPost, "/v1/orders/o-1/confirm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if os.byID["o-1"].Status != orders.StatusConfirmed {
		t.Fatalf("order not confirmed")
	}

	// confirmed -> canceled is not a legal move
	w = doJSON(t, r, http.MethodPost, "/v1/orders/o-1/cancel", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/orders/o-1/fulfill", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestManualActionsUnknownOrder(t *testing.T) {
	r := ordersRouter(&fakeOrderStore{byID: map[string]*orders.Order{}}, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, &fakeQueue{})

	w := doJSON(t, r, http.MethodPost, "/v1/orders/ghost/confirm", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetOrderMerchantScoping(t *testing.T) {
	os := &fakeOrderStore{byID: map[string]*orders.Order{
		"o-1": {OrderID: "o-1", MerchantID: "m-1", Status: orders.StatusPending},
	}}
	r := ordersRouter(os, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, &fakeQueue{})

	req := httptest.NewRequest(http.MethodGet, "/v1/orders/o-1?merchantId=m-2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-merchant read must 404, got %d", w.Code)
	}
}

func TestSendConfirmationDefaultsToMerchantChannels(t *testing.T) {
	os := &fakeOrderStore{byID: map[string]*orders.Order{
		"o-1": {OrderID: "o-1", MerchantID: "m-1", Status: orders.StatusPending},
	}}
	q := &fakeQueue{}
	r := ordersRouter(os, &fakeMerchantStore{m: testMerchant()}, &fakePolicyStore{}, &fakeScheduler{}, q)

	w := doJSON(t, r, http.MethodPost, "/v1/orders/o-1/send-confirmation", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	job := q.payloads[0].(queue.ConfirmationJob)
	if len(job.Channels) != 1 || job.Channels[0] != orders.ChannelChat {
		t.Fatalf("expected merchant default channels, got %+v", job.Channels)
	}
}

func TestPolicyCRUDAndPreview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ps := &fakePolicyStore{}
	r := gin.New()
	NewPoliciesHandler(ps).Register(r)

	// save
	w := doJSON(t, r, http.MethodPut, "/v1/merchants/m-1/policy", `{
		"rules": [{"key": "riskScore", "operator": "greater_than", "value": 70, "effect": "skip"}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ps.saved == nil || ps.saved.MerchantID != "m-1" || len(ps.saved.Rules) != 1 {
		t.Fatalf("policy not saved: %+v", ps.saved)
	}

	// invalid operator rejected
	w = doJSON(t, r, http.MethodPut, "/v1/merchants/m-1/policy", `{
		"rules": [{"key": "riskScore", "operator": "matches", "value": 70, "effect": "skip"}]
	}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown operator, got %d", w.Code)
	}

	// preview against the stored policy
	ps.p = ps.saved
	w = doJSON(t, r, http.MethodPost, "/v1/merchants/m-1/policy/test", `{
		"order": {"riskScore": 90}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("test: expected 200, got %d", w.Code)
	}
	var resp struct {
		Effect       string        `json:"effect"`
		MatchedRules []policy.Rule `json:"matchedRules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Effect != "skip" || len(resp.MatchedRules) != 1 {
		t.Fatalf("unexpected preview: %s", w.Body.String())
	}

	// delete
	w = doJSON(t, r, http.MethodDelete, "/v1/merchants/m-1/policy", "")
	if w.Code != http.StatusOK || len(ps.deleted) != 1 {
		t.Fatalf("delete failed: %d", w.Code)
	}

	// get when absent
	ps.p = nil
	req := httptest.NewRequest(http.MethodGet, "/v1/merchants/m-1/policy", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing policy, got %d", w.Code)
	}
}

type fakeProcessor struct {
	events []webhooks.InboundEvent
	err    error
}

func (f *fakeProcessor) Process(ctx context.Context, ev webhooks.InboundEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func webhookRouter(p *fakeProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewWebhooksHandler(p, nil, "verify-secret").Register(r)
	return r
}

func TestChatVerificationHandshake(t *testing.T) {
	r := webhookRouter(&fakeProcessor{})

	req := httptest.NewRequest(http.MethodGet,
		"/v1/webhooks/chat?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=42", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "42" {
		t.Fatalf("handshake failed: %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet,
		"/v1/webhooks/chat?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong token must 403, got %d", w.Code)
	}
}

func TestChatWebhookProcessesEvents(t *testing.T) {
	p := &fakeProcessor{}
	r := webhookRouter(p)

	w := doJSON(t, r, http.MethodPost, "/v1/webhooks/chat", `{
		"entry": [{"changes": [{"value": {
			"statuses": [{"id": "wamid.1", "status": "delivered", "timestamp": "1754042400"}]
		}}]}]
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(p.events) != 1 || p.events[0].MessageID != "wamid.1" {
		t.Fatalf("event not processed: %+v", p.events)
	}
}

func TestWebhooksAlwaysAnswerSuccess(t *testing.T) {
	// garbage body
	r := webhookRouter(&fakeProcessor{})
	w := doJSON(t, r, http.MethodPost, "/v1/webhooks/chat", `not json`)
	if w.Code != http.StatusOK {
		t.Fatalf("broken payload must still 200, got %d", w.Code)
	}

	// processing error
	p := &fakeProcessor{err: context.DeadlineExceeded}
	r = webhookRouter(p)
	w = doJSON(t, r, http.MethodPost, "/v1/webhooks/sms/msg91", `{"requestId": "req-1", "status": "DELIVERED"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("processing failure must still 200, got %d", w.Code)
	}
	if len(p.events) != 1 {
		t.Fatalf("event must have been attempted")
	}
}

func TestTwilioWebhookForm(t *testing.T) {
	p := &fakeProcessor{}
	r := webhookRouter(p)

	form := "MessageSid=SM1&MessageStatus=delivered"
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/sms/twilio", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(p.events) != 1 || p.events[0].MessageID != "SM1" {
		t.Fatalf("event not processed: %+v", p.events)
	}
}
