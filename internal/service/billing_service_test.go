package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
	"github.com/qs3c/tos_scan_server/internal/testutil"
)

const testWebhookSecret = "whsec_test_secret"

type fakeStripe struct {
	customers int
	sessions  []*stripe.CheckoutSessionParams
}

func (f *fakeStripe) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.customers++
	return &stripe.Customer{ID: fmt.Sprintf("cus_%d", f.customers)}, nil
}

func (f *fakeStripe) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

type billingFixture struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	stripe   *fakeStripe
	service  *BillingService
}

func setupBillingService(t *testing.T) (*billingFixture, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	catalog := plan.NewCatalog(nil)
	fake := &fakeStripe{}

	service := NewBillingService(userRepo, subRepo, NewBudgetService(userRepo, catalog), catalog, fake, config.StripeConfig{
		WebhookSecret: testWebhookSecret,
		FrontendURL:   "https://app.example.com/",
		Prices: map[string]string{
			"standard":   "price_standard",
			"premium":    "price_premium",
			"enterprise": "price_enterprise",
		},
	})

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return &billingFixture{db: db, userRepo: userRepo, subRepo: subRepo, stripe: fake, service: service}, cleanup
}

func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","api_version":"2024-06-20","type":%q,"data":{"object":%s}}`, id, eventType, object))
}

func TestBillingService_ChangePlan_SyncsBudget(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, f.db, testutil.WithPlan("premium", "20"), testutil.WithBudgetUsed("12"))

	require.NoError(t, f.service.ChangePlan(ctx, user, "standard", ChangeOptions{}))
	assert.Equal(t, "standard", user.Plan)
	assert.Equal(t, "5", user.AIBudget.Allocated.String())
	assert.True(t, user.AIBudget.Used.IsZero())

	stored, err := f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "standard", stored.Plan)
	assert.InDelta(t, 5.0, stored.AIBudget.Allocated.InexactFloat64(), 1e-9)

	subs, err := f.subRepo.ListByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "premium", subs[0].PreviousPlan)
	assert.Equal(t, "admin", subs[0].PaymentMethod)

	assert.ErrorIs(t, f.service.ChangePlan(ctx, user, "platinum", ChangeOptions{}), ErrUnknownPlan)
}

func TestBillingService_CreateCheckout(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, f.db)

	resp, err := f.service.CreateCheckout(ctx, user.ID, "premium")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", resp.SessionID)

	require.Len(t, f.stripe.sessions, 1)
	params := f.stripe.sessions[0]
	assert.Equal(t, "price_premium", *params.LineItems[0].Price)
	assert.Equal(t, "premium", params.Metadata["plan"])
	assert.Equal(t, "https://app.example.com/billing/success", *params.SuccessURL)

	stored, err := f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_1", *stored.StripeCustomerID)

	// 已有 customer 时复用
	_, err = f.service.CreateCheckout(ctx, user.ID, "standard")
	require.NoError(t, err)
	assert.Equal(t, 1, f.stripe.customers)

	_, err = f.service.CreateCheckout(ctx, user.ID, "free")
	assert.ErrorIs(t, err, ErrUnknownPlan)
}

func TestBillingService_HandleWebhook_CheckoutCompleted(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, f.db)
	session := fmt.Sprintf(`{"id":"cs_1","object":"checkout.session","client_reference_id":"%d","customer":"cus_42","subscription":"sub_1","amount_total":2999,"metadata":{"plan":"premium"}}`, user.ID)
	payload := eventPayload("evt_1", "checkout.session.completed", session)

	require.NoError(t, f.service.HandleWebhook(ctx, payload, signPayload(payload)))

	stored, err := f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "premium", stored.Plan)
	assert.InDelta(t, 20.0, stored.AIBudget.Allocated.InexactFloat64(), 1e-9)
	require.NotNil(t, stored.StripeCustomerID)
	assert.Equal(t, "cus_42", *stored.StripeCustomerID)

	subs, err := f.subRepo.ListByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "sub_1", subs[0].TransactionID)
	assert.Equal(t, "29.99", subs[0].Amount.StringFixed(2))

	// 重复投递
	require.NoError(t, f.service.HandleWebhook(ctx, payload, signPayload(payload)))
	subs, err = f.subRepo.ListByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestBillingService_HandleWebhook_SubscriptionLifecycle(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()
	ctx := context.Background()

	user := testutil.TestUser(t, f.db, testutil.WithPlan("standard", "5"), testutil.WithBudgetUsed("4"))
	require.NoError(t, f.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{"stripe_customer_id": "cus_7"}))

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()
	updated := fmt.Sprintf(`{"id":"sub_7","object":"subscription","customer":"cus_7","status":"active","current_period_end":%d,
"items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_enterprise","object":"price"}}]}}`, periodEnd)
	payload := eventPayload("evt_up", "customer.subscription.updated", updated)
	require.NoError(t, f.service.HandleWebhook(ctx, payload, signPayload(payload)))

	stored, err := f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", stored.Plan)
	assert.InDelta(t, 100.0, stored.AIBudget.Allocated.InexactFloat64(), 1e-9)
	assert.InDelta(t, 4.0, stored.AIBudget.Used.InexactFloat64(), 1e-9)
	require.NotNil(t, stored.SubscriptionExpiresAt)

	deleted := `{"id":"sub_7","object":"subscription","customer":"cus_7","status":"canceled"}`
	payload = eventPayload("evt_del", "customer.subscription.deleted", deleted)
	require.NoError(t, f.service.HandleWebhook(ctx, payload, signPayload(payload)))

	stored, err = f.userRepo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", stored.Plan)
	assert.InDelta(t, 0.0, stored.AIBudget.Allocated.InexactFloat64(), 1e-9)
	assert.InDelta(t, 0.0, stored.AIBudget.Used.InexactFloat64(), 1e-9)

	active, err := f.subRepo.GetActive(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "free", active.Plan)
	assert.Equal(t, model.SubscriptionStatusActive, active.Status)
}

func TestBillingService_HandleWebhook_BadSignature(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()

	payload := eventPayload("evt_x", "checkout.session.completed", `{}`)
	err := f.service.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestBillingService_Plans(t *testing.T) {
	f, cleanup := setupBillingService(t)
	defer cleanup()

	plans := f.service.Plans()
	require.Len(t, plans, 4)
	assert.Equal(t, "free", plans[0].Tier)
	assert.Equal(t, "enterprise", plans[3].Tier)
	assert.Equal(t, "20.00", plans[2].MonthlyAIBudget)
	assert.Equal(t, -1, plans[3].MonthlyAnalysisLimit)
}
