package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"

	"github.com/qs3c/tos_scan_server/config"
	"github.com/qs3c/tos_scan_server/internal/model"
	"github.com/qs3c/tos_scan_server/internal/model/dto"
	"github.com/qs3c/tos_scan_server/internal/plan"
	"github.com/qs3c/tos_scan_server/internal/repository"
)

var (
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrBillingNotConfigured = errors.New("billing not configured")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrInvalidWebhook       = errors.New("invalid webhook payload")
)

const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
)

// StripeAPI 封装用到的 Stripe 接口，测试中替换
type StripeAPI interface {
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClient struct{}

// NewStripeAPI 使用全局 stripe.Key
func NewStripeAPI(secretKey string) StripeAPI {
	stripe.Key = secretKey
	return stripeClient{}
}

func (stripeClient) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

func (stripeClient) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

// ChangeOptions 套餐变更的来源信息
type ChangeOptions struct {
	EventID       string
	TransactionID string
	PaymentMethod string
	Amount        *decimal.Decimal
	ExpiresAt     *time.Time
}

type BillingService struct {
	userRepo *repository.UserRepository
	subRepo  *repository.SubscriptionRepository
	budget   *BudgetService
	catalog  *plan.Catalog
	api      StripeAPI
	cfg      config.StripeConfig
	nowFn    func() time.Time
}

func NewBillingService(
	userRepo *repository.UserRepository,
	subRepo *repository.SubscriptionRepository,
	budget *BudgetService,
	catalog *plan.Catalog,
	api StripeAPI,
	cfg config.StripeConfig,
) *BillingService {
	return &BillingService{
		userRepo: userRepo,
		subRepo:  subRepo,
		budget:   budget,
		catalog:  catalog,
		api:      api,
		cfg:      cfg,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

// ChangePlan 更新套餐、写入订阅记录，并同步 AI 预算
func (s *BillingService) ChangePlan(ctx context.Context, user *model.User, tier string, opts ChangeOptions) error {
	if !plan.IsValidTier(tier) {
		return ErrUnknownPlan
	}

	now := s.nowFn()
	p := s.catalog.Get(tier)
	amount := p.Price
	if opts.Amount != nil {
		amount = *opts.Amount
	}
	method := opts.PaymentMethod
	if method == "" {
		method = "admin"
	}

	sub := &model.Subscription{
		Plan:          tier,
		PreviousPlan:  user.Plan,
		Amount:        amount,
		StartedAt:     now,
		ExpiresAt:     opts.ExpiresAt,
		Status:        model.SubscriptionStatusActive,
		PaymentMethod: method,
		TransactionID: opts.TransactionID,
	}
	if opts.EventID != "" {
		eventID := opts.EventID
		sub.EventID = &eventID
	}

	if err := s.userRepo.ChangePlan(ctx, user.ID, tier, sub); err != nil {
		return fmt.Errorf("change plan: %w", err)
	}
	if opts.ExpiresAt != nil || tier == string(plan.TierFree) {
		if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{
			"subscription_expires_at": opts.ExpiresAt,
		}); err != nil {
			return err
		}
		user.SubscriptionExpiresAt = opts.ExpiresAt
	}

	previous := user.Plan
	user.Plan = tier
	if _, err := s.budget.SyncBudgetWithPlan(ctx, user); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"user_id": user.ID,
		"from":    previous,
		"to":      tier,
		"event":   opts.EventID,
	}).Info("plan changed")
	return nil
}

// CreateCheckout 创建订阅模式的 Checkout 会话
func (s *BillingService) CreateCheckout(ctx context.Context, userID int64, tier string) (*dto.CheckoutResponse, error) {
	if !plan.IsValidTier(tier) || tier == string(plan.TierFree) {
		return nil, ErrUnknownPlan
	}
	priceID := s.cfg.Prices[tier]
	frontendURL := strings.TrimRight(s.cfg.FrontendURL, "/")
	if s.api == nil || priceID == "" || frontendURL == "" {
		return nil, ErrBillingNotConfigured
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	ref := strconv.FormatInt(user.ID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(ref),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{"plan": tier, "user_id": ref},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"plan": tier, "user_id": ref},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}

	sess, err := s.api.NewCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &dto.CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *BillingService) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{"user_id": strconv.FormatInt(user.ID, 10)},
	}
	if user.Email != nil {
		params.Email = stripe.String(*user.Email)
	}
	cust, err := s.api.NewCustomer(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{
		"stripe_customer_id": cust.ID,
	}); err != nil {
		return "", err
	}
	user.StripeCustomerID = &cust.ID
	return cust.ID, nil
}

// HandleWebhook 校验签名后处理订阅事件，重复投递的事件直接忽略
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if s.cfg.WebhookSecret == "" {
		return ErrBillingNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	seen, err := s.subRepo.ExistsByEventID(ctx, event.ID)
	if err != nil {
		return err
	}
	if seen {
		log.WithField("event_id", event.ID).Info("duplicate stripe event ignored")
		return nil
	}

	switch event.Type {
	case eventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		return s.handleCheckoutCompleted(ctx, event.ID, &sess)
	case eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
		}
		return s.handleSubscriptionChange(ctx, event.ID, string(event.Type), &sub)
	default:
		log.WithField("type", event.Type).Debug("stripe event ignored")
	}
	return nil
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, eventID string, sess *stripe.CheckoutSession) error {
	tier := sess.Metadata["plan"]
	if !plan.IsValidTier(tier) {
		return fmt.Errorf("%w: missing plan metadata", ErrInvalidWebhook)
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	user, err := s.findUser(ctx, sess.ClientReferenceID, customerID)
	if err != nil {
		return err
	}
	if customerID != "" && (user.StripeCustomerID == nil || *user.StripeCustomerID != customerID) {
		if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{
			"stripe_customer_id": customerID,
		}); err != nil {
			return err
		}
		user.StripeCustomerID = &customerID
	}

	opts := ChangeOptions{EventID: eventID, PaymentMethod: "stripe"}
	if sess.Subscription != nil {
		opts.TransactionID = sess.Subscription.ID
	}
	if sess.AmountTotal > 0 {
		amount := decimal.New(sess.AmountTotal, -2)
		opts.Amount = &amount
	}
	return s.ChangePlan(ctx, user, tier, opts)
}

func (s *BillingService) handleSubscriptionChange(ctx context.Context, eventID, eventType string, sub *stripe.Subscription) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	user, err := s.findUser(ctx, sub.Metadata["user_id"], customerID)
	if err != nil {
		return err
	}

	tier := string(plan.TierFree)
	var expiresAt *time.Time
	active := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
	if eventType == eventSubscriptionUpdated && active {
		tier = s.tierForSubscription(sub)
		if tier == "" {
			return fmt.Errorf("%w: unknown price", ErrInvalidWebhook)
		}
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			expiresAt = &t
		}
	}

	if tier == user.Plan {
		// 续费只更新到期时间
		if expiresAt != nil {
			return s.userRepo.UpdateFields(ctx, user.ID, map[string]interface{}{
				"subscription_expires_at": expiresAt,
			})
		}
		return nil
	}

	return s.ChangePlan(ctx, user, tier, ChangeOptions{
		EventID:       eventID,
		TransactionID: sub.ID,
		PaymentMethod: "stripe",
		ExpiresAt:     expiresAt,
	})
}

// tierForSubscription 先按价格 ID 反查，再看元数据
func (s *BillingService) tierForSubscription(sub *stripe.Subscription) string {
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			for tier, priceID := range s.cfg.Prices {
				if priceID == item.Price.ID {
					return tier
				}
			}
		}
	}
	if tier := sub.Metadata["plan"]; plan.IsValidTier(tier) {
		return tier
	}
	return ""
}

func (s *BillingService) findUser(ctx context.Context, ref, customerID string) (*model.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		user, err := s.userRepo.GetByID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if customerID != "" {
		user, err := s.userRepo.GetByStripeCustomerID(ctx, customerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrUserNotFound
}

// Plans 对外展示的套餐列表
func (s *BillingService) Plans() []*dto.PlanInfo {
	plans := s.catalog.All()
	out := make([]*dto.PlanInfo, len(plans))
	for i, p := range plans {
		out[i] = &dto.PlanInfo{
			Tier:                 string(p.Tier),
			DisplayName:          p.DisplayName,
			MonthlyAnalysisLimit: p.MonthlyAnalysisLimit,
			MonthlyAIBudget:      p.MonthlyAIBudget.StringFixed(2),
			Price:                p.Price.StringFixed(2),
			Features:             p.Features.List(),
		}
	}
	return out
}

// Subscriptions 当前有效订阅与全部变更记录，按时间倒序
func (s *BillingService) Subscriptions(ctx context.Context, userID int64) (*dto.SubscriptionHistory, error) {
	subs, err := s.subRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &dto.SubscriptionHistory{History: make([]*dto.SubscriptionInfo, len(subs))}
	for i, sub := range subs {
		out.History[i] = toSubscriptionInfo(sub)
	}

	active, err := s.subRepo.GetActive(ctx, userID)
	if err != nil && !repository.IsNotFound(err) {
		return nil, err
	}
	if active != nil {
		out.Active = toSubscriptionInfo(active)
	}
	return out, nil
}

func toSubscriptionInfo(sub *model.Subscription) *dto.SubscriptionInfo {
	info := &dto.SubscriptionInfo{
		ID:            sub.ID,
		Plan:          sub.Plan,
		PreviousPlan:  sub.PreviousPlan,
		Amount:        sub.Amount.StringFixed(2),
		Status:        sub.Status,
		PaymentMethod: sub.PaymentMethod,
		StartedAt:     sub.StartedAt.UTC().Format(time.RFC3339),
	}
	if sub.ExpiresAt != nil {
		info.ExpiresAt = sub.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return info
}
