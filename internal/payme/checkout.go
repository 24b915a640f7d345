package payme

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/qanotai/qanotai-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Checkout page base URLs for the production and sandbox gateways.
const (
	checkoutURL     = "https://checkout.paycom.uz"
	checkoutTestURL = "https://checkout.test.paycom.uz"
)

// Checkout describes a freshly created pending payment and the hosted
// payment page link the client should be redirected to.
type Checkout struct {
	PaymentID   uint64 `json:"payment_id"`
	OrderID     string `json:"order_id"`
	AmountUZS   int64  `json:"amount_uzs"`
	AmountTiyin int64  `json:"amount_tiyin"`
	PayLink     string `json:"pay_link"`
}

// ErrPlanNotPurchasable is returned when a checkout targets a disabled
// or free plan.
var ErrPlanNotPurchasable = errors.New("plan is not purchasable")

// CreateCheckout creates a pending payment for the given plan tier and
// returns the hosted checkout link. The order id is unique per attempt,
// so repeated checkout requests never collide with in-flight gateway
// transactions.
func (s *Service) CreateCheckout(ctx context.Context, userID uint64, planTier string) (*Checkout, error) {
	var plan models.Plan
	errPlan := s.db.WithContext(ctx).Where("tier = ?", strings.TrimSpace(planTier)).First(&plan).Error
	if errPlan != nil {
		if errors.Is(errPlan, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotPurchasable
		}
		return nil, fmt.Errorf("create checkout: load plan: %w", errPlan)
	}
	if !plan.IsEnabled || plan.PriceUZS <= 0 {
		return nil, ErrPlanNotPurchasable
	}

	now := time.Now().UTC()
	payment := models.Payment{
		UserID:      userID,
		PlanID:      plan.ID,
		OrderID:     "order_" + uuid.NewString(),
		AmountUZS:   plan.PriceUZS,
		AmountTiyin: plan.PriceUZS * 100,
		Status:      models.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&payment).Error; errCreate != nil {
		return nil, fmt.Errorf("create checkout: %w", errCreate)
	}

	return &Checkout{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		AmountUZS:   payment.AmountUZS,
		AmountTiyin: payment.AmountTiyin,
		PayLink:     s.PayLink(payment.OrderID, payment.AmountTiyin),
	}, nil
}

// PayLink builds the hosted checkout URL for an order. The gateway
// expects the merchant id, account fields, and tiyin amount packed as
// semicolon-separated pairs and base64 encoded into the path.
func (s *Service) PayLink(orderID string, amountTiyin int64) string {
	params := fmt.Sprintf("m=%s;ac.order_id=%s;a=%d", s.cfg.MerchantID, orderID, amountTiyin)
	encoded := base64.StdEncoding.EncodeToString([]byte(params))
	base := checkoutURL
	if s.cfg.TestMode {
		base = checkoutTestURL
	}
	return base + "/" + encoded
}
