package payme

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qanotai/qanotai-backend/internal/config"
	dbutil "github.com/qanotai/qanotai-backend/internal/db"
	"github.com/qanotai/qanotai-backend/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// createTimeout is how long a created transaction may stay unperformed
// before PerformTransaction cancels it with ReasonTimeout.
const createTimeout = 12 * time.Hour

// Service reconciles gateway callbacks with the local payment ledger.
// Every mutating operation runs in one database transaction; the unique
// index on the gateway transaction id makes duplicate delivery safe.
type Service struct {
	db  *gorm.DB
	cfg config.PaymeConfig
}

// NewService constructs a Service.
func NewService(db *gorm.DB, cfg config.PaymeConfig) *Service {
	return &Service{db: db, cfg: cfg}
}

// Dispatch routes one gateway request to its handler. The method set is
// closed; unknown methods are rejected, never silently accepted.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	var (
		result any
		err    error
	)
	switch req.Method {
	case MethodCheckPerformTransaction:
		result, err = s.CheckPerformTransaction(ctx, req.Params.Amount, req.Params.Account)
	case MethodCreateTransaction:
		result, err = s.CreateTransaction(ctx, req.Params.ID, req.Params.Time, req.Params.Amount, req.Params.Account)
	case MethodPerformTransaction:
		result, err = s.PerformTransaction(ctx, req.Params.ID)
	case MethodCancelTransaction:
		result, err = s.CancelTransaction(ctx, req.Params.ID, req.Params.Reason)
	case MethodCheckTransaction:
		result, err = s.CheckTransaction(ctx, req.Params.ID)
	case MethodGetStatement:
		result, err = s.GetStatement(ctx, req.Params.From, req.Params.To)
	default:
		err = ErrMethodNotFound
	}

	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		gatewayErr := AsError(err)
		if gatewayErr.Code == CodeInternalError {
			log.WithError(err).WithField("method", req.Method).Error("payme: callback failed")
		}
		resp.Error = gatewayErr
		return resp
	}
	resp.Result = result
	return resp
}

// CheckPerformTransaction validates that a payment for the referenced
// order is currently acceptable. It has no side effects.
func (s *Service) CheckPerformTransaction(ctx context.Context, amount int64, account Account) (*CheckPerformResult, error) {
	orderID := strings.TrimSpace(account.OrderID)
	if orderID == "" {
		return nil, ErrUnknownAccount
	}

	var payment models.Payment
	errFind := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, fmt.Errorf("check perform: %w", errFind)
	}

	if payment.Status != models.PaymentStatusPending {
		return nil, ErrUnknownAccount
	}
	if payment.PaymeTransactionID != nil {
		// Another gateway transaction is already attached to this order.
		return nil, ErrUnknownAccount
	}
	if amount != payment.AmountTiyin {
		return nil, ErrInvalidAmount
	}
	return &CheckPerformResult{Allow: true}, nil
}

// CreateTransaction attaches the gateway transaction id to the pending
// payment for the referenced order. Retries with an identical id,
// amount, and account return the stored state unchanged.
func (s *Service) CreateTransaction(ctx context.Context, transactionID string, timeMs int64, amount int64, account Account) (*CreateResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrNotFound
	}

	var result *CreateResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Payment
		errFind := dbutil.LockForUpdate(tx).Where("payme_transaction_id = ?", transactionID).First(&existing).Error
		switch {
		case errFind == nil:
			if existing.AmountTiyin != amount || existing.OrderID != strings.TrimSpace(account.OrderID) {
				return ErrAlreadyExists
			}
			// Retry of a known transaction: return the stored state,
			// whatever it is, without touching the row.
			result = &CreateResult{
				CreateTime:  existing.CreateTimeMs,
				Transaction: strconv.FormatUint(existing.ID, 10),
				State:       existing.State,
			}
			return nil
		case !errors.Is(errFind, gorm.ErrRecordNotFound):
			return fmt.Errorf("create transaction: lookup: %w", errFind)
		}

		orderID := strings.TrimSpace(account.OrderID)
		if orderID == "" {
			return ErrUnknownAccount
		}
		var payment models.Payment
		errOrder := dbutil.LockForUpdate(tx).Where("order_id = ?", orderID).First(&payment).Error
		if errOrder != nil {
			if errors.Is(errOrder, gorm.ErrRecordNotFound) {
				return ErrUnknownAccount
			}
			return fmt.Errorf("create transaction: order lookup: %w", errOrder)
		}

		if payment.PaymeTransactionID != nil {
			// A different gateway transaction already owns this order.
			return ErrAlreadyExists
		}
		if payment.Status != models.PaymentStatusPending {
			return ErrAlreadyExists
		}
		if amount != payment.AmountTiyin {
			return ErrInvalidAmount
		}

		if timeMs <= 0 {
			timeMs = nowMs()
		}
		updates := map[string]any{
			"payme_transaction_id": transactionID,
			"state":                models.PaymeStateCreated,
			"create_time_ms":       timeMs,
			"updated_at":           time.Now().UTC(),
		}
		if errUpdate := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; errUpdate != nil {
			// The unique index on payme_transaction_id turns a lost race
			// into a constraint violation rather than a double attach.
			return fmt.Errorf("create transaction: attach: %w", errUpdate)
		}

		result = &CreateResult{
			CreateTime:  timeMs,
			Transaction: strconv.FormatUint(payment.ID, 10),
			State:       models.PaymeStateCreated,
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return result, nil
}

// PerformTransaction completes a created transaction and activates the
// funded subscription exactly once. A second perform for the same id
// fails with an invalid-state error.
func (s *Service) PerformTransaction(ctx context.Context, transactionID string) (*PerformResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrNotFound
	}

	var result *PerformResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, errLoad := loadByTransactionID(tx, transactionID)
		if errLoad != nil {
			return errLoad
		}

		if payment.State != models.PaymeStateCreated {
			return ErrInvalidState
		}

		now := time.Now().UTC()
		if payment.CreateTimeMs > 0 && now.UnixMilli()-payment.CreateTimeMs > createTimeout.Milliseconds() {
			reason := ReasonTimeout
			if errCancel := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
				"state":          models.PaymeStateCancelled,
				"status":         models.PaymentStatusFailed,
				"cancel_time_ms": now.UnixMilli(),
				"reason":         reason,
				"updated_at":     now,
			}).Error; errCancel != nil {
				return fmt.Errorf("perform transaction: timeout cancel: %w", errCancel)
			}
			return ErrInvalidState
		}

		subscriptionID, errActivate := activateSubscription(tx, payment, now)
		if errActivate != nil {
			return errActivate
		}

		performMs := now.UnixMilli()
		if errUpdate := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
			"state":           models.PaymeStatePerformed,
			"status":          models.PaymentStatusCompleted,
			"perform_time_ms": performMs,
			"completed_at":    now,
			"subscription_id": subscriptionID,
			"updated_at":      now,
		}).Error; errUpdate != nil {
			return fmt.Errorf("perform transaction: update: %w", errUpdate)
		}

		result = &PerformResult{
			Transaction: strconv.FormatUint(payment.ID, 10),
			PerformTime: performMs,
			State:       models.PaymeStatePerformed,
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithField("transaction_id", transactionID).Info("payme: transaction performed")
	return result, nil
}

// CancelTransaction moves a transaction to a cancelled terminal state.
// Cancelling a performed transaction marks the payment refunded and
// deactivates the funded subscription; cancelling an already-cancelled
// transaction replays the stored result.
func (s *Service) CancelTransaction(ctx context.Context, transactionID string, reason *int) (*CancelResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrNotFound
	}

	var result *CancelResult
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, errLoad := loadByTransactionID(tx, transactionID)
		if errLoad != nil {
			return errLoad
		}

		if payment.State == models.PaymeStateCancelled || payment.State == models.PaymeStateCancelledAfterPerform {
			result = &CancelResult{
				Transaction: strconv.FormatUint(payment.ID, 10),
				CancelTime:  payment.CancelTimeMs,
				State:       payment.State,
			}
			return nil
		}

		now := time.Now().UTC()
		cancelMs := now.UnixMilli()
		updates := map[string]any{
			"cancel_time_ms": cancelMs,
			"reason":         reason,
			"updated_at":     now,
		}

		switch payment.State {
		case models.PaymeStateCreated:
			updates["state"] = models.PaymeStateCancelled
			updates["status"] = models.PaymentStatusFailed
		case models.PaymeStatePerformed:
			updates["state"] = models.PaymeStateCancelledAfterPerform
			updates["status"] = models.PaymentStatusRefunded
			if payment.SubscriptionID != nil {
				if errDeactivate := tx.Model(&models.Subscription{}).
					Where("id = ? AND status = ?", *payment.SubscriptionID, models.SubscriptionStatusActive).
					Updates(map[string]any{
						"status":       models.SubscriptionStatusCancelled,
						"cancelled_at": now,
						"updated_at":   now,
					}).Error; errDeactivate != nil {
					return fmt.Errorf("cancel transaction: deactivate subscription: %w", errDeactivate)
				}
			}
		default:
			return ErrInvalidState
		}

		if errUpdate := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; errUpdate != nil {
			return fmt.Errorf("cancel transaction: update: %w", errUpdate)
		}

		state := updates["state"].(int)
		result = &CancelResult{
			Transaction: strconv.FormatUint(payment.ID, 10),
			CancelTime:  cancelMs,
			State:       state,
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	log.WithField("transaction_id", transactionID).Info("payme: transaction cancelled")
	return result, nil
}

// CheckTransaction returns the stored state of a transaction.
func (s *Service) CheckTransaction(ctx context.Context, transactionID string) (*CheckResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrNotFound
	}

	var payment models.Payment
	errFind := s.db.WithContext(ctx).Where("payme_transaction_id = ?", transactionID).First(&payment).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("check transaction: %w", errFind)
	}

	return &CheckResult{
		CreateTime:  payment.CreateTimeMs,
		PerformTime: payment.PerformTimeMs,
		CancelTime:  payment.CancelTimeMs,
		Transaction: strconv.FormatUint(payment.ID, 10),
		State:       payment.State,
		Reason:      payment.Reason,
	}, nil
}

// GetStatement returns gateway transactions created within [from, to].
func (s *Service) GetStatement(ctx context.Context, fromMs, toMs int64) (*StatementResult, error) {
	var rows []models.Payment
	if errFind := s.db.WithContext(ctx).
		Where("payme_transaction_id IS NOT NULL").
		Where("create_time_ms >= ? AND create_time_ms <= ?", fromMs, toMs).
		Order("create_time_ms ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("get statement: %w", errFind)
	}

	entries := make([]StatementEntry, 0, len(rows))
	for _, row := range rows {
		txID := ""
		if row.PaymeTransactionID != nil {
			txID = *row.PaymeTransactionID
		}
		entries = append(entries, StatementEntry{
			ID:          txID,
			Time:        row.CreateTimeMs,
			Amount:      row.AmountTiyin,
			Account:     Account{OrderID: row.OrderID},
			CreateTime:  row.CreateTimeMs,
			PerformTime: row.PerformTimeMs,
			CancelTime:  row.CancelTimeMs,
			Transaction: strconv.FormatUint(row.ID, 10),
			State:       row.State,
			Reason:      row.Reason,
		})
	}
	return &StatementResult{Transactions: entries}, nil
}

// loadByTransactionID locks and loads the payment owning a gateway
// transaction id.
func loadByTransactionID(tx *gorm.DB, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	errFind := dbutil.LockForUpdate(tx).Where("payme_transaction_id = ?", transactionID).First(&payment).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load transaction: %w", errFind)
	}
	return &payment, nil
}

// activateSubscription activates or extends the subscription funded by
// a payment and refreshes the current quota row's allowance. Returns
// the subscription id to link on the payment.
func activateSubscription(tx *gorm.DB, payment *models.Payment, now time.Time) (uint64, error) {
	var plan models.Plan
	if errPlan := tx.First(&plan, payment.PlanID).Error; errPlan != nil {
		return 0, fmt.Errorf("activate subscription: load plan: %w", errPlan)
	}

	var existing models.Subscription
	errFind := dbutil.LockForUpdate(tx).
		Where("user_id = ? AND plan_id = ? AND status = ?", payment.UserID, payment.PlanID, models.SubscriptionStatusActive).
		First(&existing).Error

	var subscriptionID uint64
	switch {
	case errFind == nil:
		// Renewal: extend the current period.
		if existing.EndDate != nil && plan.DurationDays > 0 {
			base := *existing.EndDate
			if base.Before(now) {
				base = now
			}
			newEnd := base.AddDate(0, 0, plan.DurationDays)
			if errExtend := tx.Model(&models.Subscription{}).Where("id = ?", existing.ID).Updates(map[string]any{
				"end_date":          newEnd,
				"next_billing_date": newEnd,
				"updated_at":        now,
			}).Error; errExtend != nil {
				return 0, fmt.Errorf("activate subscription: extend: %w", errExtend)
			}
		}
		subscriptionID = existing.ID
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		sub := models.Subscription{
			UserID:    payment.UserID,
			PlanID:    payment.PlanID,
			Status:    models.SubscriptionStatusActive,
			StartDate: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if plan.DurationDays > 0 {
			end := now.AddDate(0, 0, plan.DurationDays)
			sub.EndDate = &end
			sub.NextBillingDate = &end
		}
		if errCreate := tx.Create(&sub).Error; errCreate != nil {
			return 0, fmt.Errorf("activate subscription: create: %w", errCreate)
		}
		subscriptionID = sub.ID
	default:
		return 0, fmt.Errorf("activate subscription: lookup: %w", errFind)
	}

	// Raise the current period allowance so the new plan takes effect
	// without waiting for the period rollover.
	if errQuota := tx.Model(&models.UsageQuota{}).
		Where("user_id = ? AND period_start <= ? AND period_end > ?", payment.UserID, now, now).
		Update("tests_limit", plan.MonthlyTestLimit).Error; errQuota != nil {
		return 0, fmt.Errorf("activate subscription: refresh quota: %w", errQuota)
	}

	return subscriptionID, nil
}

// nowMs returns the current time in Unix milliseconds.
func nowMs() int64 { return time.Now().UTC().UnixMilli() }
