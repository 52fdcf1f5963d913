package award

import (
	"context"
	"errors"
	"fmt"

	"storefront-rewards/services/ledger"
	"storefront-rewards/services/notification"
	"storefront-rewards/services/pointsconfig"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Engine turns storefront events into earned ledger entries. Every award is
// idempotent through its ledger reference, so event replays and retried
// webhooks never double-award.
type Engine struct {
	ledger     *ledger.Service
	configs    *pointsconfig.Resolver
	dispatcher notification.Dispatcher
}

type EngineParams struct {
	fx.In

	Ledger     *ledger.Service
	Configs    *pointsconfig.Resolver
	Dispatcher notification.Dispatcher
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		ledger:     p.Ledger,
		configs:    p.Configs,
		dispatcher: p.Dispatcher,
	}
}

// ForSpend awards floor(amountSpent/100) * spend rate points for a completed
// order. Sub-threshold orders award nothing and write nothing.
func (e *Engine) ForSpend(ctx context.Context, userID string, amountSpent int64, orderID string) error {
	cfg := e.configs.ActiveOrDefault(ctx)

	points := (amountSpent / 100) * cfg.SpendPointsPer100Units
	if points <= 0 {
		zap.L().Debug("spend below award threshold, skipping",
			zap.String("user_id", userID),
			zap.String("order_id", orderID),
			zap.Int64("amount_spent", amountSpent),
		)
		return nil
	}

	return e.commit(ctx, commitSpec{
		userID:         userID,
		points:         points,
		reason:         "spend",
		referenceID:    orderID,
		relatedOrderID: orderID,
		notifyTitle:    "Points earned",
		notifyBody:     fmt.Sprintf("You earned %d points on your order.", points),
	})
}

// ForQuizCompletion awards the quiz bonus once per user.
func (e *Engine) ForQuizCompletion(ctx context.Context, userID string) error {
	cfg := e.configs.ActiveOrDefault(ctx)
	if cfg.QuizCompletionPoints <= 0 {
		return nil
	}

	return e.commit(ctx, commitSpec{
		userID:      userID,
		points:      cfg.QuizCompletionPoints,
		reason:      "quiz completion",
		referenceID: fmt.Sprintf("quiz:%s", userID),
		notifyTitle: "Quiz bonus",
		notifyBody:  fmt.Sprintf("You earned %d points for completing the quiz.", cfg.QuizCompletionPoints),
	})
}

// ForFirstPurchase awards the first purchase bonus once per user.
func (e *Engine) ForFirstPurchase(ctx context.Context, userID, orderID string) error {
	cfg := e.configs.ActiveOrDefault(ctx)
	if cfg.FirstPurchasePoints <= 0 {
		return nil
	}

	return e.commit(ctx, commitSpec{
		userID:         userID,
		points:         cfg.FirstPurchasePoints,
		reason:         "first purchase",
		referenceID:    fmt.Sprintf("first-purchase:%s", userID),
		relatedOrderID: orderID,
		notifyTitle:    "First purchase bonus",
		notifyBody:     fmt.Sprintf("You earned %d bonus points on your first purchase.", cfg.FirstPurchasePoints),
	})
}

// ForReferralSignup awards the referrer when a referred user signs up. The
// reference is keyed by the referral row, so each relationship pays out once.
func (e *Engine) ForReferralSignup(ctx context.Context, referrerID, referralID string) error {
	cfg := e.configs.ActiveOrDefault(ctx)
	if cfg.ReferralSignupPoints <= 0 {
		return nil
	}

	return e.commit(ctx, commitSpec{
		userID:      referrerID,
		points:      cfg.ReferralSignupPoints,
		reason:      "referral signup",
		referenceID: fmt.Sprintf("referral-signup:%s", referralID),
		notifyTitle: "Referral bonus",
		notifyBody:  fmt.Sprintf("You earned %d points for referring a friend.", cfg.ReferralSignupPoints),
	})
}

// ForReferralPurchase awards the referrer when the referred user completes
// their first purchase.
func (e *Engine) ForReferralPurchase(ctx context.Context, referrerID, referralID string) error {
	cfg := e.configs.ActiveOrDefault(ctx)
	if cfg.ReferralPurchasePoints <= 0 {
		return nil
	}

	return e.commit(ctx, commitSpec{
		userID:      referrerID,
		points:      cfg.ReferralPurchasePoints,
		reason:      "referral purchase",
		referenceID: fmt.Sprintf("referral-purchase:%s", referralID),
		notifyTitle: "Referral bonus",
		notifyBody:  fmt.Sprintf("You earned %d points because your referral made a purchase.", cfg.ReferralPurchasePoints),
	})
}

type commitSpec struct {
	userID         string
	points         int64
	reason         string
	referenceID    string
	relatedOrderID string
	notifyTitle    string
	notifyBody     string
}

func (e *Engine) commit(ctx context.Context, spec commitSpec) error {
	_, err := e.ledger.Commit(ctx, ledger.CommitParams{
		UserID:         spec.userID,
		Delta:          spec.points,
		Kind:           ledger.KindEarned,
		Reason:         spec.reason,
		ReferenceID:    spec.referenceID,
		RelatedOrderID: spec.relatedOrderID,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			zap.L().Info("award already granted, skipping",
				zap.String("user_id", spec.userID),
				zap.String("reason", spec.reason),
				zap.String("reference_id", spec.referenceID),
			)
			return nil
		}
		return err
	}

	e.dispatcher.Dispatch(ctx, notification.Message{
		UserID:   spec.userID,
		Title:    spec.notifyTitle,
		Body:     spec.notifyBody,
		Category: notification.CategoryPoints,
	})

	return nil
}
