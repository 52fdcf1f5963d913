package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-rewards/pkg/repository"
	"storefront-rewards/pkg/sequence"
	"storefront-rewards/services/award"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateReferral is returned when the referred user already has
	// a referrer on record.
	ErrDuplicateReferral = errors.New("user already referred")
	ErrSelfReferral      = errors.New("users cannot refer themselves")
)

type Tracker struct {
	db        *gorm.DB
	node      *snowflake.Node
	referrals repository.Repository[Referral]
	awards    *award.Engine
	sequence  sequence.Generator
}

type TrackerParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Awards   *award.Engine
	Sequence sequence.Generator `optional:"true"`
}

func NewTracker(p TrackerParams) *Tracker {
	return &Tracker{
		db:        p.DB,
		node:      p.Node,
		referrals: repository.ProvideStore[Referral](p.DB),
		awards:    p.Awards,
		sequence:  p.Sequence,
	}
}

// CreateReferral links referredID to referrerID and pays the signup award.
// The pre-check gives a friendly error for the common case; the unique index
// on referred_id is the real guard under concurrency.
func (t *Tracker) CreateReferral(ctx context.Context, referrerID, referredID, code string) (*Referral, error) {
	if referrerID == "" || referredID == "" {
		return nil, fmt.Errorf("referrer id and referred id are required")
	}
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}

	existing, err := t.referrals.FindOne(ctx, &Referral{ReferredID: referredID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, t.recoverSignupAward(ctx, existing)
	}

	if code == "" {
		code = t.nextCode(ctx)
	}

	ref := &Referral{
		ID:         t.node.Generate().String(),
		ReferrerID: referrerID,
		ReferredID: referredID,
		Code:       code,
	}

	if err := t.referrals.Create(ctx, ref); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, findErr := t.referrals.FindOne(ctx, &Referral{ReferredID: referredID})
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return nil, t.recoverSignupAward(ctx, winner)
			}
			return nil, ErrDuplicateReferral
		}
		return nil, err
	}

	// Award failure after the row exists is retryable: the referral-keyed
	// ledger reference makes the retry idempotent.
	if err := t.awards.ForReferralSignup(ctx, referrerID, ref.ID); err != nil {
		return nil, err
	}

	zap.L().Info("referral created",
		zap.String("referral_id", ref.ID),
		zap.String("referrer_id", referrerID),
		zap.String("referred_id", referredID),
	)
	return ref, nil
}

// recoverSignupAward re-drives the signup award for a referral that already
// exists. A prior CreateReferral may have persisted the row and then failed
// to commit the award; the referral-keyed ledger reference makes the retry a
// no-op when the award already landed.
func (t *Tracker) recoverSignupAward(ctx context.Context, ref *Referral) error {
	if err := t.awards.ForReferralSignup(ctx, ref.ReferrerID, ref.ID); err != nil {
		return err
	}
	return ErrDuplicateReferral
}

// OnReferredFirstPurchase pays the purchase award to the referrer the first
// time the referred user completes a purchase. The award commits before the
// purchase_awarded_at flip, so an award failure leaves the flag unset and a
// later invocation retries; the referral-keyed ledger reference keeps the
// retry from paying twice.
func (t *Tracker) OnReferredFirstPurchase(ctx context.Context, referredID string) error {
	ref, err := t.referrals.FindOne(ctx, &Referral{ReferredID: referredID})
	if err != nil {
		return err
	}
	if ref == nil || ref.PurchaseAwardedAt != nil {
		return nil
	}

	if err := t.awards.ForReferralPurchase(ctx, ref.ReferrerID, ref.ID); err != nil {
		return err
	}

	res := t.db.WithContext(ctx).
		Model(&Referral{}).
		Where("id = ? AND purchase_awarded_at IS NULL", ref.ID).
		Update("purchase_awarded_at", time.Now())
	return res.Error
}

// ForReferrer lists the referrals a user has made.
func (t *Tracker) ForReferrer(ctx context.Context, referrerID string) ([]*Referral, error) {
	return t.referrals.Find(ctx, &Referral{ReferrerID: referrerID})
}

func (t *Tracker) nextCode(ctx context.Context) string {
	if t.sequence != nil {
		code, err := t.sequence.NextReferralCode(ctx)
		if err == nil {
			return code
		}
		zap.L().Warn("sequence generator unavailable, falling back to snowflake code", zap.Error(err))
	}
	return fmt.Sprintf("REF-%s", t.node.Generate().String())
}
