package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-rewards/pkg/db/option"
	"storefront-rewards/pkg/db/pagination"
	"storefront-rewards/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientBalance rejects a debit larger than the available points.
	// The balance is left untouched.
	ErrInsufficientBalance = errors.New("insufficient points balance")
	// ErrDuplicateReference rejects a commit whose reference id was already
	// written. The original entry stands; nothing new is appended.
	ErrDuplicateReference = errors.New("ledger reference already exists")
	// ErrConflict signals a lost concurrent-write race. Callers retry the
	// whole operation.
	ErrConflict = errors.New("ledger write conflict")
	// ErrInvalidCursor rejects a page cursor that does not decode.
	ErrInvalidCursor = errors.New("invalid page cursor")
)

// Observer is notified after a commit raised a user's available balance.
// Observer failures never affect the committed ledger state.
type Observer interface {
	OnBalanceIncrease(ctx context.Context, userID string, available int64) error
}

// Service owns balances and the transaction log. It is the only component
// allowed to mutate balances.
type Service struct {
	grpc_health_v1.UnimplementedHealthServer

	db   *gorm.DB
	node *snowflake.Node

	entries  repository.Repository[LedgerEntry]
	balances repository.Repository[UserBalance]

	observers []Observer
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Observers []Observer `group:"ledger.observers"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		entries:  repository.ProvideStore[LedgerEntry](p.DB),
		balances: repository.ProvideStore[UserBalance](p.DB),

		observers: p.Observers,
	}
}

// GetBalance returns the user's balance, initializing a zero row on first
// interaction. Initialization is idempotent under concurrent first access:
// the insert does nothing on conflict and the winner's row is re-read.
func (s *Service) GetBalance(ctx context.Context, userID string) (*UserBalance, error) {
	bal, err := s.balances.FindOne(ctx, &UserBalance{UserID: userID})
	if err != nil {
		return nil, err
	}
	if bal != nil {
		return bal, nil
	}

	now := time.Now()
	fresh := &UserBalance{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(fresh).Error; err != nil {
		return nil, err
	}

	bal, err = s.balances.FindOne(ctx, &UserBalance{UserID: userID})
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, fmt.Errorf("balance initialization for user %s: %w", userID, ErrConflict)
	}
	return bal, nil
}

// CommitParams describes a single balance mutation. Delta is a positive
// magnitude; Kind decides the sign of the stored entry.
type CommitParams struct {
	UserID         string
	Delta          int64
	Kind           EntryKind
	Reason         string
	ReferenceID    string
	RelatedOrderID string
	Metadata       datatypes.JSON
}

func (p CommitParams) validate() error {
	if p.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if p.Delta <= 0 {
		return fmt.Errorf("delta must be > 0")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("unsupported entry kind %q", p.Kind)
	}
	if p.ReferenceID == "" {
		return fmt.Errorf("reference id is required")
	}
	return nil
}

// Commit is the single mutation entry point. The entry append and the balance
// update happen in one transaction with the balance row locked, so the log and
// the cached balance never diverge and concurrent debits cannot jointly
// overdraw.
func (s *Service) Commit(ctx context.Context, p CommitParams) (*UserBalance, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", p.UserID),
		zap.String("kind", string(p.Kind)),
		zap.String("reference_id", p.ReferenceID),
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	// pre-check for callers' UX; the unique index is the real guard
	if exist, err := s.entries.FindOne(ctx, &LedgerEntry{ReferenceID: p.ReferenceID}); err != nil {
		return nil, err
	} else if exist != nil {
		zap.L().With(opts...).Warn("ledger reference already exists")
		return nil, ErrDuplicateReference
	}

	// ensure the row exists before locking it inside the transaction
	if _, err := s.GetBalance(ctx, p.UserID); err != nil {
		return nil, err
	}

	var updated *UserBalance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := tx.Scopes(option.LockingUpdate)
		balances := s.balances.WithTrx(locked)
		entries := s.entries.WithTrx(locked)

		bal, err := balances.FindOne(ctx, &UserBalance{UserID: p.UserID})
		if err != nil {
			return err
		}
		if bal == nil {
			return fmt.Errorf("balance for user %s: %w", p.UserID, ErrConflict)
		}

		signed := p.Delta
		if p.Kind != KindEarned {
			if p.Delta > bal.AvailablePoints {
				return ErrInsufficientBalance
			}
			signed = -p.Delta
		}

		last, err := s.lastEntry(locked, ctx, p.UserID)
		if err != nil {
			return err
		}

		previousHash := "GENESIS"
		if last != nil {
			previousHash = last.Hash
		}

		transactionID, err := GenerateTransactionID()
		if err != nil {
			return err
		}

		entry := &LedgerEntry{
			ID:             s.node.Generate().String(),
			UserID:         p.UserID,
			Delta:          signed,
			Kind:           string(p.Kind),
			Reason:         p.Reason,
			ReferenceID:    p.ReferenceID,
			RelatedOrderID: p.RelatedOrderID,
			TransactionID:  transactionID,
			PreviousHash:   previousHash,
			Metadata:       p.Metadata,
			// microsecond precision survives every supported driver, so the
			// stored created_at re-hashes to the same value
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		}
		entry.Hash = entry.GenerateHash()

		if err := entries.Create(ctx, entry); err != nil {
			return translateCommitErr(err)
		}

		updates := map[string]any{"updated_at": time.Now()}
		switch p.Kind {
		case KindEarned:
			updates["available_points"] = gorm.Expr("available_points + ?", p.Delta)
			updates["lifetime_earned"] = gorm.Expr("lifetime_earned + ?", p.Delta)
		case KindRedeemed:
			updates["available_points"] = gorm.Expr("available_points - ?", p.Delta)
			updates["lifetime_redeemed"] = gorm.Expr("lifetime_redeemed + ?", p.Delta)
		case KindExpired:
			updates["available_points"] = gorm.Expr("available_points - ?", p.Delta)
			updates["lifetime_expired"] = gorm.Expr("lifetime_expired + ?", p.Delta)
		}
		if err := balances.Update(ctx, bal.ID, updates); err != nil {
			return err
		}

		fresh, err := balances.FindOne(ctx, &UserBalance{UserID: p.UserID})
		if err != nil {
			return err
		}
		updated = fresh
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientBalance) && !errors.Is(err, ErrDuplicateReference) {
			zap.L().With(opts...).Error("ledger commit failed", zap.Error(err))
		}
		return nil, err
	}

	if p.Kind == KindEarned {
		s.notifyObservers(ctx, p.UserID, updated.AvailablePoints)
	}

	return updated, nil
}

// notifyObservers runs milestone-style hooks after a balance increase.
// Failures are logged only; the commit already happened.
func (s *Service) notifyObservers(ctx context.Context, userID string, available int64) {
	for _, o := range s.observers {
		if err := o.OnBalanceIncrease(ctx, userID, available); err != nil {
			zap.L().Warn("ledger observer failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

// entrySort orders the per-user chain. The snowflake id breaks ties between
// commits landing in the same microsecond, keeping the chain order stable.
func entrySort(direction string) option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{
		SortBy:   "created_at",
		OrderBy:  direction,
		Tiebreak: "id",
		Allow:    map[string]bool{"created_at": true},
	})
}

func (s *Service) lastEntry(tx *gorm.DB, ctx context.Context, userID string) (*LedgerEntry, error) {
	return s.entries.WithTrx(tx).FindOne(ctx, &LedgerEntry{UserID: userID}, entrySort("desc"))
}

// Entries lists a user's ledger in chronological order.
func (s *Service) Entries(ctx context.Context, userID string) ([]*LedgerEntry, error) {
	return s.entries.Find(ctx, &LedgerEntry{UserID: userID}, entrySort("asc"))
}

// EntriesPage lists a user's ledger in chronological order, one cursor page
// at a time. Snowflake ids increase in commit order, so the cursor filters
// on the id of the last row seen.
func (s *Service) EntriesPage(ctx context.Context, userID string, p pagination.Pagination) ([]*LedgerEntry, *pagination.PageInfo, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	opts := []option.QueryOption{
		entrySort("asc"),
		option.WithLimit(limit + 1),
	}
	if p.Cursor != "" {
		cursor, err := pagination.DecodeCursor(p.Cursor)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "id",
			Operator: option.GT,
			Value:    cursor.ID,
		}))
	}

	rows, err := s.entries.Find(ctx, &LedgerEntry{UserID: userID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	return pagination.BuildPageInfo(rows, limit, func(e *LedgerEntry) (string, error) {
		return pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
			ID:        e.ID,
		})
	})
}

// HasReference reports whether a commit with the given reference id exists.
func (s *Service) HasReference(ctx context.Context, referenceID string) (bool, error) {
	entry, err := s.entries.FindOne(ctx, &LedgerEntry{ReferenceID: referenceID})
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Reconcile folds the user's log and verifies it against the cached balance
// and the per-user hash chain. A mismatch means the cache and the log
// diverged, which a commit must never allow.
func (s *Service) Reconcile(ctx context.Context, userID string) error {
	bal, err := s.GetBalance(ctx, userID)
	if err != nil {
		return err
	}

	entries, err := s.Entries(ctx, userID)
	if err != nil {
		return err
	}

	var earned, redeemed, expired int64
	lastHash := "GENESIS"
	for _, entry := range entries {
		if entry.PreviousHash != lastHash || entry.Hash != entry.GenerateHash() {
			return fmt.Errorf("ledger chain broken for user %s at entry %s", userID, entry.ID)
		}
		lastHash = entry.Hash

		switch EntryKind(entry.Kind) {
		case KindEarned:
			earned += entry.Delta
		case KindRedeemed:
			redeemed += -entry.Delta
		case KindExpired:
			expired += -entry.Delta
		}
	}

	available := earned - redeemed - expired
	if bal.AvailablePoints != available ||
		bal.LifetimeEarned != earned ||
		bal.LifetimeRedeemed != redeemed ||
		bal.LifetimeExpired != expired {
		return fmt.Errorf("balance for user %s diverged from ledger: cached available=%d, folded=%d",
			userID, bal.AvailablePoints, available)
	}

	return nil
}

// ExpireOlderThan debits points earned before the cutoff that have not been
// consumed yet, assuming redemptions and expiries drain oldest points first.
// Returns the number of points expired; reruns for the same day are no-ops.
func (s *Service) ExpireOlderThan(ctx context.Context, userID string, cutoff time.Time) (int64, error) {
	bal, err := s.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	if bal.AvailablePoints == 0 {
		return 0, nil
	}

	entries, err := s.Entries(ctx, userID)
	if err != nil {
		return 0, err
	}

	var earnedBefore int64
	for _, entry := range entries {
		if EntryKind(entry.Kind) == KindEarned && entry.CreatedAt.Before(cutoff) {
			earnedBefore += entry.Delta
		}
	}

	expirable := earnedBefore - bal.LifetimeRedeemed - bal.LifetimeExpired
	if expirable <= 0 {
		return 0, nil
	}
	if expirable > bal.AvailablePoints {
		expirable = bal.AvailablePoints
	}

	_, err = s.Commit(ctx, CommitParams{
		UserID:      userID,
		Delta:       expirable,
		Kind:        KindExpired,
		Reason:      "expired",
		ReferenceID: fmt.Sprintf("expired:%s:%s", userID, cutoff.Format("20060102")),
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return 0, nil
		}
		return 0, err
	}

	return expirable, nil
}

// ActiveUserIDs lists users with a positive available balance, for the expiry
// sweep.
func (s *Service) ActiveUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	if err := s.db.WithContext(ctx).
		Model(&UserBalance{}).
		Where("available_points > 0").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}

func translateCommitErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	return err
}
