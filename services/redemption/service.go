package redemption

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-rewards/pkg/sequence"
	"storefront-rewards/services/ledger"
	"storefront-rewards/services/order"
	"storefront-rewards/services/pointsconfig"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ErrInvalidOrder is returned when a redemption references an order that
// does not exist or belongs to another user.
var ErrInvalidOrder = errors.New("invalid order reference")

// Result describes a successful redemption.
type Result struct {
	Code           string  `json:"code"`
	Points         int64   `json:"points"`
	CurrencyAmount float64 `json:"currency_amount"`
	Available      int64   `json:"available_points"`
}

type Engine struct {
	ledger   *ledger.Service
	configs  *pointsconfig.Resolver
	orders   *order.Service
	sequence sequence.Generator
}

type EngineParams struct {
	fx.In

	Ledger   *ledger.Service
	Configs  *pointsconfig.Resolver
	Orders   *order.Service
	Sequence sequence.Generator `optional:"true"`
}

func NewEngine(p EngineParams) *Engine {
	return &Engine{
		ledger:   p.Ledger,
		configs:  p.Configs,
		orders:   p.Orders,
		sequence: p.Sequence,
	}
}

// Redeem converts points into currency value at the active conversion rate
// and debits them from the user's balance. When orderID is set the order must
// exist and belong to the user. Insufficient balance surfaces unchanged from
// the ledger with nothing written.
func (e *Engine) Redeem(ctx context.Context, userID string, points int64, orderID string) (*Result, error) {
	if points <= 0 {
		return nil, fmt.Errorf("points must be > 0")
	}

	if orderID != "" {
		if _, err := e.orders.GetForUser(ctx, orderID, userID); err != nil {
			if errors.Is(err, order.ErrOrderNotFound) || errors.Is(err, order.ErrOrderOwnership) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidOrder, orderID)
			}
			return nil, err
		}
	}

	cfg := e.configs.ActiveOrDefault(ctx)
	amount := float64(points) * cfg.PointValueCurrency

	code := e.nextCode(ctx)

	meta, _ := json.Marshal(map[string]any{
		"currency_amount": amount,
	})

	bal, err := e.ledger.Commit(ctx, ledger.CommitParams{
		UserID:         userID,
		Delta:          points,
		Kind:           ledger.KindRedeemed,
		Reason:         "redemption",
		ReferenceID:    code,
		RelatedOrderID: orderID,
		Metadata:       datatypes.JSON(meta),
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("points redeemed",
		zap.String("user_id", userID),
		zap.String("code", code),
		zap.Int64("points", points),
		zap.Float64("currency_amount", amount),
	)

	return &Result{
		Code:           code,
		Points:         points,
		CurrencyAmount: amount,
		Available:      bal.AvailablePoints,
	}, nil
}

func (e *Engine) nextCode(ctx context.Context) string {
	if e.sequence != nil {
		code, err := e.sequence.NextRedemptionCode(ctx)
		if err == nil {
			return code
		}
		zap.L().Warn("sequence generator unavailable, falling back to random code", zap.Error(err))
	}

	buf := make([]byte, 6)
	rand.Read(buf)
	return fmt.Sprintf("RDM-%s-%s", time.Now().Format("20060102"), hex.EncodeToString(buf))
}
