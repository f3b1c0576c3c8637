package wallet

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/abujawed11/engage-swap-sub000/pkg/db/option"
	"github.com/abujawed11/engage-swap-sub000/pkg/errutil"
	"github.com/abujawed11/engage-swap-sub000/pkg/repository"
)

// ErrInsufficientFunds distinguishes a short balance from generic failures so
// callers can special-case it. It travels wrapped inside an errutil.BaseError.
var ErrInsufficientFunds = errors.New("insufficient funds")

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	transactions repository.Repository[Transaction]
	balances     repository.Repository[Balance]
	audits       repository.Repository[AuditLog]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		transactions: repository.ProvideStore[Transaction](p.DB),
		balances:     repository.ProvideStore[Balance](p.DB),
		audits:       repository.ProvideStore[AuditLog](p.DB),
	}
}

type CreateTransactionRequest struct {
	UserID      string
	Type        TransactionType
	Sign        Sign
	Amount      decimal.Decimal
	Status      TransactionStatus
	CampaignID  *string
	ReferenceID string
	Actor       Actor
	Reason      string
	Metadata    map[string]any
}

func (r *CreateTransactionRequest) validate() error {
	if r.UserID == "" {
		return errutil.ValidationFailed("user id is required")
	}
	if r.ReferenceID == "" {
		return errutil.ValidationFailed("reference id is required")
	}
	if !r.Amount.IsPositive() {
		return errutil.ValidationFailed("amount must be > 0")
	}
	switch r.Type {
	case TypeEarned, TypeSpent, TypeBonus, TypeRefund, TypeAdminCredit, TypeAdminDebit:
	default:
		return errutil.ValidationFailed("unsupported transaction type")
	}
	switch r.Sign {
	case SignPlus, SignMinus:
	default:
		return errutil.ValidationFailed("unsupported sign")
	}
	if r.Status == "" {
		r.Status = StatusSuccess
	}
	if r.Actor == "" {
		r.Actor = ActorSystem
	}
	return nil
}

// CreateTransaction applies a ledger mutation in its own transaction.
func (s *Service) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*Transaction, error) {
	var out *Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.CreateTransactionTx(ctx, tx, req)
		if err != nil {
			return err
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTransactionTx applies a ledger mutation inside a caller-held
// transaction (the claim path holds one spanning grading, credit, and the
// eligibility counter). The balance row is locked for the duration.
func (s *Service) CreateTransactionTx(ctx context.Context, tx *gorm.DB, req CreateTransactionRequest) (*Transaction, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	txnRepo := s.transactions.WithTrx(tx)

	// Idempotent replay: an existing reference returns the original row with
	// no balance mutation, even if the retried amount differs.
	existing, err := txnRepo.FindOne(ctx, &Transaction{ReferenceID: req.ReferenceID})
	if err != nil {
		return nil, errutil.Internal("failed to check reference", errutil.WithErr(err))
	}
	if existing != nil {
		return existing, nil
	}

	balance, err := s.lockBalance(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.Sign == SignMinus && req.Status == StatusSuccess && balance.Available.LessThan(req.Amount) {
		return nil, errutil.Unprocessable("insufficient balance", errutil.WithErr(ErrInsufficientFunds))
	}

	var meta datatypes.JSON
	if req.Metadata != nil {
		b, _ := json.Marshal(req.Metadata)
		meta = datatypes.JSON(b)
	}

	entry := &Transaction{
		ID:          s.node.Generate().String(),
		UserID:      req.UserID,
		Type:        req.Type,
		Sign:        req.Sign,
		Amount:      req.Amount,
		Status:      req.Status,
		CampaignID:  req.CampaignID,
		ReferenceID: req.ReferenceID,
		Metadata:    meta,
	}

	if err := txnRepo.Create(ctx, entry); err != nil {
		// A concurrent writer may have claimed the reference between the
		// pre-check and the insert; the unique index resolves the race.
		if replay, ferr := txnRepo.FindOne(ctx, &Transaction{ReferenceID: req.ReferenceID}); ferr == nil && replay != nil {
			return replay, nil
		}
		return nil, errutil.Internal("failed to record transaction", errutil.WithErr(err))
	}

	if req.Status == StatusSuccess {
		if err := s.applyToBalance(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	audit := &AuditLog{
		ID:            s.node.Generate().String(),
		UserID:        req.UserID,
		Actor:         req.Actor,
		Reason:        req.Reason,
		TransactionID: entry.ID,
	}
	if err := s.audits.WithTrx(tx).Create(ctx, audit); err != nil {
		return nil, errutil.Internal("failed to record audit log", errutil.WithErr(err))
	}

	return entry, nil
}

// lockBalance loads the user's balance row under FOR UPDATE, creating a zero
// row first if the user has never transacted.
func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, userID string) (*Balance, error) {
	zero := &Balance{
		UserID:         userID,
		Available:      decimal.Zero,
		Locked:         decimal.Zero,
		LifetimeEarned: decimal.Zero,
		LifetimeSpent:  decimal.Zero,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(zero).Error; err != nil {
		return nil, errutil.Internal("failed to initialize balance", errutil.WithErr(err))
	}

	var balance Balance
	if err := tx.WithContext(ctx).
		Scopes(option.LockingUpdate).
		Where("user_id = ?", userID).
		First(&balance).Error; err != nil {
		return nil, errutil.Internal("failed to lock balance", errutil.WithErr(err))
	}
	return &balance, nil
}

func (s *Service) applyToBalance(ctx context.Context, tx *gorm.DB, entry *Transaction) error {
	updates := map[string]any{}
	switch entry.Sign {
	case SignPlus:
		updates["available"] = gorm.Expr("available + ?", entry.Amount)
	case SignMinus:
		updates["available"] = gorm.Expr("available - ?", entry.Amount)
	}

	switch entry.Type {
	case TypeEarned, TypeBonus:
		updates["lifetime_earned"] = gorm.Expr("lifetime_earned + ?", entry.Amount)
	case TypeSpent:
		updates["lifetime_spent"] = gorm.Expr("lifetime_spent + ?", entry.Amount)
	}

	if err := tx.WithContext(ctx).
		Model(&Balance{}).
		Where("user_id = ?", entry.UserID).
		Updates(updates).Error; err != nil {
		return errutil.Internal("failed to update balance", errutil.WithErr(err))
	}
	return nil
}

// GetBalance returns the cached aggregate, or a zero balance for users who
// have never transacted.
func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	balance, err := s.balances.FindOne(ctx, &Balance{UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to read balance", errutil.WithErr(err))
	}
	if balance == nil {
		return &Balance{
			UserID:         userID,
			Available:      decimal.Zero,
			Locked:         decimal.Zero,
			LifetimeEarned: decimal.Zero,
			LifetimeSpent:  decimal.Zero,
		}, nil
	}
	return balance, nil
}

// Recalculate rebuilds the cached aggregate purely from SUCCESS transactions.
// This is the authoritative repair path when the cache is suspected to have
// drifted; it has no side effects beyond overwriting the cached row.
func (s *Service) Recalculate(ctx context.Context, userID string) (*Balance, error) {
	var out *Balance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rows []*Transaction
		if err := tx.WithContext(ctx).
			Where("user_id = ? AND status = ?", userID, StatusSuccess).
			Order("created_at ASC").
			Find(&rows).Error; err != nil {
			return errutil.Internal("failed to read transactions", errutil.WithErr(err))
		}

		available := decimal.Zero
		earned := decimal.Zero
		spent := decimal.Zero
		for _, row := range rows {
			switch row.Sign {
			case SignPlus:
				available = available.Add(row.Amount)
			case SignMinus:
				available = available.Sub(row.Amount)
			}
			switch row.Type {
			case TypeEarned, TypeBonus:
				earned = earned.Add(row.Amount)
			case TypeSpent:
				spent = spent.Add(row.Amount)
			}
		}

		balance := &Balance{
			UserID:         userID,
			Available:      available,
			Locked:         decimal.Zero,
			LifetimeEarned: earned,
			LifetimeSpent:  spent,
		}
		if err := tx.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"available", "lifetime_earned", "lifetime_spent", "updated_at"}),
			}).
			Create(balance).Error; err != nil {
			return errutil.Internal("failed to overwrite balance", errutil.WithErr(err))
		}

		out = balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("wallet aggregates recalculated", zap.String("user_id", userID))
	return out, nil
}

// ListTransactions returns the user's ledger, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.WithLimit(limit),
	)
}

// ListAuditLogs returns audit rows for a user, newest first.
func (s *Service) ListAuditLogs(ctx context.Context, userID string, limit int) ([]*AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audits.Find(ctx, &AuditLog{UserID: userID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc", Allow: map[string]bool{"created_at": true}}),
		option.WithLimit(limit),
	)
}

// AdminAdjust credits or debits a wallet on behalf of an operator.
func (s *Service) AdminAdjust(ctx context.Context, userID string, amount decimal.Decimal, credit bool, reason, referenceID string) (*Transaction, error) {
	req := CreateTransactionRequest{
		UserID:      userID,
		Amount:      amount,
		Status:      StatusSuccess,
		ReferenceID: referenceID,
		Actor:       ActorAdmin,
		Reason:      reason,
	}
	if credit {
		req.Type = TypeAdminCredit
		req.Sign = SignPlus
	} else {
		req.Type = TypeAdminDebit
		req.Sign = SignMinus
	}
	return s.CreateTransaction(ctx, req)
}
