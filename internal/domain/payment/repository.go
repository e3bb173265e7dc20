package payment

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loteo/internal/pkg/errs"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t *Transaction) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return errs.Wrap(err, "create payment transaction")
	}
	return nil
}

func (r *Repository) GetByToken(ctx context.Context, token string) (*Transaction, error) {
	var t Transaction
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, errs.Wrap(err, "get payment transaction")
	}
	return &t, nil
}

// GetByTokenForUpdate locks the transaction row so two commit callbacks for
// the same token apply the verdict once.
func (r *Repository) GetByTokenForUpdate(tx *gorm.DB, token string) (*Transaction, error) {
	var t Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&t).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, errs.Wrap(err, "lock payment transaction")
	}
	return &t, nil
}

// GetByBuyOrder returns the most recent transaction for a buy order.
func (r *Repository) GetByBuyOrder(ctx context.Context, buyOrder string) (*Transaction, error) {
	var t Transaction
	if err := r.db.WithContext(ctx).Where("buy_order = ?", buyOrder).Order("id desc").First(&t).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrTransactionNotFound
		}
		return nil, errs.Wrap(err, "get payment transaction by buy order")
	}
	return &t, nil
}

func (r *Repository) ListByReservation(ctx context.Context, reservationID string) ([]Transaction, error) {
	var out []Transaction
	if err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).Order("id asc").Find(&out).Error; err != nil {
		return nil, errs.Wrap(err, "list payment transactions")
	}
	return out, nil
}

// ApplyCommit stores the gateway verdict on the transaction row.
func (r *Repository) ApplyCommit(tx *gorm.DB, t *Transaction, res *CommitResponse, at time.Time) error {
	code := res.ResponseCode
	t.CommittedAt = &at
	t.Status = res.Status
	if t.Status == "" || t.Status == StatusInitialized {
		t.Status = StatusFailed
	}
	t.ResponseCode = &code
	t.AuthorizationCode = res.AuthorizationCode
	t.PaymentTypeCode = res.PaymentTypeCode
	t.InstallmentsNumber = res.InstallmentsNumber
	t.CardLastDigits = res.CardDetail.CardNumber
	t.TransactionDate = res.TransactionDate
	if len(res.Raw) > 0 {
		t.RawResponse = datatypes.JSON(res.Raw)
	}

	updates := map[string]interface{}{
		"status":              t.Status,
		"response_code":       code,
		"authorization_code":  t.AuthorizationCode,
		"payment_type_code":   t.PaymentTypeCode,
		"installments_number": t.InstallmentsNumber,
		"card_last_digits":    t.CardLastDigits,
		"transaction_date":    t.TransactionDate,
		"committed_at":        t.CommittedAt,
	}
	if len(t.RawResponse) > 0 {
		updates["raw_response"] = t.RawResponse
	}
	if err := tx.Model(&Transaction{}).Where("id = ?", t.ID).Updates(updates).Error; err != nil {
		return errs.Wrap(err, "apply commit")
	}
	return nil
}

// MarkAborted flags every still-initialized transaction of a buy order.
func (r *Repository) MarkAborted(tx *gorm.DB, buyOrder string) (int64, error) {
	res := tx.Model(&Transaction{}).
		Where("buy_order = ? AND status = ?", buyOrder, StatusInitialized).
		Update("status", StatusAborted)
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "mark payment aborted")
	}
	return res.RowsAffected, nil
}
