package reservation

import (
	"context"
	"time"

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

func (r *Repository) Create(tx *gorm.DB, res *Reservation) error {
	if err := tx.Create(res).Error; err != nil {
		return errs.Wrap(err, "create reservation")
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	var res Reservation
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrReservationNotFound
		}
		return nil, errs.Wrap(err, "get reservation")
	}
	return &res, nil
}

func (r *Repository) GetForUpdate(tx *gorm.DB, id string) (*Reservation, error) {
	var res Reservation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "id = ?", id).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrReservationNotFound
		}
		return nil, errs.Wrap(err, "lock reservation")
	}
	return &res, nil
}

func (r *Repository) GetByBuyOrderForUpdate(tx *gorm.DB, buyOrder string) (*Reservation, error) {
	var res Reservation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, "buy_order = ?", buyOrder).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrReservationNotFound
		}
		return nil, errs.Wrap(err, "lock reservation by buy order")
	}
	return &res, nil
}

// SetStatus is the only writer of Status after creation.
func (r *Repository) SetStatus(tx *gorm.DB, res *Reservation, status Status, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case StatusPaid:
		updates["paid_at"] = at
		res.PaidAt = &at
	case StatusCanceled:
		updates["canceled_at"] = at
		res.CanceledAt = &at
	}
	if err := tx.Model(&Reservation{}).Where("id = ?", res.ID).Updates(updates).Error; err != nil {
		return errs.Wrap(err, "set reservation status")
	}
	res.Status = status
	return nil
}

type ListFilter struct {
	Status   Status
	Stage    PipelineStage
	SellerID *int64
	LotID    int64
	Page     int
	Limit    int
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Reservation, int64, error) {
	q := r.db.WithContext(ctx).Model(&Reservation{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Stage != "" {
		q = q.Where("pipeline_stage = ?", f.Stage)
	}
	if f.SellerID != nil {
		q = q.Where("assigned_seller_id = ?", *f.SellerID)
	}
	if f.LotID > 0 {
		q = q.Where("lot_id = ?", f.LotID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errs.Wrap(err, "count reservations")
	}

	var out []Reservation
	err := q.Order("created_at desc").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, errs.Wrap(err, "list reservations")
	}
	return out, total, nil
}

// UpdateCRM writes CRM fields only; status is never part of the update.
func (r *Repository) UpdateCRM(ctx context.Context, id string, updates map[string]interface{}) error {
	delete(updates, "status")
	res := r.db.WithContext(ctx).Model(&Reservation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return errs.Wrap(res.Error, "update reservation pipeline")
	}
	if res.RowsAffected == 0 {
		return ErrReservationNotFound
	}
	return nil
}

type LockRepository struct{}

func NewLockRepository() *LockRepository {
	return &LockRepository{}
}

// GetForUpdate returns nil when the lot has no lock row.
func (r *LockRepository) GetForUpdate(tx *gorm.DB, lotID int64) (*LotLock, error) {
	var l LotLock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("lot_id = ?", lotID).Limit(1).Find(&l).Error
	if err != nil {
		return nil, errs.Wrap(err, "lock lot_lock row")
	}
	if l.ID == 0 {
		return nil, nil
	}
	return &l, nil
}

// Upsert keeps one row per lot: a new hold overwrites the previous one.
func (r *LockRepository) Upsert(tx *gorm.DB, l *LotLock) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"locked_by", "locked_until", "reservation_id", "updated_at"}),
	}).Create(l).Error
	if err != nil {
		return errs.Wrap(err, "upsert lot lock")
	}
	return nil
}

func (r *LockRepository) Delete(tx *gorm.DB, lotID int64) error {
	if err := tx.Where("lot_id = ?", lotID).Delete(&LotLock{}).Error; err != nil {
		return errs.Wrap(err, "delete lot lock")
	}
	return nil
}

// DeleteOwned releases the hold only if sessionID still owns it.
func (r *LockRepository) DeleteOwned(tx *gorm.DB, lotID int64, sessionID string) (int64, error) {
	res := tx.Where("lot_id = ? AND locked_by = ?", lotID, sessionID).Delete(&LotLock{})
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "delete owned lot lock")
	}
	return res.RowsAffected, nil
}

func (r *LockRepository) ListExpired(tx *gorm.DB, now time.Time) ([]LotLock, error) {
	var out []LotLock
	if err := tx.Where("locked_until < ?", now).Order("lot_id asc").Find(&out).Error; err != nil {
		return nil, errs.Wrap(err, "list expired locks")
	}
	return out, nil
}

func (r *LockRepository) DeleteExpired(tx *gorm.DB, now time.Time) (int64, error) {
	res := tx.Where("locked_until < ?", now).Delete(&LotLock{})
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "delete expired locks")
	}
	return res.RowsAffected, nil
}

// LiveLotIDs returns which of lotIDs still have an unexpired lock.
func (r *LockRepository) LiveLotIDs(tx *gorm.DB, lotIDs []int64, now time.Time) (map[int64]bool, error) {
	live := map[int64]bool{}
	if len(lotIDs) == 0 {
		return live, nil
	}
	var ids []int64
	if err := tx.Model(&LotLock{}).Where("lot_id IN ? AND locked_until >= ?", lotIDs, now).Pluck("lot_id", &ids).Error; err != nil {
		return nil, errs.Wrap(err, "list live locks")
	}
	for _, id := range ids {
		live[id] = true
	}
	return live, nil
}
