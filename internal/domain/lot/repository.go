package lot

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"loteo/internal/pkg/errs"
)

type Filter struct {
	Stage  int
	Status Status
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List filters by effective status, so an expired hold is listed as available.
func (r *Repository) List(ctx context.Context, f Filter, now time.Time) ([]Lot, error) {
	q := r.db.WithContext(ctx).Model(&Lot{})
	if f.Stage > 0 {
		q = q.Where("stage = ?", f.Stage)
	}
	switch f.Status {
	case "":
	case StatusSold:
		q = q.Where("status = ?", StatusSold)
	case StatusReserved:
		q = q.Where("status = ? AND reserved_until > ?", StatusReserved, now)
	case StatusAvailable:
		q = q.Where("status = ? OR (status = ? AND (reserved_until IS NULL OR reserved_until <= ?))",
			StatusAvailable, StatusReserved, now)
	default:
		return nil, ErrInvalidFilter
	}

	var lots []Lot
	if err := q.Order("id asc").Find(&lots).Error; err != nil {
		return nil, errs.Wrap(err, "list lots")
	}
	return lots, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Lot, error) {
	var l Lot
	if err := r.db.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrLotNotFound
		}
		return nil, errs.Wrap(err, "get lot")
	}
	return &l, nil
}

// GetForUpdate reads the lot row under a row lock. On postgres this is the
// serialisation point for concurrent reservations of the same lot.
func (r *Repository) GetForUpdate(tx *gorm.DB, id int64) (*Lot, error) {
	var l Lot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, "id = ?", id).Error; err != nil {
		if errs.IsRecordNotFound(err) {
			return nil, ErrLotNotFound
		}
		return nil, errs.Wrap(err, "lock lot")
	}
	return &l, nil
}

func (r *Repository) MarkReserved(tx *gorm.DB, id int64, sessionID, orderID string, at, until time.Time) error {
	res := tx.Model(&Lot{}).Where("id = ? AND status <> ?", id, StatusSold).Updates(map[string]interface{}{
		"status":         StatusReserved,
		"reserved_at":    at,
		"reserved_by":    sessionID,
		"reserved_until": until,
		"order_id":       orderID,
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark lot reserved")
	}
	if res.RowsAffected == 0 {
		return errs.New("lot row not updated")
	}
	return nil
}

// MarkSold is terminal. orderID records the buy order that paid for the lot;
// the rest of the reservation metadata is kept as a record of the sale.
func (r *Repository) MarkSold(tx *gorm.DB, id int64, orderID string) error {
	res := tx.Model(&Lot{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":   StatusSold,
		"order_id": orderID,
	})
	if res.Error != nil {
		return errs.Wrap(res.Error, "mark lot sold")
	}
	if res.RowsAffected == 0 {
		return ErrLotNotFound
	}
	return nil
}

// ListStaleReserved returns ids of reserved lots whose window is over.
func (r *Repository) ListStaleReserved(tx *gorm.DB, now time.Time) ([]int64, error) {
	var ids []int64
	err := tx.Model(&Lot{}).
		Where(lapsedHold, StatusReserved, now).
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, errs.Wrap(err, "list stale reserved lots")
	}
	return ids, nil
}

// ReleaseReserved reverts the given lots to available. Only lots that are
// still reserved with a lapsed window are touched: the rows are re-read under
// a row lock so a hold renewed by a concurrent reservation survives. The ids
// actually released are returned.
func (r *Repository) ReleaseReserved(tx *gorm.DB, ids []int64, now time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var released []int64
	if err := tx.Model(&Lot{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Where(lapsedHold, StatusReserved, now).
		Order("id asc").
		Pluck("id", &released).Error; err != nil {
		return nil, errs.Wrap(err, "select lots to release")
	}
	if len(released) == 0 {
		return nil, nil
	}
	err := tx.Model(&Lot{}).
		Where("id IN ?", released).
		Where(lapsedHold, StatusReserved, now).
		Updates(map[string]interface{}{
			"status":         StatusAvailable,
			"reserved_at":    nil,
			"reserved_by":    "",
			"reserved_until": nil,
		}).Error
	if err != nil {
		return nil, errs.Wrap(err, "release lots")
	}
	return released, nil
}

const lapsedHold = "status = ? AND (reserved_until IS NULL OR reserved_until < ?)"

// Seed inserts every spec that is not in the table yet. Existing rows keep
// their status and reservation metadata.
func (r *Repository) Seed(ctx context.Context, specs []Spec, fee int64) (int64, error) {
	if len(specs) == 0 {
		return 0, nil
	}
	rows := make([]Lot, 0, len(specs))
	for _, s := range specs {
		rows = append(rows, Lot{
			ID:             s.ID,
			Number:         s.Number,
			Stage:          s.Stage,
			AreaM2:         s.AreaM2,
			Price:          s.Price,
			ReservationFee: fee,
			Status:         StatusAvailable,
		})
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(rows, 100)
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "seed lots")
	}
	return res.RowsAffected, nil
}

// Summary counts lots per stage and effective status.
func (r *Repository) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	var lots []Lot
	if err := r.db.WithContext(ctx).Select("id", "stage", "status", "reserved_until").Find(&lots).Error; err != nil {
		return nil, errs.Wrap(err, "summary")
	}

	sum := &Summary{ByStatus: map[Status]int64{
		StatusAvailable: 0,
		StatusReserved:  0,
		StatusSold:      0,
	}}
	byStage := map[int]*StageSummary{}
	for i := range lots {
		st := lots[i].EffectiveStatus(now)
		sum.Total++
		sum.ByStatus[st]++

		ss, ok := byStage[lots[i].Stage]
		if !ok {
			ss = &StageSummary{Stage: lots[i].Stage}
			byStage[lots[i].Stage] = ss
		}
		ss.Total++
		switch st {
		case StatusAvailable:
			ss.Available++
		case StatusReserved:
			ss.Reserved++
		case StatusSold:
			ss.Sold++
		}
	}
	for stage := 1; stage <= len(stages); stage++ {
		if ss, ok := byStage[stage]; ok {
			sum.Stages = append(sum.Stages, *ss)
		}
	}
	return sum, nil
}
