package reservation

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"loteo/internal/pkg/errs"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SellerLookup reports whether a user id belongs to an active seller.
type SellerLookup interface {
	IsSeller(ctx context.Context, userID int64) (bool, error)
}

// Viewer is the authenticated staff member acting on the CRM.
type Viewer struct {
	UserID  int64
	IsAdmin bool
}

type PipelineUpdate struct {
	AssignedSellerID *int64
	Notes            *string
	Stage            *PipelineStage
}

func (u PipelineUpdate) empty() bool {
	return u.AssignedSellerID == nil && u.Notes == nil && u.Stage == nil
}

// CRMService is the sales pipeline view over reservations. It never changes
// a reservation's payment status.
type CRMService struct {
	repo    *Repository
	sellers SellerLookup
	log     logrus.FieldLogger
}

func NewCRMService(repo *Repository, sellers SellerLookup, log logrus.FieldLogger) *CRMService {
	return &CRMService{repo: repo, sellers: sellers, log: log}
}

type Page struct {
	Items []Reservation
	Total int64
	Page  int
	Limit int
}

func (s *CRMService) List(ctx context.Context, viewer Viewer, f ListFilter) (*Page, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, errs.Wrap(ErrInvalidFilter, "status")
	}
	if f.Stage != "" && !f.Stage.Valid() {
		return nil, errs.Wrap(ErrInvalidFilter, "pipeline_stage")
	}
	if !viewer.IsAdmin {
		own := viewer.UserID
		f.SellerID = &own
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}

	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// UpdatePipeline edits CRM fields. Only admins assign sellers; a seller may
// only touch reservations assigned to them.
func (s *CRMService) UpdatePipeline(ctx context.Context, viewer Viewer, id string, u PipelineUpdate) (*Reservation, error) {
	if u.empty() {
		return nil, ErrEmptyUpdate
	}

	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.IsAdmin {
		if u.AssignedSellerID != nil {
			return nil, ErrAssignForbidden
		}
		if res.AssignedSellerID == nil || *res.AssignedSellerID != viewer.UserID {
			return nil, ErrNotAssigned
		}
	}

	updates := map[string]interface{}{}
	if u.AssignedSellerID != nil {
		if *u.AssignedSellerID == 0 {
			updates["assigned_seller_id"] = nil
		} else {
			ok, err := s.sellers.IsSeller(ctx, *u.AssignedSellerID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ErrSellerNotFound
			}
			updates["assigned_seller_id"] = *u.AssignedSellerID
		}
	}
	if u.Notes != nil {
		updates["notes"] = strings.TrimSpace(*u.Notes)
	}
	if u.Stage != nil {
		if !u.Stage.Valid() {
			return nil, ErrInvalidPipelineStage
		}
		updates["pipeline_stage"] = *u.Stage
	}

	if err := s.repo.UpdateCRM(ctx, id, updates); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"reservation_id": id,
		"user_id":        viewer.UserID,
		"fields":         len(updates),
	}).Info("pipeline updated")
	return s.repo.GetByID(ctx, id)
}
