package reservation

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loteo/internal/domain/lot"
	"loteo/internal/domain/lotfeed"
	"loteo/internal/domain/notification"
	"loteo/internal/domain/payment"
	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/errs"
	"loteo/internal/pkg/validator"
)

type Options struct {
	LockDuration time.Duration
	DefaultFee   int64
	ReturnURL    string
}

// Service is the reservation orchestrator: it places holds, finalizes them
// from the gateway verdict and reclaims expired ones. Mutual exclusion comes
// from database transactions only; the service keeps no in-memory locks.
type Service struct {
	db           *gorm.DB
	lots         *lot.Repository
	locks        *LockRepository
	reservations *Repository
	payments     *payment.Repository
	gateway      payment.Gateway
	feed         Publisher
	notifier     PaidDispatcher
	clock        clock.Clock
	log          logrus.FieldLogger
	opts         Options
}

func NewService(
	db *gorm.DB,
	gateway payment.Gateway,
	feed Publisher,
	notifier PaidDispatcher,
	clk clock.Clock,
	log logrus.FieldLogger,
	opts Options,
) *Service {
	if feed == nil {
		feed = noopPublisher{}
	}
	if notifier == nil {
		notifier = noopDispatcher{}
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{
		db:           db,
		lots:         lot.NewRepository(db),
		locks:        NewLockRepository(),
		reservations: NewRepository(db),
		payments:     payment.NewRepository(db),
		gateway:      gateway,
		feed:         feed,
		notifier:     notifier,
		clock:        clk,
		log:          log,
		opts:         opts,
	}
}

type ReserveInput struct {
	LotID     int64
	SessionID string
	Buyer     Buyer
}

type ReserveResult struct {
	Reservation *Reservation
	Token       string
	RedirectURL string
	ExpiresAt   time.Time
}

// Reserve places a hold on the lot for the session and opens a gateway
// transaction for the reservation fee.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (*ReserveResult, error) {
	if in.SessionID == "" || len(in.SessionID) > payment.MaxSessionIDLen {
		return nil, ErrInvalidSession
	}
	buyer := in.Buyer.Normalize()
	if verrs := validator.Validate(buyer); verrs != nil {
		return nil, errs.Wrap(ErrInvalidBuyer, describeFields(verrs))
	}

	log := s.log.WithFields(logrus.Fields{"lot_id": in.LotID, "session_id": in.SessionID})
	now := s.clock.Now()
	expiresAt := now.Add(s.opts.LockDuration)

	var (
		res  *Reservation
		held *lot.Lot
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The lot row lock comes first: it serialises concurrent attempts on
		// the same lot while leaving other lots unaffected.
		l, err := s.lots.GetForUpdate(tx, in.LotID)
		if err != nil {
			return err
		}
		if l.Status == lot.StatusSold {
			return ErrLotSold
		}

		lock, err := s.locks.GetForUpdate(tx, in.LotID)
		if err != nil {
			return err
		}
		if lock != nil && lock.IsActive(now) && lock.LockedBy != in.SessionID {
			return ErrLotReserved
		}

		res = &Reservation{
			ID:            uuid.NewString(),
			Folio:         newFolio(now, in.LotID),
			LotID:         in.LotID,
			Buyer:         buyer,
			Amount:        l.FeeOr(s.opts.DefaultFee),
			BuyOrder:      newBuyOrder(in.LotID),
			Status:        StatusPendingPayment,
			ExpiresAt:     expiresAt,
			SessionID:     in.SessionID,
			PipelineStage: StageNew,
		}
		if err := s.reservations.Create(tx, res); err != nil {
			return err
		}

		if err := s.locks.Upsert(tx, &LotLock{
			LotID:         in.LotID,
			LockedBy:      in.SessionID,
			LockedUntil:   expiresAt,
			ReservationID: res.ID,
		}); err != nil {
			return err
		}

		if err := s.lots.MarkReserved(tx, in.LotID, in.SessionID, res.BuyOrder, now, expiresAt); err != nil {
			return err
		}
		held = l
		return nil
	})
	if err != nil {
		if errs.KindOf(err) == nil {
			log.WithError(err).Error("reserve transaction failed")
		}
		return nil, err
	}

	log = log.WithFields(logrus.Fields{"reservation_id": res.ID, "buy_order": res.BuyOrder})
	log.Info("lot reserved")
	s.feed.Publish(lotfeed.Event{
		Type:   lotfeed.EventReserved,
		LotID:  held.ID,
		Stage:  held.Stage,
		Status: string(lot.StatusReserved),
		Until:  &expiresAt,
	})

	// The hold is committed; a gateway failure from here on leaves it pending
	// until it expires and the sweep reclaims the lot.
	created, err := s.gateway.Create(ctx, payment.CreateRequest{
		BuyOrder:  res.BuyOrder,
		SessionID: in.SessionID,
		Amount:    res.Amount,
		ReturnURL: s.opts.ReturnURL,
	})
	if err != nil {
		log.WithError(err).Warn("gateway create failed, hold left to expire")
		return nil, asGatewayError(errs.Wrap(err, "create payment"))
	}

	if err := s.payments.Create(ctx, &payment.Transaction{
		Token:         created.Token,
		BuyOrder:      res.BuyOrder,
		SessionID:     in.SessionID,
		Amount:        res.Amount,
		ReservationID: res.ID,
		LotID:         res.LotID,
		Status:        payment.StatusInitialized,
	}); err != nil {
		log.WithError(err).WithField("token", created.Token).Error("persist payment transaction failed")
		return nil, err
	}

	return &ReserveResult{
		Reservation: res,
		Token:       created.Token,
		RedirectURL: created.RedirectURL(),
		ExpiresAt:   expiresAt,
	}, nil
}

type CommitOutcome struct {
	Reservation *Reservation
	Authorized  bool
	// Replayed is set when the verdict had already been recorded and this
	// call changed nothing.
	Replayed bool
}

// Commit finalizes the reservation behind a gateway token. The token is
// looked up locally before the gateway commit, so unknown tokens never reach
// Webpay.
func (s *Service) Commit(ctx context.Context, token string) (*CommitOutcome, error) {
	log := s.log.WithField("token", token)

	t, err := s.payments.GetByToken(ctx, token)
	if err != nil {
		log.WithError(err).Error("commit for unknown token")
		return nil, err
	}
	if t.Finalized() {
		return s.recordedOutcome(ctx, t)
	}

	verdict, err := s.gateway.Commit(ctx, token)
	if err != nil {
		log.WithError(err).Warn("gateway commit failed, reservation left pending")
		return nil, asGatewayError(errs.Wrap(err, "commit payment"))
	}

	now := s.clock.Now()
	var (
		out      *CommitOutcome
		soldLot  *lot.Lot
		guardErr error
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.payments.GetByTokenForUpdate(tx, token)
		if err != nil {
			return err
		}
		res, err := s.reservations.GetForUpdate(tx, t.ReservationID)
		if err != nil {
			return err
		}
		if t.Finalized() {
			out = &CommitOutcome{Reservation: res, Authorized: t.Status == payment.StatusAuthorized, Replayed: true}
			return nil
		}

		if err := s.payments.ApplyCommit(tx, t, verdict, now); err != nil {
			return err
		}

		if !verdict.Authorized() {
			if !res.IsFinal() {
				if err := s.reservations.SetStatus(tx, res, StatusCanceled, now); err != nil {
					return err
				}
			}
			if _, err := s.locks.DeleteOwned(tx, res.LotID, res.SessionID); err != nil {
				return err
			}
			out = &CommitOutcome{Reservation: res}
			return nil
		}

		if res.Status == StatusCanceled {
			guardErr = ErrCommitAfterCancel
			out = &CommitOutcome{Reservation: res}
			return nil
		}

		l, err := s.lots.GetForUpdate(tx, res.LotID)
		if err != nil {
			return err
		}
		if l.Status == lot.StatusSold && l.OrderID != res.BuyOrder {
			if err := s.reservations.SetStatus(tx, res, StatusCanceled, now); err != nil {
				return err
			}
			guardErr = ErrDoubleSale
			out = &CommitOutcome{Reservation: res}
			return nil
		}

		if err := s.reservations.SetStatus(tx, res, StatusPaid, now); err != nil {
			return err
		}
		if err := s.lots.MarkSold(tx, res.LotID, res.BuyOrder); err != nil {
			return err
		}
		if err := s.locks.Delete(tx, res.LotID); err != nil {
			return err
		}
		soldLot = l
		out = &CommitOutcome{Reservation: res, Authorized: true}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("commit transaction failed")
		return nil, err
	}

	log = log.WithFields(logrus.Fields{
		"reservation_id": out.Reservation.ID,
		"lot_id":         out.Reservation.LotID,
		"buy_order":      out.Reservation.BuyOrder,
	})
	if guardErr != nil {
		log.WithError(guardErr).Error("authorized payment could not be applied, refund required")
		return out, guardErr
	}
	if out.Replayed {
		return out, nil
	}

	if !out.Authorized {
		log.WithField("response_code", verdict.ResponseCode).Info("payment not authorized, reservation canceled")
		return out, nil
	}

	log.Info("payment authorized, lot sold")
	s.feed.Publish(lotfeed.Event{
		Type:   lotfeed.EventSold,
		LotID:  soldLot.ID,
		Stage:  soldLot.Stage,
		Status: string(lot.StatusSold),
	})
	s.notifier.Dispatch(paidEvent(out.Reservation, soldLot, verdict, now))
	return out, nil
}

func (s *Service) recordedOutcome(ctx context.Context, t *payment.Transaction) (*CommitOutcome, error) {
	res, err := s.reservations.GetByID(ctx, t.ReservationID)
	if err != nil {
		return nil, err
	}
	return &CommitOutcome{Reservation: res, Authorized: t.Status == payment.StatusAuthorized, Replayed: true}, nil
}

// Abort releases the hold when the buyer leaves the gateway form without
// paying. The gateway is not called. Only the session that placed the hold
// may abort it; an empty session matches nothing.
func (s *Service) Abort(ctx context.Context, buyOrder, sessionID string) (*CommitOutcome, error) {
	log := s.log.WithFields(logrus.Fields{"buy_order": buyOrder, "session_id": sessionID})
	if sessionID == "" {
		log.Warn("abort without session refused")
		return nil, ErrReservationNotFound
	}
	now := s.clock.Now()

	var out *CommitOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.reservations.GetByBuyOrderForUpdate(tx, buyOrder)
		if err != nil {
			return err
		}
		if res.SessionID != sessionID {
			return ErrReservationNotFound
		}
		if res.IsFinal() {
			out = &CommitOutcome{Reservation: res, Authorized: res.Status == StatusPaid, Replayed: true}
			return nil
		}

		if err := s.reservations.SetStatus(tx, res, StatusCanceled, now); err != nil {
			return err
		}
		if _, err := s.payments.MarkAborted(tx, buyOrder); err != nil {
			return err
		}
		if _, err := s.locks.DeleteOwned(tx, res.LotID, res.SessionID); err != nil {
			return err
		}
		out = &CommitOutcome{Reservation: res}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("abort failed")
		return nil, err
	}
	if !out.Replayed {
		log.WithField("reservation_id", out.Reservation.ID).Info("checkout aborted, hold released")
	}
	return out, nil
}

type SweepResult struct {
	ExpiredLocks int64   `json:"expired_locks"`
	ReleasedLots []int64 `json:"released_lots"`
}

// Sweep reclaims lots whose hold has lapsed. Running it twice in a row is a
// no-op the second time, and sold lots are never reverted.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now()
	out := &SweepResult{ReleasedLots: []int64{}}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		expired, err := s.locks.ListExpired(tx, now)
		if err != nil {
			return err
		}
		candidates := map[int64]bool{}
		for _, l := range expired {
			candidates[l.LotID] = true
		}

		// Reserved lots past their window with no live lock, e.g. after a
		// declined payment removed the lock row.
		stale, err := s.lots.ListStaleReserved(tx, now)
		if err != nil {
			return err
		}
		live, err := s.locks.LiveLotIDs(tx, stale, now)
		if err != nil {
			return err
		}
		for _, id := range stale {
			if !live[id] {
				candidates[id] = true
			}
		}

		ids := make([]int64, 0, len(candidates))
		for id := range candidates {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		// A lock renewed since the listing above keeps its lot.
		renewed, err := s.locks.LiveLotIDs(tx, ids, now)
		if err != nil {
			return err
		}
		ids = slices.DeleteFunc(ids, func(id int64) bool { return renewed[id] })

		released, err := s.lots.ReleaseReserved(tx, ids, now)
		if err != nil {
			return err
		}
		if released != nil {
			out.ReleasedLots = released
		}

		out.ExpiredLocks, err = s.locks.DeleteExpired(tx, now)
		return err
	})
	if err != nil {
		s.log.WithError(err).Error("sweep failed")
		return nil, err
	}

	for _, id := range out.ReleasedLots {
		ev := lotfeed.Event{Type: lotfeed.EventReleased, LotID: id, Status: string(lot.StatusAvailable)}
		if spec, ok := lot.Lookup(id); ok {
			ev.Stage = spec.Stage
		}
		s.feed.Publish(ev)
	}
	if out.ExpiredLocks > 0 || len(out.ReleasedLots) > 0 {
		s.log.WithFields(logrus.Fields{
			"expired_locks": out.ExpiredLocks,
			"released_lots": len(out.ReleasedLots),
		}).Info("sweep released expired holds")
	}
	return out, nil
}

// GetForSession returns a reservation only to the session that created it.
func (s *Service) GetForSession(ctx context.Context, id, sessionID string) (*Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sessionID == "" || res.SessionID != sessionID {
		return nil, ErrReservationNotFound
	}
	return res, nil
}

// asGatewayError classifies untyped gateway failures as upstream errors.
func asGatewayError(err error) error {
	if errs.KindOf(err) != nil {
		return err
	}
	return errs.Mark(err, payment.ErrGateway)
}

func paidEvent(res *Reservation, l *lot.Lot, verdict *payment.CommitResponse, at time.Time) notification.PaidEvent {
	return notification.PaidEvent{
		ReservationID:     res.ID,
		Folio:             res.Folio,
		LotID:             l.ID,
		LotNumber:         l.Number,
		Stage:             l.Stage,
		Amount:            res.Amount,
		BuyOrder:          res.BuyOrder,
		AuthorizationCode: verdict.AuthorizationCode,
		CardLastDigits:    verdict.CardDetail.CardNumber,
		BuyerName:         res.Buyer.Name,
		BuyerEmail:        res.Buyer.Email,
		BuyerPhone:        res.Buyer.Phone,
		BuyerRUT:          res.Buyer.RUT,
		PaidAt:            at,
	}
}

// newBuyOrder stays well under the gateway's 26 character limit.
func newBuyOrder(lotID int64) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("L%03d-%s", lotID, strings.ToUpper(id[:12]))
}

func newFolio(now time.Time, lotID int64) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("RES-%s-%d-%s", now.Format("20060102"), lotID, strings.ToUpper(id[:4]))
}

func describeFields(verrs map[string]string) string {
	parts := make([]string, 0, len(verrs))
	for field, tag := range verrs {
		parts = append(parts, field+" "+tag)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
