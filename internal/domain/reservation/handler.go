package reservation

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loteo/internal/domain/lot"
	"loteo/internal/pkg/errs"
	"loteo/internal/pkg/response"
	"loteo/internal/pkg/validator"
)

const (
	SessionHeader       = "X-Session-ID"
	SessionCookie       = "session_id"
	sessionCookieMaxAge = 30 * 24 * 60 * 60
)

// Redirects are the storefront pages the Webpay return lands on.
type Redirects struct {
	FrontendURL  string
	SuccessPath  string
	FailurePath  string
	SecureCookie bool
}

type Handler struct {
	service   *Service
	crm       *CRMService
	redirects Redirects
}

func NewHandler(service *Service, crm *CRMService, redirects Redirects) *Handler {
	return &Handler{service: service, crm: crm, redirects: redirects}
}

// CreateReservation POST /lots/:id/reservations
func (h *Handler) CreateReservation(c *gin.Context) {
	lotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || lotID < 1 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid lot id")
		return
	}

	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}
	buyer := req.Buyer()
	if verrs := validator.Validate(buyer); verrs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid buyer details", verrs)
		return
	}

	session := h.ensureSession(c)
	res, err := h.service.Reserve(c.Request.Context(), ReserveInput{
		LotID:     lotID,
		SessionID: session,
		Buyer:     buyer,
	})
	if err != nil {
		if errs.Is(err, errs.ErrUpstream) {
			_ = c.Error(err)
			response.Error(c, http.StatusBadGateway, "PAYMENT_GATEWAY_ERROR", "payment gateway unavailable, please retry")
			return
		}
		response.FromError(c, err, reserveErrorCode(err))
		return
	}

	response.Success(c, http.StatusCreated, CreateReservationResponse{
		Reservation: ToPublicResponse(res.Reservation),
		Token:       res.Token,
		URL:         res.RedirectURL,
		ExpiresAt:   res.ExpiresAt,
	})
}

func reserveErrorCode(err error) string {
	switch {
	case errs.Is(err, lot.ErrLotNotFound):
		return "LOT_NOT_FOUND"
	case errs.Is(err, ErrLotSold):
		return "LOT_SOLD"
	case errs.Is(err, ErrLotReserved):
		return "LOT_RESERVED"
	case errs.Is(err, errs.ErrValidation):
		return "VALIDATION_ERROR"
	}
	return "RESERVATION_FAILED"
}

// GetReservation GET /reservations/:id, visible only to the creating session.
func (h *Handler) GetReservation(c *gin.Context) {
	res, err := h.service.GetForSession(c.Request.Context(), c.Param("id"), sessionFrom(c))
	if err != nil {
		response.FromError(c, err, "RESERVATION_NOT_FOUND")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": ToPublicResponse(res)})
}

// WebpayReturn GET|POST /payments/webpay/return
//
// Webpay lands here in one of four shapes:
//   - token_ws: normal flow, commit it;
//   - TBK_TOKEN + TBK_ORDEN_COMPRA + TBK_ID_SESION: buyer aborted on the form;
//   - TBK_ORDEN_COMPRA + TBK_ID_SESION: the form timed out;
//   - token_ws together with TBK_TOKEN: an error on the form, handled as an abort.
func (h *Handler) WebpayReturn(c *gin.Context) {
	ctx := c.Request.Context()
	tokenWS := formValue(c, "token_ws")
	tbkToken := formValue(c, "TBK_TOKEN")
	buyOrder := formValue(c, "TBK_ORDEN_COMPRA")
	session := formValue(c, "TBK_ID_SESION")

	switch {
	case tokenWS != "" && tbkToken == "":
		out, err := h.service.Commit(ctx, tokenWS)
		if err != nil {
			_ = c.Error(err)
			reason := "error"
			if errs.Is(err, errs.ErrInconsistency) && out != nil {
				reason = "refund"
			}
			h.redirectFailure(c, reason, out)
			return
		}
		if out.Authorized {
			h.redirectSuccess(c, out.Reservation)
			return
		}
		h.redirectFailure(c, "declined", out)

	case buyOrder != "":
		if session == "" {
			session = sessionFrom(c)
		}
		out, err := h.service.Abort(ctx, buyOrder, session)
		if err != nil {
			_ = c.Error(err)
			h.redirectFailure(c, "error", nil)
			return
		}
		if out.Authorized {
			h.redirectSuccess(c, out.Reservation)
			return
		}
		h.redirectFailure(c, "aborted", out)

	default:
		_ = c.Error(ErrMalformedReturn)
		h.redirectFailure(c, "error", nil)
	}
}

func (h *Handler) redirectSuccess(c *gin.Context, res *Reservation) {
	q := url.Values{}
	q.Set("lot", strconv.FormatInt(res.LotID, 10))
	q.Set("reservation", res.ID)
	q.Set("folio", res.Folio)
	c.Redirect(http.StatusSeeOther, h.redirects.FrontendURL+h.redirects.SuccessPath+"?"+q.Encode())
}

func (h *Handler) redirectFailure(c *gin.Context, reason string, out *CommitOutcome) {
	q := url.Values{}
	q.Set("reason", reason)
	if out != nil && out.Reservation != nil {
		q.Set("lot", strconv.FormatInt(out.Reservation.LotID, 10))
	}
	c.Redirect(http.StatusSeeOther, h.redirects.FrontendURL+h.redirects.FailurePath+"?"+q.Encode())
}

// ListReservations GET /admin/reservations?status=&pipeline_stage=&seller_id=&lot_id=&page=&limit=
func (h *Handler) ListReservations(c *gin.Context) {
	f := ListFilter{
		Status: Status(c.Query("status")),
		Stage:  PipelineStage(c.Query("pipeline_stage")),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
	if v := c.Query("seller_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid seller_id")
			return
		}
		f.SellerID = &id
	}
	if v := c.Query("lot_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid lot_id")
			return
		}
		f.LotID = id
	}

	page, err := h.crm.List(c.Request.Context(), viewerFrom(c), f)
	if err != nil {
		response.FromError(c, err, "LIST_FAILED")
		return
	}
	response.Success(c, http.StatusOK, ListResponse{
		Reservations: page.Items,
		Total:        page.Total,
		Page:         page.Page,
		Limit:        page.Limit,
	})
}

// UpdatePipeline PATCH /admin/reservations/:id/pipeline
func (h *Handler) UpdatePipeline(c *gin.Context) {
	var req UpdatePipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return
	}
	if verrs := validator.Validate(&req); verrs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid pipeline update", verrs)
		return
	}

	res, err := h.crm.UpdatePipeline(c.Request.Context(), viewerFrom(c), c.Param("id"), req.toUpdate())
	if err != nil {
		code := "UPDATE_FAILED"
		switch {
		case errs.Is(err, ErrReservationNotFound):
			code = "RESERVATION_NOT_FOUND"
		case errs.Is(err, errs.ErrForbidden):
			code = "FORBIDDEN"
		case errs.Is(err, errs.ErrValidation):
			code = "VALIDATION_ERROR"
		}
		response.FromError(c, err, code)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": res})
}

// RunSweep POST /admin/sweep
func (h *Handler) RunSweep(c *gin.Context) {
	out, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		response.FromError(c, err, "SWEEP_FAILED")
		return
	}
	response.Success(c, http.StatusOK, out)
}

// ensureSession returns the caller's checkout session, issuing a new one as
// a cookie when the request carries none. It is echoed in X-Session-ID.
func (h *Handler) ensureSession(c *gin.Context) string {
	id := sessionFrom(c)
	if id == "" {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, sessionCookieMaxAge, "/", "", h.redirects.SecureCookie, true)
	}
	c.Header(SessionHeader, id)
	return id
}

func sessionFrom(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(SessionHeader)); v != "" {
		return v
	}
	if v, err := c.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func viewerFrom(c *gin.Context) Viewer {
	return Viewer{
		UserID:  c.GetInt64("user_id"),
		IsAdmin: c.GetString("role") == "admin",
	}
}

func formValue(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
