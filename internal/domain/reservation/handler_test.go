package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loteo/internal/domain/lot"
	"loteo/internal/pkg/logging"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type staticSellers map[int64]bool

func (s staticSellers) IsSeller(_ context.Context, id int64) (bool, error) {
	return s[id], nil
}

type handlerFixture struct {
	*fixture
	router *gin.Engine
}

func setupHandler(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := setupFixture(t)

	crm := NewCRMService(NewRepository(f.db), staticSellers{7: true, 8: true}, logging.Discard())
	h := NewHandler(f.svc, crm, Redirects{
		FrontendURL: "https://loteo.test",
		SuccessPath: "/reserva/exito",
		FailurePath: "/reserva/error",
	})

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))

	// stand-in for the JWT middleware: X-Test-User / X-Test-Role
	admin := r.Group("/api/v1/admin", func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			var uid int64
			_, _ = fmt.Sscan(id, &uid)
			c.Set("user_id", uid)
		}
		c.Set("role", c.GetHeader("X-Test-Role"))
		c.Next()
	})
	h.RegisterAdminRoutes(admin, func(c *gin.Context) {
		if c.GetString("role") != "admin" {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	})
	return &handlerFixture{fixture: f, router: r}
}

func (h *handlerFixture) do(req *http.Request) (*httptest.ResponseRecorder, envelope) {
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	var env envelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

func reserveRequest(lotID string, session string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots/"+lotID+"/reservations", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	return req
}

func validBody() CreateReservationRequest {
	b := testBuyer()
	return CreateReservationRequest{Name: b.Name, Email: b.Email, Phone: b.Phone, RUT: b.RUT}
}

func TestCreateReservation_Created(t *testing.T) {
	h := setupHandler(t)

	rr, env := h.do(reserveRequest("12", "session-a", validBody()))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, "session-a", rr.Header().Get(SessionHeader))
	assert.NotContains(t, rr.Body.String(), "session-a")

	var data CreateReservationResponse
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, int64(12), data.Reservation.LotID)
	assert.Equal(t, StatusPendingPayment, data.Reservation.Status)
	assert.True(t, strings.HasSuffix(data.URL, "token_ws="+data.Token))
	assert.Equal(t, lot.StatusReserved, h.lot(12).Status)
}

func TestCreateReservation_IssuesSessionCookie(t *testing.T) {
	h := setupHandler(t)

	rr, _ := h.do(reserveRequest("12", "", validBody()))
	require.Equal(t, http.StatusCreated, rr.Code)

	session := rr.Header().Get(SessionHeader)
	require.NotEmpty(t, session)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, session, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	// the cookie alone identifies the same session on the next call
	req := reserveRequest("12", "", validBody())
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: session})
	rr, _ = h.do(req)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestCreateReservation_ErrorCodes(t *testing.T) {
	h := setupHandler(t)
	h.mustReserve(20, "session-a")

	sold := h.mustReserve(21, "session-a")
	h.gw.authorize(sold.Token)
	_, err := h.svc.Commit(h.ctx, sold.Token)
	require.NoError(t, err)

	badRUT := validBody()
	badRUT.RUT = "11.111.111-2"

	cases := []struct {
		name   string
		lot    string
		body   any
		status int
		code   string
	}{
		{"unknown lot", "999", validBody(), http.StatusNotFound, "LOT_NOT_FOUND"},
		{"held by other", "20", validBody(), http.StatusConflict, "LOT_RESERVED"},
		{"sold", "21", validBody(), http.StatusConflict, "LOT_SOLD"},
		{"bad rut", "22", badRUT, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad id", "abc", validBody(), http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, env := h.do(reserveRequest(tc.lot, "session-b", tc.body))
			assert.Equal(t, tc.status, rr.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}

	rr, env := h.do(reserveRequest("22", "session-b", badRUT))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "rut", env.Error.Details["RUT"])
}

func TestCreateReservation_GatewayDown(t *testing.T) {
	h := setupHandler(t)
	h.gw.createErr = errors.New("dial tcp: connection refused")

	rr, env := h.do(reserveRequest("30", "session-a", validBody()))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "PAYMENT_GATEWAY_ERROR", env.Error.Code)
	assert.NotContains(t, env.Error.Message, "dial tcp")
}

func redirectTarget(t *testing.T, rr *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rr.Code)
	u, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	return u
}

func TestWebpayReturn_Authorized(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(42, "session-1")
	h.gw.authorize(res.Token)

	form := url.Values{"token_ws": {res.Token}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webpay/return", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr, _ := h.do(req)

	u := redirectTarget(t, rr)
	assert.Equal(t, "loteo.test", u.Host)
	assert.Equal(t, "/reserva/exito", u.Path)
	assert.Equal(t, "42", u.Query().Get("lot"))
	assert.Equal(t, res.Reservation.ID, u.Query().Get("reservation"))
	assert.Equal(t, res.Reservation.Folio, u.Query().Get("folio"))
	assert.Equal(t, lot.StatusSold, h.lot(42).Status)

	// a browser refresh lands on the same page without a second commit
	rr, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?token_ws="+res.Token, nil))
	assert.Equal(t, "/reserva/exito", redirectTarget(t, rr).Path)
	assert.Equal(t, 1, h.gw.commitCalls)
}

func TestWebpayReturn_Declined(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(42, "session-1")
	h.gw.decline(res.Token)

	rr, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?token_ws="+res.Token, nil))
	u := redirectTarget(t, rr)
	assert.Equal(t, "/reserva/error", u.Path)
	assert.Equal(t, "declined", u.Query().Get("reason"))
	assert.Equal(t, "42", u.Query().Get("lot"))
	assert.Nil(t, h.lock(42))
}

func TestWebpayReturn_Aborted(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(9, "session-1")

	form := url.Values{
		"TBK_TOKEN":        {res.Token},
		"TBK_ORDEN_COMPRA": {res.Reservation.BuyOrder},
		"TBK_ID_SESION":    {"session-1"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webpay/return", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr, _ := h.do(req)

	u := redirectTarget(t, rr)
	assert.Equal(t, "aborted", u.Query().Get("reason"))
	assert.Equal(t, "9", u.Query().Get("lot"))
	assert.Nil(t, h.lock(9))
	assert.Zero(t, h.gw.commitCalls)
}

func TestWebpayReturn_TimeoutAndFormError(t *testing.T) {
	h := setupHandler(t)
	first := h.mustReserve(9, "session-1")
	second := h.mustReserve(10, "session-2")

	// timeout: only the buy order and session come back
	q := url.Values{"TBK_ORDEN_COMPRA": {first.Reservation.BuyOrder}, "TBK_ID_SESION": {"session-1"}}
	rr, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?"+q.Encode(), nil))
	assert.Equal(t, "aborted", redirectTarget(t, rr).Query().Get("reason"))
	assert.Equal(t, StatusCanceled, h.reservation(first.Reservation.ID).Status)

	// form error: token_ws arrives together with TBK_TOKEN and must not be committed
	h.gw.authorize(second.Token)
	q = url.Values{
		"token_ws":         {second.Token},
		"TBK_TOKEN":        {second.Token},
		"TBK_ORDEN_COMPRA": {second.Reservation.BuyOrder},
		"TBK_ID_SESION":    {"session-2"},
	}
	rr, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?"+q.Encode(), nil))
	assert.Equal(t, "aborted", redirectTarget(t, rr).Query().Get("reason"))
	assert.Zero(t, h.gw.commitCalls)
	assert.NotEqual(t, lot.StatusSold, h.lot(10).Status)
}

func TestWebpayReturn_AbortNeedsOwningSession(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(9, "session-1")

	// a bare buy order from a stranger cannot cancel the hold
	q := url.Values{"TBK_ORDEN_COMPRA": {res.Reservation.BuyOrder}}
	rr, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?"+q.Encode(), nil))
	assert.Equal(t, "error", redirectTarget(t, rr).Query().Get("reason"))
	assert.Equal(t, StatusPendingPayment, h.reservation(res.Reservation.ID).Status)
	assert.NotNil(t, h.lock(9))

	// the buyer's own cookie stands in for a missing TBK_ID_SESION
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-1"})
	rr, _ = h.do(req)
	assert.Equal(t, "aborted", redirectTarget(t, rr).Query().Get("reason"))
	assert.Equal(t, StatusCanceled, h.reservation(res.Reservation.ID).Status)
	assert.Nil(t, h.lock(9))
}

func TestWebpayReturn_Malformed(t *testing.T) {
	h := setupHandler(t)

	rr, _ := h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return", nil))
	u := redirectTarget(t, rr)
	assert.Equal(t, "/reserva/error", u.Path)
	assert.Equal(t, "error", u.Query().Get("reason"))

	rr, _ = h.do(httptest.NewRequest(http.MethodGet, "/api/v1/payments/webpay/return?token_ws=unknown", nil))
	assert.Equal(t, "error", redirectTarget(t, rr).Query().Get("reason"))
}

func TestGetReservation_SessionScoped(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(5, "session-a")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/"+res.Reservation.ID, nil)
	req.Header.Set(SessionHeader, "session-a")
	rr, env := h.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	var data struct {
		Reservation PublicResponse `json:"reservation"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, res.Reservation.Folio, data.Reservation.Folio)
	assert.NotContains(t, rr.Body.String(), "maria.soto@example.cl")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reservations/"+res.Reservation.ID, nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "session-b"})
	rr, env = h.do(req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "RESERVATION_NOT_FOUND", env.Error.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := setupHandler(t)
	res := h.mustReserve(5, "session-a")
	h.mustReserve(6, "session-b")

	patch := func(role, user, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/reservations/"+res.Reservation.ID+"/pipeline", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", role)
		req.Header.Set("X-Test-User", user)
		return h.do(req)
	}

	rr, env := patch("seller", "7", `{"assigned_seller_id":7}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	rr, _ = patch("admin", "1", `{"assigned_seller_id":7,"pipeline_stage":"contacted"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr, env = patch("seller", "7", `{"pipeline_stage":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rr, _ = patch("seller", "7", `{"notes":"called, wants a second visit"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	list := func(role, user string) ListResponse {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reservations", nil)
		req.Header.Set("X-Test-Role", role)
		req.Header.Set("X-Test-User", user)
		rr, env := h.do(req)
		require.Equal(t, http.StatusOK, rr.Code)
		var out ListResponse
		require.NoError(t, json.Unmarshal(env.Data, &out))
		return out
	}
	assert.Equal(t, int64(2), list("admin", "1").Total)
	mine := list("seller", "7")
	require.Equal(t, int64(1), mine.Total)
	assert.Equal(t, "called, wants a second visit", mine.Reservations[0].Notes)
	assert.Equal(t, StatusPendingPayment, mine.Reservations[0].Status)
	assert.Equal(t, int64(0), list("seller", "8").Total)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", nil)
	req.Header.Set("X-Test-Role", "seller")
	rr, _ = h.do(req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", nil)
	req.Header.Set("X-Test-Role", "admin")
	rr, _ = h.do(req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
