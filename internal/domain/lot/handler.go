package lot

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"loteo/internal/pkg/clock"
	"loteo/internal/pkg/response"
)

type Handler struct {
	repo       *Repository
	clock      clock.Clock
	defaultFee int64
}

func NewHandler(repo *Repository, clk clock.Clock, defaultFee int64) *Handler {
	return &Handler{repo: repo, clock: clk, defaultFee: defaultFee}
}

// ListLots GET /lots?stage=&status=
func (h *Handler) ListLots(c *gin.Context) {
	var f Filter
	if s := c.Query("stage"); s != "" {
		stage, err := strconv.Atoi(s)
		if err != nil || stage < 1 || stage > len(stages) {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid stage")
			return
		}
		f.Stage = stage
	}
	if s := c.Query("status"); s != "" {
		f.Status = Status(s)
		if !f.Status.Valid() {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid status")
			return
		}
	}

	now := h.clock.Now()
	lots, err := h.repo.List(c.Request.Context(), f, now)
	if err != nil {
		response.FromError(c, err, "LIST_FAILED")
		return
	}

	out := make([]Response, 0, len(lots))
	for i := range lots {
		out = append(out, ToResponse(&lots[i], now, h.defaultFee))
	}
	response.Success(c, http.StatusOK, gin.H{"lots": out, "total": len(out)})
}

// GetLot GET /lots/:id
func (h *Handler) GetLot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid lot id")
		return
	}

	l, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err, "LOT_NOT_FOUND")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"lot": ToResponse(l, h.clock.Now(), h.defaultFee)})
}

// GetSummary GET /lots/summary
func (h *Handler) GetSummary(c *gin.Context) {
	sum, err := h.repo.Summary(c.Request.Context(), h.clock.Now())
	if err != nil {
		response.FromError(c, err, "SUMMARY_FAILED")
		return
	}
	response.Success(c, http.StatusOK, sum)
}
