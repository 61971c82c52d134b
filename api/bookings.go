package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/Domenick1991/servicehub/internal/service/booking"
	"github.com/gin-gonic/gin"
)

const timeLayout = "2006-01-02T15:04:05"

type BookingHandler struct {
	service booking.BookingUseCase
}

type createBookingResponse struct {
	BookingID   string  `json:"bookingId"`
	TotalAmount float64 `json:"totalAmount"`
}

type bookingAddonResponse struct {
	AddonID string  `json:"addonId"`
	Price   float64 `json:"price"`
}

type bookingResponse struct {
	ID               string                 `json:"id"`
	CustomerID       string                 `json:"customerId"`
	ProviderID       string                 `json:"providerId"`
	ServiceID        string                 `json:"serviceId"`
	Status           string                 `json:"status"`
	ScheduledAt      string                 `json:"scheduledAt"`
	DurationMinutes  int                    `json:"durationMinutes"`
	TotalAmount      float64                `json:"totalAmount"`
	CommissionAmount float64                `json:"commissionAmount"`
	Currency         string                 `json:"currency"`
	PaymentStatus    string                 `json:"paymentStatus"`
	PaymentType      string                 `json:"paymentType"`
	CustomerAddress  json.RawMessage        `json:"customerAddress,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	Addons           []bookingAddonResponse `json:"addons"`
	CreatedAt        string                 `json:"createdAt"`
	UpdatedAt        string                 `json:"updatedAt"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.POST("/:id/confirm", h.confirm)
	router.POST("/:id/start", h.start)
	router.POST("/:id/complete", h.complete)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/refund", h.refund)
}

func (h *BookingHandler) create(c *gin.Context) {
	var input booking.CreateBookingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, domain.Validation("invalid request body"))
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), actorFrom(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createBookingResponse{
		BookingID:   b.ID,
		TotalAmount: b.TotalAmount.InexactFloat64(),
	})
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) list(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondError(c, err)
		return
	}

	bookings, err := h.service.ListBookings(c.Request.Context(), actorFrom(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		resp = append(resp, toBookingResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) confirm(c *gin.Context) {
	h.transition(c, h.service.ConfirmBooking)
}

func (h *BookingHandler) start(c *gin.Context) {
	h.transition(c, h.service.StartBooking)
}

func (h *BookingHandler) complete(c *gin.Context) {
	h.transition(c, h.service.CompleteBooking)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	h.transition(c, h.service.CancelBooking)
}

func (h *BookingHandler) refund(c *gin.Context) {
	h.transition(c, h.service.RefundBooking)
}

type transitionFunc func(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)

func (h *BookingHandler) transition(c *gin.Context, fn transitionFunc) {
	b, err := fn(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	addons := make([]bookingAddonResponse, 0, len(b.Addons))
	for _, a := range b.Addons {
		addons = append(addons, bookingAddonResponse{AddonID: a.AddonID, Price: a.Price.InexactFloat64()})
	}
	return bookingResponse{
		ID:               b.ID,
		CustomerID:       b.CustomerID,
		ProviderID:       b.ProviderID,
		ServiceID:        b.ServiceID,
		Status:           string(b.Status),
		ScheduledAt:      b.ScheduledAt.Format(timeLayout),
		DurationMinutes:  b.DurationMinutes,
		TotalAmount:      b.TotalAmount.InexactFloat64(),
		CommissionAmount: b.CommissionAmount.InexactFloat64(),
		Currency:         b.Currency,
		PaymentStatus:    string(b.PaymentStatus),
		PaymentType:      string(b.PaymentType),
		CustomerAddress:  b.CustomerAddress,
		Notes:            b.Notes,
		Addons:           addons,
		CreatedAt:        b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        b.UpdatedAt.Format(time.RFC3339),
	}
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation(name + " must be an integer")
	}
	return v, nil
}
