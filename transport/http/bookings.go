package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/service"
)

// BookingView is the JSON form of a booking.
type BookingView struct {
	ID              string        `json:"id"`
	ProviderAddress string        `json:"providerAddress"`
	ClientAddress   string        `json:"clientAddress,omitempty"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         time.Time     `json:"endTime"`
	Status          string        `json:"status"`
	BookingHash     string        `json:"bookingHash"`
	Metadata        core.Metadata `json:"metadata,omitempty"`
	CommitTx        string        `json:"commitTx,omitempty"`
	CancelTx        string        `json:"cancelTx,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func viewOf(b core.Booking) BookingView {
	return BookingView{
		ID:              b.ID,
		ProviderAddress: b.ProviderAddress,
		ClientAddress:   b.ClientAddress,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		Status:          string(b.Status),
		BookingHash:     b.CommitmentHash,
		Metadata:        b.Metadata,
		CommitTx:        b.CommitTx,
		CancelTx:        b.CancelTx,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func viewsOf(bookings []core.Booking) []BookingView {
	out := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, viewOf(b))
	}
	return out
}

// BookingHandlers contains HTTP handlers for booking endpoints
type BookingHandlers struct {
	bookings *service.BookingService
}

// NewBookingHandlers creates new booking handlers
func NewBookingHandlers(bookings *service.BookingService) *BookingHandlers {
	return &BookingHandlers{bookings: bookings}
}

// Create stores a booking and commits it on the ledger
func (h *BookingHandlers) Create(c *gin.Context) {
	var req struct {
		ProviderAddress string        `json:"providerAddress" binding:"required"`
		ClientAddress   string        `json:"clientAddress"`
		StartTime       time.Time     `json:"startTime"`
		EndTime         time.Time     `json:"endTime"`
		Metadata        core.Metadata `json:"metadata"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.bookings.Create(c.Request.Context(), service.BookingRequest{
		ProviderAddress: req.ProviderAddress,
		ClientAddress:   req.ClientAddress,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Metadata:        req.Metadata,
	})
	h.writeResult(c, res, err, "Booking created but on-chain commit failed")
}

// Commit retries the ledger commit of a pending booking
func (h *BookingHandlers) Commit(c *gin.Context) {
	res, err := h.bookings.RetryCommit(c.Request.Context(), c.Param("id"))
	h.writeResult(c, res, err, "On-chain commit failed")
}

// Cancel cancels a booking off-chain and on the ledger
func (h *BookingHandlers) Cancel(c *gin.Context) {
	res, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"))
	h.writeResult(c, res, err, "Booking cancelled off-chain but on-chain cancellation failed")
}

// Complete marks a committed booking as completed
func (h *BookingHandlers) Complete(c *gin.Context) {
	booking, err := h.bookings.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "booking": viewOf(booking)})
}

// writeResult renders a commit or cancel outcome. Failures that still carry
// a booking keep it in the body next to the error.
func (h *BookingHandlers) writeResult(c *gin.Context, res service.Result, err error, ledgerMessage string) {
	if err != nil && res.Booking.ID == "" {
		abortWithError(c, err)
		return
	}

	status := http.StatusOK
	body := gin.H{"success": err == nil, "booking": viewOf(res.Booking)}
	if res.TxHash != "" {
		body["txHash"] = res.TxHash
	}
	if err != nil {
		_ = c.Error(err)
		status = statusOf(err)
		body["error"] = errorMessage(err)
		if errors.Is(err, core.ErrLedger) {
			body["error"] = ledgerMessage
			body["detail"] = err.Error()
		}
	}
	c.JSON(status, body)
}

// Get returns a booking by id
func (h *BookingHandlers) Get(c *gin.Context) {
	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(booking))
}

// ListByProvider returns the bookings of a provider
func (h *BookingHandlers) ListByProvider(c *gin.Context) {
	bookings, err := h.bookings.ListByProvider(c.Request.Context(), c.Param("address"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": viewsOf(bookings)})
}

// ListByClient returns the bookings of a client
func (h *BookingHandlers) ListByClient(c *gin.Context) {
	bookings, err := h.bookings.ListByClient(c.Request.Context(), c.Param("address"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": viewsOf(bookings)})
}

// Check asks the ledger whether a slot is free
func (h *BookingHandlers) Check(c *gin.Context) {
	var req struct {
		ProviderAddress string    `json:"providerAddress" binding:"required"`
		StartTime       time.Time `json:"startTime"`
		EndTime         time.Time `json:"endTime"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	available, err := h.bookings.CheckAvailability(c.Request.Context(), req.ProviderAddress, req.StartTime, req.EndTime)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"available":       available,
		"providerAddress": req.ProviderAddress,
		"startTime":       req.StartTime,
		"endTime":         req.EndTime,
	})
}

// Verify compares a claimed commitment with the ledger and the stored booking
func (h *BookingHandlers) Verify(c *gin.Context) {
	var req struct {
		BookingID       string `json:"bookingId"`
		ProviderAddress string `json:"providerAddress" binding:"required"`
		BookingHash     string `json:"bookingHash" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	res, err := h.bookings.Verify(c.Request.Context(), service.VerifyRequest{
		ProviderAddress: req.ProviderAddress,
		CommitmentHash:  req.BookingHash,
		BookingID:       req.BookingID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	var booking *BookingView
	if res.Booking != nil {
		v := viewOf(*res.Booking)
		booking = &v
	}

	c.JSON(http.StatusOK, gin.H{
		"verified":        res.OnLedger,
		"providerAddress": req.ProviderAddress,
		"bookingHash":     req.BookingHash,
		"booking":         booking,
		"hashMatches":     res.HashMatches,
		"drift":           res.Drift,
	})
}
