package handlers

import (
	"log"
	"net/http"

	"github.com/dexa-wallet/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// GetAddressQR renders the deposit address as a QR code
// @Summary Deposit address QR code
// @Description PNG encoding of ethereum:<address>@<chainId>
// @Tags Wallets
// @Produce png
// @Security BearerAuth
// @Param phoneNumber path string true "Wallet phone number"
// @Success 200 {file} binary
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallets/{phoneNumber}/qr [get]
func (h *QRHandler) GetAddressQR(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phoneNumber")

	png, err := h.service.AddressQR(r.Context(), phone)
	if err != nil {
		log.Printf("[WALLET] GetAddressQR - %s: %v", phone, err)
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
