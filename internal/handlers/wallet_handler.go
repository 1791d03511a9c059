package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/dexa-wallet/backend/internal/chain"
	"github.com/dexa-wallet/backend/internal/repository"
	"github.com/dexa-wallet/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

const (
	defaultTransactionLimit = 10
	maxTransactionLimit     = 50
)

type WalletHandler struct {
	service   *services.WalletService
	validator *services.ValidationHelper
}

func NewWalletHandler(service *services.WalletService) *WalletHandler {
	return &WalletHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type fundRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
	Amount      string `json:"amount,omitempty" validate:"omitempty,amount"`
}

type transferRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required,phone"`
	PIN         string `json:"pin" validate:"required,pin"`
	To          string `json:"to" validate:"required,evmaddr"`
	Amount      string `json:"amount" validate:"required,amount"`
}

type submitResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Status  string `json:"status"`
}

// GetBalance returns the native balance of a wallet
// @Summary Wallet balance
// @Tags Wallets
// @Produce json
// @Security BearerAuth
// @Param phoneNumber path string true "Wallet phone number"
// @Success 200 {object} services.Balance
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /wallets/{phoneNumber}/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phoneNumber")

	balance, err := h.service.Balance(r.Context(), phone)
	if err != nil {
		log.Printf("[WALLET] GetBalance - %s: %v", phone, err)
		sendServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, balance)
}

// ListTransactions returns the newest ledger records of a wallet
// @Summary Wallet transactions
// @Tags Wallets
// @Produce json
// @Security BearerAuth
// @Param phoneNumber path string true "Wallet phone number"
// @Param limit query int false "1..50, default 10"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallets/{phoneNumber}/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phoneNumber")

	limit := defaultTransactionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTransactionLimit {
			services.SendErrorResponse(w, "limit must be between 1 and 50", http.StatusBadRequest, nil)
			return
		}
		limit = n
	}

	txs, err := h.service.Transactions(r.Context(), phone, limit)
	if err != nil {
		log.Printf("[WALLET] ListTransactions - %s: %v", phone, err)
		sendServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, txs)
}

// Fund sends native currency from the funder key
// @Summary Fund a wallet
// @Tags Wallets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{phoneNumber=string,amount=string} true "Fund request"
// @Success 200 {object} submitResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /wallets/fund [post]
func (h *WalletHandler) Fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Fund(r.Context(), req.PhoneNumber, req.Amount)
	if err != nil {
		log.Printf("[WALLET] Fund - %s: %v", req.PhoneNumber, err)
		sendServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, submitResponse{Success: true, TxHash: result.Hash, Status: string(result.Status)})
}

// Transfer sends native currency from a wallet
// @Summary Native transfer
// @Description Verifies the PIN under the shared lockout policy before submitting
// @Tags Transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{phoneNumber=string,pin=string,to=string,amount=string} true "Transfer request"
// @Success 200 {object} submitResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 423 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	log.Printf("[WALLET] Transfer - Request: phone=%s, to=%s, amount=%s", req.PhoneNumber, req.To, req.Amount)

	result, err := h.service.Send(r.Context(), req.PhoneNumber, req.PIN, req.To, req.Amount)
	if err != nil {
		log.Printf("[WALLET] Transfer - %s: %v", req.PhoneNumber, err)
		sendServiceError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, submitResponse{Success: true, TxHash: result.Hash, Status: string(result.Status)})
}

func (h *WalletHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := h.validator.ValidateStruct(v); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func sendServiceError(w http.ResponseWriter, err error) {
	var locked *services.PinLockedError
	var revert *chain.RevertError

	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		services.SendErrorResponse(w, "Wallet not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrFundingDisabled):
		services.SendErrorResponse(w, "Funding is not configured", http.StatusBadRequest, nil)
	case errors.Is(err, chain.ErrInvalidAmount):
		services.SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInvalidAddress):
		services.SendErrorResponse(w, "Invalid address", http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrInvalidPIN):
		services.SendErrorResponse(w, "Invalid PIN", http.StatusUnauthorized, nil)
	case errors.As(err, &locked):
		services.SendErrorResponse(w, locked.Error(), http.StatusLocked, nil)
	case errors.As(err, &revert):
		services.SendErrorResponse(w, services.FailureMessage(err), http.StatusUnprocessableEntity, nil)
	default:
		services.SendErrorResponse(w, "Upstream service unavailable", http.StatusBadGateway, nil)
	}
}
