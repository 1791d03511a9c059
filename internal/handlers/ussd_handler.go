package handlers

import (
	"log"
	"net/http"

	"github.com/dexa-wallet/backend/internal/services"
)

type USSDHandler struct {
	service *services.USSDService
}

func NewUSSDHandler(service *services.USSDService) *USSDHandler {
	return &USSDHandler{service: service}
}

// Callback answers the USSD gateway
// @Summary USSD gateway callback
// @Description Receives the accumulated dial input and answers with CON or END text
// @Tags USSD
// @Accept x-www-form-urlencoded
// @Produce plain
// @Param sessionId formData string true "Gateway session id"
// @Param serviceCode formData string false "Dialled service code"
// @Param phoneNumber formData string true "Subscriber phone number"
// @Param text formData string false "Input so far, separated by *"
// @Success 200 {string} string "CON ... or END ..."
// @Router /ussd [post]
func (h *USSDHandler) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := r.ParseForm(); err != nil {
		log.Printf("[USSD] Callback - Form parse error: %v", err)
		writeText(w, "END An error occurred. Please try again.")
		return
	}

	req := services.USSDRequest{
		SessionID:   r.PostFormValue("sessionId"),
		ServiceCode: r.PostFormValue("serviceCode"),
		PhoneNumber: r.PostFormValue("phoneNumber"),
		Text:        r.PostFormValue("text"),
	}

	log.Printf("[USSD] Callback - session=%s phone=%s depth=%d", req.SessionID, req.PhoneNumber, len(services.DecodeInput(req.Text)))

	resp := h.service.Handle(r.Context(), req)
	writeText(w, resp.String())
}

// writeText answers with 200 text/plain; gateways treat any other status as a
// dropped session.
func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
