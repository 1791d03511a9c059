package handlers

import (
	"log"
	"net/http"

	"github.com/dexa-wallet/backend/internal/services"
	"github.com/twilio/twilio-go/twiml"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

// Inbound handles an SMS or WhatsApp message
// @Summary Inbound chat message
// @Description Twilio messaging webhook. Replies with TwiML.
// @Tags Messages
// @Accept x-www-form-urlencoded
// @Produce xml
// @Param From formData string true "Sender, optionally prefixed with whatsapp:"
// @Param Body formData string false "Message text"
// @Success 200 {string} string "TwiML response"
// @Failure 400 {object} services.ErrorResponse
// @Router /messages/inbound [post]
func (h *MessageHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := r.ParseForm(); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	from := r.PostFormValue("From")
	if from == "" {
		services.SendErrorResponse(w, "From is required", http.StatusBadRequest, nil)
		return
	}

	reply := h.service.Handle(r.Context(), from, r.PostFormValue("Body"))

	body, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		log.Printf("[MESSAGE] Inbound - TwiML encode error: %v", err)
		services.SendErrorResponse(w, "Failed to build reply", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}
