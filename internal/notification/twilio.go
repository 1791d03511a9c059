package notification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier delivers SMS and WhatsApp messages through the Twilio REST API.
type TwilioNotifier struct {
	api          messageCreator
	smsFrom      string
	whatsappFrom string
}

func NewTwilioNotifier(accountSID, authToken, smsFrom, whatsappFrom string) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioNotifier{
		api:          client.Api,
		smsFrom:      smsFrom,
		whatsappFrom: whatsappFrom,
	}
}

func (t *TwilioNotifier) Send(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from, to := t.smsFrom, message.To
	if message.Channel == ChannelWhatsApp {
		from, to = whatsappAddress(t.whatsappFrom), whatsappAddress(message.To)
	}

	// Without a sender number, log instead of sending
	if from == "" || from == "whatsapp:" {
		return NewLoggerNotifier().Send(ctx, message)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(message.Body)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", message.Channel, err)
	}

	if resp != nil && resp.Sid != nil {
		log.Printf("[NOTIFY] Sent %s to %s (sid %s)", message.Channel, message.To, *resp.Sid)
	}
	return nil
}

func whatsappAddress(number string) string {
	if number == "" || strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
