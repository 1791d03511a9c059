package middleware

import (
	"log"
	"net/http"

	"github.com/twilio/twilio-go/client"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// TwilioSignature rejects webhook calls whose X-Twilio-Signature does not
// match. webhookURL is the public URL configured in the Twilio console. An
// empty authToken disables the check.
func TwilioSignature(authToken, webhookURL string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authToken == "" {
			log.Println("[MESSAGE] Twilio auth token not set, webhook signatures are not verified")
			return next
		}
		validator := client.NewRequestValidator(authToken)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
			if err := r.ParseForm(); err != nil {
				http.Error(w, "Invalid form body", http.StatusBadRequest)
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for key := range r.PostForm {
				params[key] = r.PostForm.Get(key)
			}

			url := webhookURL
			if url == "" {
				url = requestURL(r)
			}

			if !validator.Validate(url, params, r.Header.Get(twilioSignatureHeader)) {
				log.Printf("[MESSAGE] TwilioSignature - rejected request from %s", r.RemoteAddr)
				http.Error(w, "Invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
