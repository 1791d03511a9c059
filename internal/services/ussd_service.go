package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/dexa-wallet/backend/internal/config"
	"github.com/dexa-wallet/backend/internal/hsm"
)

const (
	menuCreateAccount  = "1"
	menuViewKey        = "2"
	menuSetPIN         = "3"
	menuDeleteAccount  = "4"
	menuBalance        = "5"
	menuSendNative     = "6"
	menuHistory        = "7"
	menuTokenAssociate = "8"
	menuTokenTransfer  = "9"

	confirmChoice = "1"

	msgInvalidOption = "Invalid option"
	msgGenericError  = "An error occurred. Please try again."
	msgBusy          = "Another request is in progress. Please try again."
)

// USSDRequest is one gateway callback. Text carries every keystroke of the
// dialog so far, separated by "*".
type USSDRequest struct {
	SessionID   string
	ServiceCode string
	PhoneNumber string
	Text        string
}

// USSDResponse is either a prompt that keeps the session open or a
// terminal message.
type USSDResponse struct {
	Continue bool
	Message  string
}

func (r USSDResponse) String() string {
	if r.Continue {
		return "CON " + r.Message
	}
	return "END " + r.Message
}

func con(message string) USSDResponse {
	return USSDResponse{Continue: true, Message: message}
}

func end(message string) USSDResponse {
	return USSDResponse{Message: message}
}

type flowFunc func(ctx context.Context, phoneNumber string, tokens []string) USSDResponse

// USSDService resolves each request from its token history alone; no
// session state is kept between callbacks.
type USSDService struct {
	store      Store
	chain      ChainClient
	hsm        hsm.HSMInterface
	pins       *PinPolicy
	transactor *Transactor
	audit      *hsm.AuditLogger
	locker     SessionLocker
	cache      ResponseCache
	config     *config.USSDConfig
	flows      map[string]flowFunc
}

// USSDDeps groups the collaborators of the USSD engine. Locker and Cache are
// optional.
type USSDDeps struct {
	Store      Store
	Chain      ChainClient
	HSM        hsm.HSMInterface
	Pins       *PinPolicy
	Transactor *Transactor
	Audit      *hsm.AuditLogger
	Locker     SessionLocker
	Cache      ResponseCache
	Config     *config.USSDConfig
}

func NewUSSDService(deps USSDDeps) *USSDService {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.LoadUSSDConfig()
	}
	audit := deps.Audit
	if audit == nil {
		audit = hsm.NewAuditLogger()
	}

	s := &USSDService{
		store:      deps.Store,
		chain:      deps.Chain,
		hsm:        deps.HSM,
		pins:       deps.Pins,
		transactor: deps.Transactor,
		audit:      audit,
		locker:     deps.Locker,
		cache:      deps.Cache,
		config:     cfg,
	}

	s.flows = map[string]flowFunc{
		menuCreateAccount:  s.createAccount,
		menuViewKey:        s.viewPrivateKey,
		menuSetPIN:         s.setPIN,
		menuDeleteAccount:  s.deleteAccount,
		menuBalance:        s.checkBalance,
		menuSendNative:     s.sendNative,
		menuHistory:        s.history,
		menuTokenAssociate: s.tokenAssociate,
		menuTokenTransfer:  s.tokenTransfer,
	}
	return s
}

// Handle answers one gateway request. It never returns an error: any failure
// becomes a terminal message.
func (s *USSDService) Handle(ctx context.Context, req USSDRequest) (resp USSDResponse) {
	phone := strings.TrimSpace(req.PhoneNumber)
	if phone == "" {
		return end(msgGenericError)
	}

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, phone)
		switch {
		case errors.Is(err, ErrLockBusy):
			log.Printf("[USSD] Handle - %s busy, rejecting request", phone)
			return end(msgBusy)
		case err != nil:
			log.Printf("[USSD] Handle - lock unavailable for %s, continuing unlocked: %v", phone, err)
		default:
			defer unlock()
		}
	}

	if s.cache != nil {
		if message, ok := s.cache.Get(ctx, req.SessionID, req.Text); ok {
			log.Printf("[USSD] Handle - replaying cached response for session %s", req.SessionID)
			return end(message)
		}
	}

	resp = s.Route(ctx, phone, req.Text)

	if !resp.Continue && s.cache != nil {
		s.cache.Put(context.WithoutCancel(ctx), req.SessionID, req.Text, resp.Message)
	}
	return resp
}

// Route decodes the input and dispatches to the selected flow.
func (s *USSDService) Route(ctx context.Context, phoneNumber, text string) (resp USSDResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[USSD] Route - panic for %s: %v", phoneNumber, r)
			resp = end(msgGenericError)
		}
	}()

	if text == "" {
		return s.rootMenu()
	}

	tokens := DecodeInput(text)
	flow, ok := s.flows[tokenAt(tokens, 0)]
	if !ok {
		return end(msgInvalidOption)
	}
	return flow(ctx, phoneNumber, tokens)
}

func (s *USSDService) rootMenu() USSDResponse {
	return con(strings.Join([]string{
		"Welcome to DeXa USSD",
		"1. Create Account",
		"2. View Private Key",
		"3. Set PIN",
		"4. Delete Account",
		"5. Check Balance",
		"6. Send " + s.transactor.NativeSymbol(),
		"7. Tx History",
		"8. Token Associate",
		"9. Token Transfer",
	}, "\n"))
}
