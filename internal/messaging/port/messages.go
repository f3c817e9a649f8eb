package port

import (
	"fmt"
	"net/http"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

type sendRequest struct {
	Channel     string            `json:"channel"`
	To          string            `json:"to"`
	Content     string            `json:"content"`
	SenderID    string            `json:"sender_id"`
	Email       string            `json:"email"`
	Subject     string            `json:"subject"`
	TemplateSID string            `json:"template_sid"`
	Variables   map[string]string `json:"variables"`
	MediaURL    string            `json:"media_url"`
	Caption     string            `json:"caption"`
}

// sendMessage dispatches one message. A template takes precedence over media,
// media over an email copy, and an email copy over a plain send.
func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) error {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := required("to", req.To); err != nil {
		return err
	}
	m, err := h.channel(req.Channel)
	if err != nil {
		return err
	}

	ctx := r.Context()
	msg := domain.SmsMessage{Recipient: req.To, Content: req.Content, SenderID: req.SenderID}

	var resp domain.Response
	switch {
	case req.TemplateSID != "":
		resp, err = m.SendTemplate(ctx, req.To, req.TemplateSID, req.Variables)
	case req.MediaURL != "":
		resp, err = m.SendMedia(ctx, req.To, req.MediaURL, req.Caption)
	case req.Email != "":
		if err := required("content", req.Content); err != nil {
			return err
		}
		resp, err = m.SendWithEmail(ctx, msg, req.Email, req.Subject)
	default:
		if err := required("content", req.Content); err != nil {
			return err
		}
		resp, err = m.Send(ctx, msg)
	}
	if err != nil {
		return sendFailure(err)
	}
	writeResponse(w, resp)
	return nil
}

type bulkRequest struct {
	Channel  string                       `json:"channel"`
	To       []string                     `json:"to"`
	Content  string                       `json:"content"`
	SenderID string                       `json:"sender_id"`
	Messages []domain.PersonalizedMessage `json:"messages"`
}

// sendBulk sends personalized messages when given, otherwise the same content
// to every recipient.
func (h *Handler) sendBulk(w http.ResponseWriter, r *http.Request) error {
	var req bulkRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if len(req.Messages) == 0 && len(req.To) == 0 {
		return fmt.Errorf("%w: to or messages is required", domain.ErrInvalidInput)
	}
	m, err := h.channel(req.Channel)
	if err != nil {
		return err
	}

	var resp domain.Response
	if len(req.Messages) > 0 {
		resp, err = m.SendPersonalized(r.Context(), req.Messages, req.SenderID)
	} else {
		if err := required("content", req.Content); err != nil {
			return err
		}
		resp, err = m.SendBulk(r.Context(), domain.BulkMessage{
			Recipients: req.To,
			Content:    req.Content,
			SenderID:   req.SenderID,
		})
	}
	if err != nil {
		return sendFailure(err)
	}
	writeResponse(w, resp)
	return nil
}

type balanceResponse struct {
	Channel  string               `json:"channel"`
	Balances []domain.BalanceInfo `json:"balances"`
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) error {
	name := r.URL.Query().Get("channel")
	m, err := h.channel(name)
	if err != nil {
		return err
	}
	balances, err := m.GetBalance(r.Context())
	if err != nil {
		return sendFailure(err)
	}
	if balances == nil {
		balances = []domain.BalanceInfo{}
	}
	if name == "" {
		name = m.Gateway().Name()
	}
	writeJSON(w, http.StatusOK, balanceResponse{Channel: name, Balances: balances})
	return nil
}

type callbackRequest struct {
	Channel string `json:"channel"`
	URL     string `json:"url"`
	Method  string `json:"method"`
}

func (h *Handler) configureCallback(w http.ResponseWriter, r *http.Request) error {
	var req callbackRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := required("url", req.URL); err != nil {
		return err
	}
	if req.Method == "" {
		req.Method = http.MethodPost
	}
	m, err := h.channel(req.Channel)
	if err != nil {
		return err
	}
	resp, err := m.ConfigureCallback(r.Context(), req.URL, req.Method)
	if err != nil {
		return sendFailure(err)
	}
	writeResponse(w, resp)
	return nil
}
