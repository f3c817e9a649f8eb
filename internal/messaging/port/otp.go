package port

import (
	"net/http"
	"time"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/errmap"
)

type otpRequest struct {
	Channel string `json:"channel"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
}

type verifyRequest struct {
	Channel string `json:"channel"`
	Phone   string `json:"phone"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}

// otpResponse never carries the code itself.
type otpResponse struct {
	Success          bool            `json:"success"`
	ExpiresAt        time.Time       `json:"expires_at,omitzero"`
	ExpiresInSeconds int             `json:"expires_in_seconds"`
	Response         domain.Response `json:"response"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type statusResponse struct {
	Pending           bool `json:"pending"`
	RemainingAttempts int  `json:"remaining_attempts"`
}

func (h *Handler) sendOTP(w http.ResponseWriter, r *http.Request) error {
	return h.issueOTP(w, r, false)
}

func (h *Handler) resendOTP(w http.ResponseWriter, r *http.Request) error {
	return h.issueOTP(w, r, true)
}

func (h *Handler) issueOTP(w http.ResponseWriter, r *http.Request, resend bool) error {
	var req otpRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := required("phone", req.Phone); err != nil {
		return err
	}
	svc, err := h.otpChannel(req.Channel)
	if err != nil {
		return err
	}

	var result domain.OTPResult
	if resend {
		result, err = svc.Resend(r.Context(), req.Phone, req.Purpose)
	} else {
		result, err = svc.Send(r.Context(), req.Phone, req.Purpose)
	}
	if err != nil {
		return failureAs(err, func(resp domain.Response) any {
			return otpResponse{Response: resp}
		})
	}

	writeJSON(w, errmap.StatusForResponse(result.Response), otpResponse{
		Success:          result.Success,
		ExpiresAt:        result.ExpiresAt,
		ExpiresInSeconds: int(result.ExpiresIn(h.clock.Now()).Seconds()),
		Response:         result.Response,
	})
	return nil
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) error {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := required("phone", req.Phone); err != nil {
		return err
	}
	if err := required("code", req.Code); err != nil {
		return err
	}
	svc, err := h.otpChannel(req.Channel)
	if err != nil {
		return err
	}
	ok, err := svc.Verify(r.Context(), req.Phone, req.Code, req.Purpose)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: ok})
	return nil
}

func (h *Handler) otpStatus(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	phone := q.Get("phone")
	if err := required("phone", phone); err != nil {
		return err
	}
	svc, err := h.otpChannel(q.Get("channel"))
	if err != nil {
		return err
	}
	pending, err := svc.IsValid(r.Context(), phone, q.Get("purpose"))
	if err != nil {
		return err
	}
	remaining, err := svc.RemainingAttempts(r.Context(), phone, q.Get("purpose"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, statusResponse{Pending: pending, RemainingAttempts: remaining})
	return nil
}

func (h *Handler) invalidateOTP(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	phone := q.Get("phone")
	if err := required("phone", phone); err != nil {
		return err
	}
	svc, err := h.otpChannel(q.Get("channel"))
	if err != nil {
		return err
	}
	if err := svc.Invalidate(r.Context(), phone, q.Get("purpose")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
