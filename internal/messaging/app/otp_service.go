package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/observability"
)

// OTPStore is the expiring key-value store holding pending codes. It must be
// shared by every process verifying codes. Implementations provide atomic
// primitives so concurrent verifications against one key never undercount
// attempts and a code is consumed at most once.
type OTPStore interface {
	// Put stores rec under key with the given TTL, replacing any record.
	Put(ctx context.Context, key string, rec domain.OTPRecord, ttl time.Duration) error
	// Get returns domain.ErrNotFound when no live record exists.
	Get(ctx context.Context, key string) (domain.OTPRecord, error)
	Has(ctx context.Context, key string) (bool, error)
	// Forget deletes key and reports whether this call removed a record.
	Forget(ctx context.Context, key string) (bool, error)
	// Consume deletes key only while it still holds code and reports whether
	// this call removed it. A record replaced by a newer code is left alone.
	Consume(ctx context.Context, key, code string) (bool, error)
	// IncrementAttempts atomically adds one attempt. When the new count
	// reaches max the record is deleted; otherwise its TTL is reset to ttl.
	// Returns domain.ErrNotFound when no live record exists.
	IncrementAttempts(ctx context.Context, key string, max int, ttl time.Duration) (int, error)
}

// CodeGenerator produces fixed-length numeric codes.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func(length int) (string, error)

// Generate calls f.
func (f CodeGeneratorFunc) Generate(length int) (string, error) { return f(length) }

// RandomCode draws a uniform integer in [0, 10^length) from crypto/rand and
// zero-pads it to length digits.
var RandomCode CodeGeneratorFunc = func(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate OTP: %w", err)
	}
	digits := n.String()
	return strings.Repeat("0", length-len(digits)) + digits, nil
}

// OTPServiceConfig holds the dependencies for OTPService.
type OTPServiceConfig struct {
	Sender      OTPSender
	Store       OTPStore
	Channel     string
	Length      int
	Expiry      time.Duration
	MaxAttempts int
	// Message is the SMS template. {code} and {expiry} (minutes) are
	// substituted. Ignored for template-based senders.
	Message   string
	KeyPrefix string
	Generator CodeGenerator
	Clock     domain.Clock
	Logger    *slog.Logger
}

// OTPService owns the lifecycle of one-time codes for a channel:
// absent -> pending -> verified | exhausted | expired, all terminal states
// converging back to absent. Every read and write round-trips through the
// store; nothing is cached between calls.
type OTPService struct {
	sender      OTPSender
	store       OTPStore
	channel     string
	length      int
	expiry      time.Duration
	maxAttempts int
	message     string
	keyPrefix   string
	generator   CodeGenerator
	clock       domain.Clock
	logger      *slog.Logger
}

// NewOTPService creates an OTPService. Zero values fall back to the compiled
// defaults.
func NewOTPService(cfg OTPServiceConfig) *OTPService {
	s := &OTPService{
		sender:      cfg.Sender,
		store:       cfg.Store,
		channel:     cfg.Channel,
		length:      cfg.Length,
		expiry:      cfg.Expiry,
		maxAttempts: cfg.MaxAttempts,
		message:     cfg.Message,
		keyPrefix:   cfg.KeyPrefix,
		generator:   cfg.Generator,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.length <= 0 {
		s.length = domain.DefaultOTPLength
	}
	s.length = min(max(s.length, domain.MinOTPLength), domain.MaxOTPLength)
	if s.expiry <= 0 {
		s.expiry = domain.DefaultOTPExpiry
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = domain.DefaultOTPMaxAttempts
	}
	if s.message == "" {
		s.message = domain.DefaultOTPMessage
	}
	if s.channel == "" {
		s.channel = string(domain.ChannelSMS)
	}
	if s.generator == nil {
		s.generator = RandomCode
	}
	if s.clock == nil {
		s.clock = domain.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Send issues a fresh code for (phone, purpose), stores it and delivers it.
// The result carries the code only when the send succeeded.
func (s *OTPService) Send(ctx context.Context, phone, purpose string) (domain.OTPResult, error) {
	purpose = purposeOrDefault(purpose)
	ctx, span := tracer.Start(ctx, "otp.send")
	defer span.End()
	span.SetAttributes(attribute.String("otp.channel", s.channel), attribute.String("otp.purpose", purpose))

	logger := observability.WithTraceID(ctx, s.logger)

	code, err := s.generator.Generate(s.length)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.OTPResult{}, err
	}

	now := s.clock.Now().UTC()
	expiresAt := now.Add(s.expiry)
	key := s.Key(phone, purpose)

	if err := s.store.Put(ctx, key, domain.OTPRecord{Code: code, CreatedAt: now}, s.expiry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.OTPResult{}, fmt.Errorf("store OTP: %w", err)
	}

	resp, err := s.sender.Send(ctx, domain.SmsMessage{Recipient: phone, Content: s.content(code)})
	if err != nil {
		otpIssuedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("channel", s.channel), attribute.String("status", "error")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "otp.send_failed",
			"channel", s.channel, "phone", domain.MaskPhone(phone), "purpose", purpose, "error", err)
		// The code never left; drop it unless a concurrent Send replaced it.
		if _, ferr := s.store.Consume(ctx, key, code); ferr != nil {
			logger.WarnContext(ctx, "otp.discard_failed",
				"channel", s.channel, "phone", domain.MaskPhone(phone), "purpose", purpose, "error", ferr)
		}
		return domain.OTPResult{}, fmt.Errorf("send OTP: %w", err)
	}

	result := domain.OTPResult{
		Success:   resp.Success(),
		ExpiresAt: expiresAt,
		Response:  resp,
	}
	if resp.Success() {
		result.Code = code
	}

	status := "sent"
	if resp.Failed() {
		status = "rejected"
	}
	otpIssuedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", s.channel), attribute.String("status", status)))
	logger.InfoContext(ctx, "otp.issued",
		"channel", s.channel,
		"phone", domain.MaskPhone(phone),
		"purpose", purpose,
		"response_code", resp.Code().String(),
	)

	return result, nil
}

// Verify checks code against the pending record. The correct code returns
// true exactly once; a wrong code consumes one attempt and the attempt that
// reaches the cap deletes the record.
func (s *OTPService) Verify(ctx context.Context, phone, code, purpose string) (bool, error) {
	purpose = purposeOrDefault(purpose)
	ctx, span := tracer.Start(ctx, "otp.verify")
	defer span.End()
	span.SetAttributes(attribute.String("otp.channel", s.channel), attribute.String("otp.purpose", purpose))

	logger := observability.WithTraceID(ctx, s.logger)
	key := s.Key(phone, purpose)

	rec, err := s.store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		s.countVerification(ctx, "absent")
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("get OTP: %w", err)
	}

	if rec.Attempts >= s.maxAttempts {
		if _, err := s.store.Forget(ctx, key); err != nil {
			return false, fmt.Errorf("forget exhausted OTP: %w", err)
		}
		s.countVerification(ctx, "exhausted")
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.Code)) != 1 {
		attempts, err := s.store.IncrementAttempts(ctx, key, s.maxAttempts, s.expiry)
		if errors.Is(err, domain.ErrNotFound) {
			s.countVerification(ctx, "mismatch")
			return false, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("increment OTP attempts: %w", err)
		}
		result := "mismatch"
		if attempts >= s.maxAttempts {
			result = "exhausted"
		}
		s.countVerification(ctx, result)
		logger.InfoContext(ctx, "otp.verify_failed",
			"channel", s.channel, "phone", domain.MaskPhone(phone), "purpose", purpose, "attempts", attempts)
		return false, nil
	}

	// Deletion is the consume step: of two concurrent correct guesses only
	// the one that removed the record succeeds, and a code replaced by Resend
	// in the meantime is left alone.
	deleted, err := s.store.Consume(ctx, key, rec.Code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("consume OTP: %w", err)
	}
	if !deleted {
		s.countVerification(ctx, "absent")
		return false, nil
	}

	s.countVerification(ctx, "verified")
	logger.InfoContext(ctx, "otp.verified",
		"channel", s.channel, "phone", domain.MaskPhone(phone), "purpose", purpose)
	return true, nil
}

// Resend discards any pending code and issues a fresh one.
func (s *OTPService) Resend(ctx context.Context, phone, purpose string) (domain.OTPResult, error) {
	purpose = purposeOrDefault(purpose)
	ctx, span := tracer.Start(ctx, "otp.resend")
	defer span.End()

	if _, err := s.store.Forget(ctx, s.Key(phone, purpose)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.OTPResult{}, fmt.Errorf("forget OTP: %w", err)
	}
	return s.Send(ctx, phone, purpose)
}

// IsValid reports whether a pending code exists, regardless of attempts left.
func (s *OTPService) IsValid(ctx context.Context, phone, purpose string) (bool, error) {
	ok, err := s.store.Has(ctx, s.Key(phone, purposeOrDefault(purpose)))
	if err != nil {
		return false, fmt.Errorf("check OTP: %w", err)
	}
	return ok, nil
}

// RemainingAttempts returns max(0, maxAttempts - attempts), or 0 when no code
// is pending.
func (s *OTPService) RemainingAttempts(ctx context.Context, phone, purpose string) (int, error) {
	rec, err := s.store.Get(ctx, s.Key(phone, purposeOrDefault(purpose)))
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get OTP: %w", err)
	}
	return max(0, s.maxAttempts-rec.Attempts), nil
}

// Invalidate deletes any pending code. It is idempotent.
func (s *OTPService) Invalidate(ctx context.Context, phone, purpose string) error {
	if _, err := s.store.Forget(ctx, s.Key(phone, purposeOrDefault(purpose))); err != nil {
		return fmt.Errorf("forget OTP: %w", err)
	}
	return nil
}

// Key returns the store key for (phone, purpose).
func (s *OTPService) Key(phone, purpose string) string {
	return s.keyPrefix + "otp:" + purpose + ":" + phone
}

// Channel returns the channel the service sends through.
func (s *OTPService) Channel() string {
	return s.channel
}

// Expiry returns the code lifetime.
func (s *OTPService) Expiry() time.Duration {
	return s.expiry
}

func (s *OTPService) content(code string) string {
	if _, ok := s.sender.(rawCodeSender); ok {
		return code
	}
	minutes := strconv.Itoa(int(s.expiry / time.Minute))
	return strings.NewReplacer("{code}", code, "{expiry}", minutes).Replace(s.message)
}

func (s *OTPService) countVerification(ctx context.Context, result string) {
	otpVerificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", s.channel), attribute.String("result", result)))
}

func purposeOrDefault(purpose string) string {
	if purpose == "" {
		return domain.DefaultOTPPurpose
	}
	return purpose
}
