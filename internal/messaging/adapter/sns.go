package adapter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

// snsPublisher is a narrow, consumer-defined interface for the subset of SNS
// operations required by the SMS gateway. The real *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway delivers single messages through Amazon SNS SMS. It implements
// only the basic capability set, so bulk and callback operations are rejected
// by the manager.
type SNSGateway struct {
	client    snsPublisher
	senderID  string
	formatter domain.PhoneFormatter
	logger    *slog.Logger
}

var _ app.Gateway = (*SNSGateway)(nil)

// NewSNSGateway creates an SNSGateway backed by the given SNS client.
func NewSNSGateway(client snsPublisher, senderID, countryCode string, logger *slog.Logger) *SNSGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSGateway{
		client:    client,
		senderID:  senderID,
		formatter: domain.NewPhoneFormatter(countryCode),
		logger:    logger,
	}
}

// Name implements app.Gateway.
func (g *SNSGateway) Name() string { return "sns" }

// Send publishes one transactional SMS.
func (g *SNSGateway) Send(ctx context.Context, msg domain.SmsMessage) (domain.Response, error) {
	if !g.formatter.IsValid(msg.Recipient) {
		return domain.Response{}, domain.InvalidRecipient(msg.Recipient)
	}
	phone := g.formatter.Normalize(msg.Recipient)

	ctx, span := tracer.Start(ctx, "gateway.sns.send")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.system", "sns"))

	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(msg.Content),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	}
	if sender := g.sender(msg.SenderID); sender != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(sender),
		}
	}

	out, err := g.client.Publish(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.ErrorContext(ctx, "sns.request_failed", "recipient", domain.MaskPhone(phone), "error", err)
		if resp, ok := snsRejection(err); ok {
			return resp, nil
		}
		return domain.Response{}, domain.SendFailed("SNS publish failed", map[string]any{"operation": "send"}).
			WithCause(err).
			AsTransport()
	}

	messageID := aws.ToString(out.MessageId)
	g.logger.InfoContext(ctx, "sns.reply", "recipient", domain.MaskPhone(phone), "message_id", messageID)
	return domain.SuccessResponse("Message sent successfully", messageID, map[string]any{"message_id": messageID}), nil
}

// GetBalance returns an empty list; SNS bills per account without a credit
// balance.
func (g *SNSGateway) GetBalance(context.Context) ([]domain.BalanceInfo, error) {
	return []domain.BalanceInfo{}, nil
}

// snsRejection maps SNS API faults that retrying cannot fix onto a failed
// Response. Throttling and service faults stay transport errors.
func snsRejection(err error) (domain.Response, bool) {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return domain.Response{}, false
	}
	data := map[string]any{"error_code": apiErr.ErrorCode()}
	switch apiErr.ErrorCode() {
	case "AuthorizationError", "InvalidClientTokenId", "UnrecognizedClientException":
		return domain.ErrorResponse(domain.CodeInvalidCredentials, apiErr.ErrorMessage(), data), true
	case "InvalidParameter", "InvalidParameterValue":
		return domain.ErrorResponse(domain.CodeInvalidRecipient, apiErr.ErrorMessage(), data), true
	case "OptedOut":
		return domain.ErrorResponse(domain.CodeInvalidRecipient, "recipient opted out", data), true
	}
	if apiErr.ErrorFault() == smithy.FaultClient {
		return domain.ErrorResponse(domain.CodeUnknown, apiErr.ErrorMessage(), data), true
	}
	return domain.Response{}, false
}

func (g *SNSGateway) sender(override string) string {
	if override != "" {
		return override
	}
	return g.senderID
}
