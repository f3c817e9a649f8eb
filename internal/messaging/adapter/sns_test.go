package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// snsPublisherStub is a configurable stub for the snsPublisher interface.
type snsPublisherStub struct {
	input *sns.PublishInput
	err   error
}

func (s *snsPublisherStub) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSNSGateway_Send_Success(t *testing.T) {
	// Arrange
	stub := &snsPublisherStub{}
	gw := NewSNSGateway(stub, "Acme", "228", quietLogger())

	// Act
	resp, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "90123456", Content: "code 1234"})

	// Assert
	require.NoError(t, err)
	assert.True(t, resp.Success())
	assert.Equal(t, "msg-1", resp.ResourceID())
	assert.Equal(t, "+22890123456", aws.ToString(stub.input.PhoneNumber))
	assert.Equal(t, "Transactional", aws.ToString(stub.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "Acme", aws.ToString(stub.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}

func TestSNSGateway_Send_NoSenderID(t *testing.T) {
	stub := &snsPublisherStub{}
	gw := NewSNSGateway(stub, "", "228", quietLogger())

	_, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "22890123456", Content: "x"})

	require.NoError(t, err)
	assert.NotContains(t, stub.input.MessageAttributes, "AWS.SNS.SMS.SenderID")
}

func TestSNSGateway_Send_Error(t *testing.T) {
	// Arrange
	publishErr := errors.New("sns throttled")
	gw := NewSNSGateway(&snsPublisherStub{err: publishErr}, "Acme", "228", quietLogger())

	// Act
	_, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "22890123456", Content: "x"})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, publishErr)
	assert.ErrorIs(t, err, domain.ErrSendFailed)
	assert.True(t, domain.IsRetryable(err))
}

func TestSNSGateway_Send_InvalidRecipient(t *testing.T) {
	stub := &snsPublisherStub{}
	gw := NewSNSGateway(stub, "Acme", "228", quietLogger())

	_, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "12", Content: "x"})

	require.ErrorIs(t, err, domain.ErrInvalidRecipient)
	assert.Nil(t, stub.input, "nothing published")
}

func TestSNSGateway_Send_APIRejection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode domain.ResponseCode
	}{
		{
			name:     "bad credentials",
			err:      &smithy.GenericAPIError{Code: "AuthorizationError", Message: "not authorized", Fault: smithy.FaultClient},
			wantCode: domain.CodeInvalidCredentials,
		},
		{
			name:     "invalid phone",
			err:      &smithy.GenericAPIError{Code: "InvalidParameter", Message: "Invalid parameter: PhoneNumber", Fault: smithy.FaultClient},
			wantCode: domain.CodeInvalidRecipient,
		},
		{
			name:     "other client fault",
			err:      &smithy.GenericAPIError{Code: "KMSDisabled", Message: "key disabled", Fault: smithy.FaultClient},
			wantCode: domain.CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := NewSNSGateway(&snsPublisherStub{err: tt.err}, "Acme", "228", quietLogger())

			resp, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "22890123456", Content: "x"})

			require.NoError(t, err, "API rejections are responses, not errors")
			assert.True(t, resp.Failed())
			assert.Equal(t, tt.wantCode, resp.Code())
			assert.NotEmpty(t, resp.Data()["error_code"])
		})
	}
}

func TestSNSGateway_Send_ServerFaultIsTransport(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded", Fault: smithy.FaultServer}
	gw := NewSNSGateway(&snsPublisherStub{err: apiErr}, "Acme", "228", quietLogger())

	_, err := gw.Send(context.Background(), domain.SmsMessage{Recipient: "22890123456", Content: "x"})

	require.ErrorIs(t, err, domain.ErrSendFailed)
	assert.True(t, domain.IsRetryable(err))
}
