package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/dynamo"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
)

// otpDynamoDB is the subset of the DynamoDB client used by DynamoOTPStore.
// *dynamodb.Client satisfies it; tests use stubs.
type otpDynamoDB interface {
	GetItem(ctx context.Context, params *dynamo.GetItemInput, optFns ...func(*dynamo.Options)) (*dynamo.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamo.PutItemInput, optFns ...func(*dynamo.Options)) (*dynamo.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamo.UpdateItemInput, optFns ...func(*dynamo.Options)) (*dynamo.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamo.DeleteItemInput, optFns ...func(*dynamo.Options)) (*dynamo.DeleteItemOutput, error)
}

// otpItem is the item shape of the OTP table. Times are epoch milliseconds;
// ttl is epoch seconds for DynamoDB's TTL sweeper.
type otpItem struct {
	Key       string `dynamodbav:"otp_key"`
	Code      string `dynamodbav:"code"`
	Attempts  int    `dynamodbav:"attempts"`
	CreatedAt int64  `dynamodbav:"created_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
	TTL       int64  `dynamodbav:"ttl"`
}

// DynamoOTPStore keeps codes in a DynamoDB table keyed by otp_key. The TTL
// sweeper is lazy, so expiry is enforced on read against expires_at.
type DynamoOTPStore struct {
	db        otpDynamoDB
	tableName string
	clock     domain.Clock
}

var _ app.OTPStore = (*DynamoOTPStore)(nil)

// NewDynamoOTPStore creates a DynamoOTPStore over table.
func NewDynamoOTPStore(db otpDynamoDB, tableName string, clock domain.Clock) *DynamoOTPStore {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &DynamoOTPStore{db: db, tableName: tableName, clock: clock}
}

// Put overwrites any existing record for key.
func (s *DynamoOTPStore) Put(ctx context.Context, key string, rec domain.OTPRecord, ttl time.Duration) error {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.put", "PutItem")
	defer span.End()

	expiresAt := s.clock.Now().Add(ttl)
	av, err := dynamo.MarshalMap(otpItem{
		Key:       key,
		Code:      rec.Code,
		Attempts:  rec.Attempts,
		CreatedAt: rec.CreatedAt.UTC().UnixMilli(),
		ExpiresAt: expiresAt.UTC().UnixMilli(),
		TTL:       expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("otp store: marshal item: %w", err)
	}

	if _, err := s.db.PutItem(ctx, &dynamo.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}); err != nil {
		recordSpanError(span, err)
		return fmt.Errorf("otp store: put: %w", err)
	}
	return nil
}

// Get uses a strongly consistent read. Expired items are reported as
// domain.ErrNotFound even before the sweeper removes them.
func (s *DynamoOTPStore) Get(ctx context.Context, key string) (domain.OTPRecord, error) {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.get", "GetItem")
	defer span.End()

	item, found, err := s.get(ctx, key)
	if err != nil {
		recordSpanError(span, err)
		return domain.OTPRecord{}, err
	}
	if !found {
		return domain.OTPRecord{}, fmt.Errorf("otp store: get: %w", domain.ErrNotFound)
	}
	return domain.OTPRecord{
		Code:      item.Code,
		Attempts:  item.Attempts,
		CreatedAt: domain.FromMillis(item.CreatedAt),
	}, nil
}

func (s *DynamoOTPStore) Has(ctx context.Context, key string) (bool, error) {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.has", "GetItem")
	defer span.End()

	_, found, err := s.get(ctx, key)
	if err != nil {
		recordSpanError(span, err)
		return false, err
	}
	return found, nil
}

// Forget deletes the item and reports whether a live record was removed by
// this call.
func (s *DynamoOTPStore) Forget(ctx context.Context, key string) (bool, error) {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.forget", "DeleteItem")
	defer span.End()

	out, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          s.key(key),
		ReturnValues: dynamo.ReturnValueAllOld,
	})
	if err != nil {
		recordSpanError(span, err)
		return false, fmt.Errorf("otp store: forget: %w", err)
	}
	if len(out.Attributes) == 0 {
		return false, nil
	}

	var old otpItem
	if err := dynamo.UnmarshalMap(out.Attributes, &old); err != nil {
		return false, fmt.Errorf("otp store: unmarshal item: %w", err)
	}
	return s.live(old), nil
}

// Consume deletes the item only while it holds a live record for code.
func (s *DynamoOTPStore) Consume(ctx context.Context, key, code string) (bool, error) {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.consume", "DeleteItem")
	defer span.End()

	condExpr := "code = :code AND expires_at > :now"
	_, err := s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]dynamo.AttributeValue{
			":code": &dynamo.AttributeValueMemberS{Value: code},
			":now":  numberValue(s.clock.Now().UTC().UnixMilli()),
		},
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return false, nil
		}
		recordSpanError(span, err)
		return false, fmt.Errorf("otp store: consume: %w", err)
	}
	return true, nil
}

// IncrementAttempts bumps the counter and extends expiry in one conditional
// update. Reaching maxAttempts deletes the item.
func (s *DynamoOTPStore) IncrementAttempts(ctx context.Context, key string, maxAttempts int, ttl time.Duration) (int, error) {
	ctx, span := startDynamoSpan(ctx, "store.dynamodb.increment_attempts", "UpdateItem")
	defer span.End()

	now := s.clock.Now()
	expiresAt := now.Add(ttl)
	updateExpr := "ADD attempts :one SET expires_at = :exp, #ttl = :ttl"
	condExpr := "attribute_exists(otp_key) AND expires_at > :now"

	out, err := s.db.UpdateItem(ctx, &dynamo.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		UpdateExpression:    &updateExpr,
		ConditionExpression: &condExpr,
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]dynamo.AttributeValue{
			":one": &dynamo.AttributeValueMemberN{Value: "1"},
			":exp": numberValue(expiresAt.UTC().UnixMilli()),
			":ttl": numberValue(expiresAt.Unix()),
			":now": numberValue(now.UTC().UnixMilli()),
		},
		ReturnValues: dynamo.ReturnValueAllNew,
	})
	if err != nil {
		if dynamo.IsConditionalCheckFailed(err) {
			return 0, fmt.Errorf("otp store: increment attempts: %w", domain.ErrNotFound)
		}
		recordSpanError(span, err)
		return 0, fmt.Errorf("otp store: increment attempts: %w", err)
	}

	var item otpItem
	if err := dynamo.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("otp store: unmarshal item: %w", err)
	}
	if item.Attempts < maxAttempts {
		return item.Attempts, nil
	}

	// The condition keeps a concurrent Put of a fresh code from being removed.
	condDelete := "attempts >= :max"
	_, err = s.db.DeleteItem(ctx, &dynamo.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		ConditionExpression: &condDelete,
		ExpressionAttributeValues: map[string]dynamo.AttributeValue{
			":max": numberValue(int64(maxAttempts)),
		},
	})
	if err != nil && !dynamo.IsConditionalCheckFailed(err) {
		recordSpanError(span, err)
		return 0, fmt.Errorf("otp store: delete exhausted: %w", err)
	}
	return item.Attempts, nil
}

func (s *DynamoOTPStore) get(ctx context.Context, key string) (otpItem, bool, error) {
	out, err := s.db.GetItem(ctx, &dynamo.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(key),
		ConsistentRead: dynamo.Bool(true),
	})
	if err != nil {
		return otpItem{}, false, fmt.Errorf("otp store: get: %w", err)
	}
	if out.Item == nil {
		return otpItem{}, false, nil
	}

	var item otpItem
	if err := dynamo.UnmarshalMap(out.Item, &item); err != nil {
		return otpItem{}, false, fmt.Errorf("otp store: unmarshal item: %w", err)
	}
	return item, s.live(item), nil
}

func (s *DynamoOTPStore) live(item otpItem) bool {
	return s.clock.Now().UTC().UnixMilli() < item.ExpiresAt
}

func (s *DynamoOTPStore) key(key string) map[string]dynamo.AttributeValue {
	return map[string]dynamo.AttributeValue{
		"otp_key": &dynamo.AttributeValueMemberS{Value: key},
	}
}

func numberValue(n int64) *dynamo.AttributeValueMemberN {
	return &dynamo.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func startDynamoSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "dynamodb"),
		attribute.String("db.operation", op),
	)
	return ctx, span
}
