package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// secretsGetter is the subset of the Secrets Manager client used by
// ApplySecrets. *secretsmanager.Client satisfies it.
type secretsGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// vendorSecrets is the JSON document stored under secrets.id.
type vendorSecrets struct {
	AfrikSMSClientID string `json:"afriksms_client_id"`
	AfrikSMSAPIKey   string `json:"afriksms_api_key"`
	TwilioSID        string `json:"twilio_sid"`
	TwilioAuthToken  string `json:"twilio_auth_token"`
	RedisPassword    string `json:"redis_password"`
}

// ApplySecrets overlays vendor credentials from the Secrets Manager secret
// named by cfg.Secrets.ID. Empty fields in the secret leave the environment
// value in place. It is a no-op when no secret is configured.
func ApplySecrets(ctx context.Context, cfg *Config, client secretsGetter) error {
	if cfg.Secrets.ID == "" {
		return nil
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(cfg.Secrets.ID),
	})
	if err != nil {
		return fmt.Errorf("get secret %s: %w", cfg.Secrets.ID, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("get secret %s: %w: empty secret string", cfg.Secrets.ID, domain.ErrConfigRequired)
	}

	var s vendorSecrets
	if err := json.Unmarshal([]byte(*out.SecretString), &s); err != nil {
		return fmt.Errorf("decode secret %s: %w", cfg.Secrets.ID, err)
	}

	overlay(&cfg.AfrikSMS.ClientID, s.AfrikSMSClientID)
	overlaySecret(&cfg.AfrikSMS.APIKey, s.AfrikSMSAPIKey)
	overlay(&cfg.Twilio.SID, s.TwilioSID)
	overlaySecret(&cfg.Twilio.AuthToken, s.TwilioAuthToken)
	overlaySecret(&cfg.Redis.Password, s.RedisPassword)
	return nil
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlaySecret(dst *domain.SecretString, v string) {
	if v != "" {
		*dst = domain.SecretString(v)
	}
}
