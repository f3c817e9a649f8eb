// Package bootstrap is the composition root: it turns a loaded Config into
// the messaging router, the OTP manager and the HTTP routes that serve them.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/aelexs/messaging-gateway/internal/awsconfig"
	"github.com/aelexs/messaging-gateway/internal/config"
	"github.com/aelexs/messaging-gateway/internal/domain"
	"github.com/aelexs/messaging-gateway/internal/dynamo"
	"github.com/aelexs/messaging-gateway/internal/messaging/adapter"
	"github.com/aelexs/messaging-gateway/internal/messaging/app"
	"github.com/aelexs/messaging-gateway/internal/messaging/port"
	redisclient "github.com/aelexs/messaging-gateway/internal/redis"
	"github.com/aelexs/messaging-gateway/internal/server"
)

// App holds the wired messaging services.
type App struct {
	Messaging *app.Messaging
	OTP       *app.OTPManager

	closers []func() error
}

// Options overrides collaborators for tests. Zero values select production
// implementations.
type Options struct {
	Clock domain.Clock
	// Redis replaces the client built from cfg.Redis.
	Redis redisclient.Cmdable
}

// New wires every collaborator named by cfg. Vendor gateways are built on
// first use, so missing credentials for an unused channel never fail startup.
// OTP store connectivity is checked eagerly.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}

	a := &App{}
	loader := &awsLoader{cfg: cfg}

	if cfg.Secrets.ID != "" {
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		if err := config.ApplySecrets(ctx, cfg, secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
			o.BaseEndpoint = awsconfig.BaseEndpoint(cfg.AWS.Endpoint)
		})); err != nil {
			return nil, err
		}
		logger.Info("vendor secrets applied", slog.String("secret_id", cfg.Secrets.ID))
	}

	smsFactory, err := smsGatewayFactory(ctx, cfg, loader, logger)
	if err != nil {
		return nil, err
	}

	a.Messaging = app.NewMessaging(app.MessagingConfig{
		Factories: map[string]app.GatewayFactory{
			string(domain.ChannelSMS):      smsFactory,
			string(domain.ChannelWhatsApp): whatsAppGatewayFactory(cfg, logger),
		},
		DefaultChannel: cfg.DefaultChannel,
		Logger:         logger,
	})

	store, err := a.otpStore(ctx, cfg, opts, clock)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.OTP = app.NewOTPManager(app.OTPManagerConfig{
		Resolver:             a.Messaging,
		Store:                store,
		DefaultChannel:       cfg.DefaultChannel,
		Length:               cfg.OTP.Length,
		Expiry:               cfg.OTP.Expiry(),
		MaxAttempts:          cfg.OTP.MaxAttempts,
		Message:              cfg.OTP.Message,
		KeyPrefix:            cfg.OTP.KeyPrefix,
		WhatsAppTemplateSID:  cfg.OTP.WhatsApp.TemplateSID,
		WhatsAppCodeVariable: cfg.OTP.WhatsApp.CodeVariable,
		Clock:                clock,
		Logger:               logger,
	})

	logger.Info("messaging wired",
		slog.String("default_channel", cfg.DefaultChannel),
		slog.String("sms_driver", cfg.SMSDriver),
		slog.String("otp_store", cfg.OTP.Store),
	)
	return a, nil
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Routes is a server.RouteFunc mounting the messaging API.
func Routes(ctx context.Context, cfg *config.Config, logger *slog.Logger, mux *http.ServeMux) (server.CleanupFunc, error) {
	a, err := New(ctx, cfg, logger, Options{})
	if err != nil {
		return nil, err
	}
	port.NewHandler(port.HandlerConfig{
		Messaging: a.Messaging,
		OTP:       a.OTP,
		Logger:    logger,
	}).Register(mux)
	return func(context.Context) error { return a.Close() }, nil
}

var _ server.RouteFunc = Routes

func smsGatewayFactory(ctx context.Context, cfg *config.Config, loader *awsLoader, logger *slog.Logger) (app.GatewayFactory, error) {
	countryCode := cfg.Phone.DefaultCountryCode
	switch cfg.SMSDriver {
	case config.DriverAfrikSMS:
		return func() (app.Gateway, error) {
			return adapter.NewAfrikSMSGateway(adapter.AfrikSMSConfig{
				ClientID:    cfg.AfrikSMS.ClientID,
				APIKey:      cfg.AfrikSMS.APIKey,
				SenderID:    cfg.AfrikSMS.SenderID,
				BaseURL:     cfg.AfrikSMS.BaseURL,
				Timeout:     cfg.AfrikSMS.Timeout,
				RetryTimes:  cfg.AfrikSMS.Retry.Times,
				RetrySleep:  cfg.AfrikSMS.Retry.Sleep,
				CountryCode: countryCode,
				Logger:      logger,
			})
		}, nil
	case config.DriverSNS:
		awsCfg, err := loader.load(ctx)
		if err != nil {
			return nil, err
		}
		client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
			o.BaseEndpoint = awsconfig.BaseEndpoint(cfg.AWS.Endpoint)
		})
		return func() (app.Gateway, error) {
			return adapter.NewSNSGateway(client, cfg.SNS.SenderID, countryCode, logger), nil
		}, nil
	case config.DriverLog:
		return func() (app.Gateway, error) {
			return adapter.NewLogGateway(countryCode, logger), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: sms_driver %q", domain.ErrInvalidInput, cfg.SMSDriver)
	}
}

func whatsAppGatewayFactory(cfg *config.Config, logger *slog.Logger) app.GatewayFactory {
	return func() (app.Gateway, error) {
		api, err := adapter.NewTwilioAPI(cfg.Twilio.SID, cfg.Twilio.AuthToken, cfg.Twilio.Timeout)
		if err != nil {
			return nil, err
		}
		return adapter.NewTwilioWhatsAppGateway(api, adapter.TwilioConfig{
			WhatsAppFrom: cfg.Twilio.WhatsAppFrom,
			CountryCode:  cfg.Phone.DefaultCountryCode,
			Logger:       logger,
		})
	}
}

func (a *App) otpStore(ctx context.Context, cfg *config.Config, opts Options, clock domain.Clock) (app.OTPStore, error) {
	switch cfg.OTP.Store {
	case config.StoreMemory:
		return adapter.NewMemoryOTPStore(clock), nil

	case config.StoreRedis:
		cmd := opts.Redis
		if cmd == nil {
			client := redisclient.NewClient(redisclient.Config{
				Addr:         cfg.Redis.Addr,
				Password:     cfg.Redis.Password.Expose(),
				DB:           cfg.Redis.DB,
				ReadTimeout:  cfg.Redis.Timeout,
				WriteTimeout: cfg.Redis.Timeout,
			})
			a.closers = append(a.closers, client.Close)
			cmd = client.RDB
		}
		timeout := cfg.Redis.Timeout
		if timeout <= 0 {
			timeout = domain.RedisTimeout
		}
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := cmd.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("otp store: redis ping: %w", err)
		}
		return adapter.NewRedisOTPStore(cmd), nil

	case config.StoreDynamoDB:
		endpoint := cfg.DynamoDB.Endpoint
		if endpoint == "" {
			endpoint = cfg.AWS.Endpoint
		}
		client, err := dynamo.NewClient(ctx, dynamo.Config{
			Endpoint: endpoint,
			Region:   cfg.AWS.Region,
			Timeout:  cfg.DynamoDB.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("otp store: %w", err)
		}
		return adapter.NewDynamoOTPStore(client.DB, cfg.DynamoDB.Table, clock), nil

	default:
		return nil, fmt.Errorf("%w: otp.store %q", domain.ErrInvalidInput, cfg.OTP.Store)
	}
}

// awsLoader resolves the shared AWS configuration once.
type awsLoader struct {
	cfg    *config.Config
	loaded bool
	awsCfg aws.Config
}

func (l *awsLoader) load(ctx context.Context) (aws.Config, error) {
	if l.loaded {
		return l.awsCfg, nil
	}
	awsCfg, err := awsconfig.Load(ctx, awsconfig.Config{
		Region:   l.cfg.AWS.Region,
		Endpoint: l.cfg.AWS.Endpoint,
		Timeout:  domain.DefaultVendorTimeout,
	})
	if err != nil {
		return aws.Config{}, err
	}
	l.awsCfg, l.loaded = awsCfg, true
	return awsCfg, nil
}
