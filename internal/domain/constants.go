package domain

import "time"

// Compiled defaults. All of them can be overridden via configuration.
const (
	// Phone
	DefaultCountryCode = "228"

	// Channels
	DefaultChannel = ChannelSMS

	// SMS vendor
	DefaultSenderID      = "MyApp"
	DefaultAfrikSMSURL   = "https://api.afriksms.com/api/web/web_v1/outbounds"
	DefaultVendorTimeout = 30 * time.Second
	DefaultRetryTimes    = 3
	DefaultRetrySleep    = 100 * time.Millisecond

	// OTP
	DefaultOTPLength       = 6
	DefaultOTPExpiry       = 10 * time.Minute
	DefaultOTPMaxAttempts  = 3
	DefaultOTPPurpose      = "verification"
	DefaultOTPMessage      = "Your verification code is: {code}. Valid for {expiry} minutes."
	DefaultOTPCodeVariable = "1"
	MinOTPLength           = 4
	MaxOTPLength           = 10

	// Timeout contracts
	DynamoDBTimeout = 5 * time.Second
	RedisTimeout    = 2 * time.Second

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Shutdown phases. Their sum stays within GracefulShutdownTimeout.
const (
	ShutdownDrainDelay  = 2 * time.Second
	ShutdownHTTPTimeout = 10 * time.Second
	ShutdownOTELTimeout = 5 * time.Second
)
