package constants

// Default server configuration values
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxRequestBodyBytes   = 1 << 20
)

// Default relay values applied to tenants that leave them unset
const (
	DefaultTenantTimeoutSec     = 10
	DefaultMaxItems             = 10
	DefaultReconcileSchedule    = "@every 1m"
	DefaultSecondHopStripPrefix = "223"
	DefaultTenantsPollInterval  = 5 // seconds
	DefaultLogLevel             = "info"
)

// Default retry values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBusyTimeoutMs = 5000
)

// Synthetic connectivity test payload values
const (
	TestPayloadBattery         = "100"
	TestPayloadPower           = "2"
	TestPayloadSendLimit       = "10000"
	TestPayloadSettingsVersion = "0"
	TestPayloadVersion         = "30"
	TestPayloadPhoneNumber     = "unknown"
)

// Validation limits
const (
	MaxSlugLength        = 30
	MaxTenantNameLength  = 100
	MinPhoneNumberLength = 3
	MaxPhoneNumberLength = 20
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)

// Encryption settings
const (
	EncryptionSalt       = "fondarelay-at-rest-v1"
	EncryptionLookupSalt = "fondarelay-lookup-v1"
)
