package config

import "os"

const (
	DefaultTimeZone     = "UTC"
	DefaultCurrencyCode = "USD"

	// Resync Configuration Constants
	DefaultResyncSchedule = "*/10 * * * *" // Pick up flagged analyses every ten minutes
	ResyncBatchSize       = 10

	// Service ports (the gateway proxies by path prefix)
	AnalysisServicePort = 3143
	MasterServicePort   = 4143
	GatewayPort         = 8081

	// Audit log rotation defaults, overridable per service in services.yaml
	DefaultLogFolder        = "./logs"
	DefaultLogMaxFileMB     = 10
	DefaultLogRetentionDays = 30
)

// CurrencyCode is the instance currency. The value "none" disables currency
// display in the exporter.
func CurrencyCode() string {
	if v := os.Getenv("ISO_CURRENCY_CODE"); v != "" {
		return v
	}
	return DefaultCurrencyCode
}
