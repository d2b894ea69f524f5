// internal/workers/inquiry/ingest-inquiry-email/config.go
package ingestinquiryemail

import "time"

type Config struct {
	Timeout        time.Duration
	DefaultMailbox string

	// CompensateOnFailure switches Persist from the documented partial-commit
	// behavior to reverse-order compensating deletes.
	CompensateOnFailure bool

	AliasCacheTTL time.Duration
	SearchIndex   string

	NotifyEnabled bool
	NotifyFrom    string
	NotifyTo      string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        60 * time.Second,
		DefaultMailbox: "INBOX",
		AliasCacheTTL:  1 * time.Hour,
		SearchIndex:    "inquiries",
	}
}
