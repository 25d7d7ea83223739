package config

import (
	"os"
	"strconv"
)

// Config carries process-level settings. Table and queue names come from the
// environment so the same binaries run against any stage.
type Config struct {
	HTTPPort string

	OrdersTable    string
	MerchantsTable string
	PoliciesTable  string
	ScheduleTable  string
	EventsTable    string

	ConfirmationQueueURL string
	RetryQueueURL        string
	AutomationQueueURL   string

	ChatVerifyToken string

	ConfirmationWorkers int
	RetryWorkers        int
	AutomationWorkers   int
}

func Load() *Config {
	return &Config{
		HTTPPort: getenv("HTTP_PORT", "8080"),

		OrdersTable:    getenv("ORDERS_TABLE", "orders"),
		MerchantsTable: getenv("MERCHANTS_TABLE", "merchants"),
		PoliciesTable:  getenv("POLICIES_TABLE", "policies"),
		ScheduleTable:  getenv("SCHEDULE_TABLE", "scheduled-jobs"),
		EventsTable:    getenv("EVENTS_TABLE", "event-log"),

		ConfirmationQueueURL: os.Getenv("CONFIRMATION_QUEUE_URL"),
		RetryQueueURL:        os.Getenv("RETRY_QUEUE_URL"),
		AutomationQueueURL:   os.Getenv("AUTOMATION_QUEUE_URL"),

		ChatVerifyToken: os.Getenv("CHAT_VERIFY_TOKEN"),

		ConfirmationWorkers: getint("CONFIRMATION_WORKERS", 5),
		RetryWorkers:        getint("RETRY_WORKERS", 3),
		AutomationWorkers:   getint("AUTOMATION_WORKERS", 2),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
