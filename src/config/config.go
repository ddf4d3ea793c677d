package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SourceConfig describes one inbound report feed and how its CSV columns map
// onto the canonical record.
type SourceConfig struct {
	Name        string
	SearchQuery string
	AmountField string
	IDField     string
	DateField   string
	SkipRows    int // only honoured by the attachment-delivered dialect
}

// FieldMapping names the downstream properties (or columns) a record is written to.
type FieldMapping struct {
	Source    string
	Amount    string
	OrderID   string
	OrderDate string
	Processed string
}

type StoreConfig struct {
	Provider string // notion | sqlite | postgres
	Fields   FieldMapping

	// StrictOrderIDs skips records whose id is not a plain integer instead of
	// querying and writing them with the 0 sentinel.
	StrictOrderIDs bool

	NotionAPIKey     string
	NotionDatabaseID string
	NotionBaseURL    string
	NotionRatePerSec float64
	DatabasePath     string
	DatabaseURL      string
	Table            string
}

type MailboxConfig struct {
	Provider string // gmail | imap

	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	GmailAccessToken  string

	IMAPServer         string
	IMAPPort           int
	IMAPUsername       string
	IMAPPassword       string
	IMAPMailbox        string
	IMAPArchiveMailbox string
	IMAPUseTLS         bool
}

type AlertConfig struct {
	Recipient string
	Provider  string // mailbox | mailgun | smtp | mock

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	SenderEmail string
	SenderName  string
}

type AppConfig struct {
	LinkSource       SourceConfig
	AttachmentSource SourceConfig
	Store            StoreConfig
	Mailbox          MailboxConfig
	Alert            AlertConfig

	HTTPTimeout        time.Duration
	StorageDomainToken string
	ArchiveProcessed   bool
	QuietMode          bool
	LogLevel           string
}

var Cfg *AppConfig

// quiet gates the informational lines below. Invalid-value warnings are
// always printed.
var quiet = true

func quietFromEnv() bool {
	if v, ok := os.LookupEnv("QUIET_MODE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return true
}

func infof(format string, args ...any) {
	if !quiet {
		log.Printf(format, args...)
	}
}

// LoadConfig reads .env (if present) and the process environment. A returned
// error is a setup failure and should abort the run.
func LoadConfig() (*AppConfig, error) {
	errEnv := godotenv.Load()
	quiet = quietFromEnv()
	if errEnv != nil {
		infof("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults.")
	} else {
		infof(".env file loaded successfully.")
	}

	cfg := &AppConfig{
		LinkSource:       linkSourceFromEnv(),
		AttachmentSource: attachmentSourceFromEnv(),
		Store: StoreConfig{
			Provider: strings.ToLower(getEnv("STORE_PROVIDER", "notion")),
			Fields: FieldMapping{
				Source:    getEnv("NOTION_SOURCE_PROPERTY", "Source"),
				Amount:    getEnv("NOTION_AMOUNT_PROPERTY", "Order Amount"),
				OrderID:   getEnv("NOTION_ID_PROPERTY", "Order ID"),
				OrderDate: getEnv("NOTION_DATE_PROPERTY", "Order Date"),
				Processed: getEnv("NOTION_CHECKBOX_PROPERTY", "Sum-er"),
			},
			StrictOrderIDs:   getEnvAsBool("STRICT_ORDER_IDS", false),
			NotionAPIKey:     getSecret("NOTION_API_KEY"),
			NotionDatabaseID: getEnv("NOTION_DATABASE_ID", ""),
			NotionBaseURL:    getEnv("NOTION_API_BASE_URL", "https://api.notion.com/v1"),
			NotionRatePerSec: getEnvAsFloat("NOTION_RATE_LIMIT_PER_SECOND", 3),
			DatabasePath:     getEnv("DATABASE_PATH", "./reportsync.db"),
			DatabaseURL:      getSecret("DATABASE_URL"),
			Table:            getEnv("STORE_TABLE", "orders"),
		},
		Mailbox: MailboxConfig{
			Provider:           strings.ToLower(getEnv("MAILBOX_PROVIDER", "gmail")),
			GmailClientID:      getEnv("GMAIL_CLIENT_ID", ""),
			GmailClientSecret:  getSecret("GMAIL_CLIENT_SECRET"),
			GmailRefreshToken:  getSecret("GMAIL_REFRESH_TOKEN"),
			GmailAccessToken:   getSecret("GMAIL_ACCESS_TOKEN"),
			IMAPServer:         getEnv("IMAP_SERVER", ""),
			IMAPPort:           getEnvAsInt("IMAP_PORT", 993),
			IMAPUsername:       getEnv("IMAP_USERNAME", ""),
			IMAPPassword:       getSecret("IMAP_PASSWORD"),
			IMAPMailbox:        getEnv("IMAP_MAILBOX", "INBOX"),
			IMAPArchiveMailbox: getEnv("IMAP_ARCHIVE_MAILBOX", "Archive"),
			IMAPUseTLS:         getEnvAsBool("IMAP_USE_TLS", true),
		},
		Alert: AlertConfig{
			Recipient:            getEnv("ALERT_EMAIL", ""),
			Provider:             strings.ToLower(getEnv("ALERT_PROVIDER", "mailbox")),
			MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
			MailgunPrivateAPIKey: getSecret("MAILGUN_PRIVATE_API_KEY"),
			SMTPServer:           getEnv("SMTP_SERVER", ""),
			SMTPPort:             getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:             getEnv("SMTP_USER", ""),
			SMTPPassword:         getSecret("SMTP_PASSWORD"),
			SenderEmail:          getEnv("SENDER_EMAIL", ""),
			SenderName:           getEnv("SENDER_NAME", "Report Sync"),
		},
		HTTPTimeout:        getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		StorageDomainToken: getEnv("STORAGE_DOMAIN_TOKEN", "s3.amazonaws.com"),
		ArchiveProcessed:   getEnvAsBool("ARCHIVE_PROCESSED", true),
		QuietMode:          getEnvAsBool("QUIET_MODE", true),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Cfg = cfg
	infof("Configuration loaded: StoreProvider=%s, MailboxProvider=%s, AlertProvider=%s, QuietMode=%t",
		cfg.Store.Provider, cfg.Mailbox.Provider, cfg.Alert.Provider, cfg.QuietMode)
	return cfg, nil
}

// LoadSourceConfigs reads only the two report source settings. It needs no
// credentials and is what the offline parse command uses.
func LoadSourceConfigs() (link, attachment SourceConfig) {
	_ = godotenv.Load()
	quiet = quietFromEnv()
	return linkSourceFromEnv(), attachmentSourceFromEnv()
}

func linkSourceFromEnv() SourceConfig {
	return SourceConfig{
		Name:        getEnv("CSV1_SOURCE_NAME", "Source1"),
		SearchQuery: getEnv("EMAIL1_SEARCH_QUERY", ""),
		AmountField: getEnv("CSV1_AMOUNT_FIELD", ""),
		IDField:     getEnv("CSV1_ID_FIELD", ""),
		DateField:   getEnv("CSV1_DATE_FIELD", ""),
	}
}

func attachmentSourceFromEnv() SourceConfig {
	return SourceConfig{
		Name:        getEnv("CSV2_SOURCE_NAME", "Source2"),
		SearchQuery: getEnv("EMAIL2_SEARCH_QUERY", ""),
		AmountField: getEnv("CSV2_AMOUNT_FIELD", ""),
		IDField:     getEnv("CSV2_ID_FIELD", ""),
		DateField:   getEnv("CSV2_DATE_FIELD", ""),
		SkipRows:    getEnvAsInt("CSV2_SKIP_ROWS", 0),
	}
}

// Validate reports every missing required setting at once.
func (c *AppConfig) Validate() error {
	var errs []error
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	require(c.LinkSource.SearchQuery, "EMAIL1_SEARCH_QUERY")
	require(c.LinkSource.AmountField, "CSV1_AMOUNT_FIELD")
	require(c.LinkSource.IDField, "CSV1_ID_FIELD")
	require(c.LinkSource.DateField, "CSV1_DATE_FIELD")
	require(c.AttachmentSource.SearchQuery, "EMAIL2_SEARCH_QUERY")
	require(c.AttachmentSource.AmountField, "CSV2_AMOUNT_FIELD")
	require(c.AttachmentSource.IDField, "CSV2_ID_FIELD")
	require(c.AttachmentSource.DateField, "CSV2_DATE_FIELD")
	if c.AttachmentSource.SkipRows < 0 {
		errs = append(errs, fmt.Errorf("CSV2_SKIP_ROWS must not be negative"))
	}

	switch c.Store.Provider {
	case "notion":
		require(c.Store.NotionAPIKey, "NOTION_API_KEY")
		require(c.Store.NotionDatabaseID, "NOTION_DATABASE_ID")
	case "sqlite":
		require(c.Store.DatabasePath, "DATABASE_PATH")
	case "postgres":
		require(c.Store.DatabaseURL, "DATABASE_URL")
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_PROVIDER %q", c.Store.Provider))
	}

	switch c.Mailbox.Provider {
	case "gmail":
		require(c.Mailbox.GmailClientID, "GMAIL_CLIENT_ID")
		require(c.Mailbox.GmailClientSecret, "GMAIL_CLIENT_SECRET")
		require(c.Mailbox.GmailRefreshToken, "GMAIL_REFRESH_TOKEN")
	case "imap":
		require(c.Mailbox.IMAPServer, "IMAP_SERVER")
		require(c.Mailbox.IMAPUsername, "IMAP_USERNAME")
		require(c.Mailbox.IMAPPassword, "IMAP_PASSWORD")
	default:
		errs = append(errs, fmt.Errorf("unknown MAILBOX_PROVIDER %q", c.Mailbox.Provider))
	}

	if c.Alert.Recipient != "" {
		switch c.Alert.Provider {
		case "mailbox":
			if c.Mailbox.Provider != "gmail" {
				errs = append(errs, fmt.Errorf("ALERT_PROVIDER=mailbox requires MAILBOX_PROVIDER=gmail"))
			}
		case "mailgun":
			require(c.Alert.MailgunDomain, "MAILGUN_DOMAIN")
			require(c.Alert.MailgunPrivateAPIKey, "MAILGUN_PRIVATE_API_KEY")
			require(c.Alert.SenderEmail, "SENDER_EMAIL")
		case "smtp":
			require(c.Alert.SMTPServer, "SMTP_SERVER")
			require(c.Alert.SenderEmail, "SENDER_EMAIL")
		case "mock":
		default:
			errs = append(errs, fmt.Errorf("unknown ALERT_PROVIDER %q", c.Alert.Provider))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if fallback != "" {
		infof("Environment variable %s not set, using default: %s", key, fallback)
	}
	return fallback
}

// getSecret never echoes the value or a default into the log.
func getSecret(key string) string {
	return os.Getenv(key)
}

func getEnvAsInt(key string, fallback int) int {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid number for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
