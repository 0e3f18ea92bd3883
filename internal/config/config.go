package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vipul43/analytics-bridge/internal/zoho"
)

type Config struct {
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRefreshToken string
	ZohoOrgID        string
	ZohoAccountsURL  string
	ZohoAnalyticsURL string

	PollInterval  int // seconds
	MaxPolls      int // 0 means unbounded
	ExportTimeout int // seconds, 0 means none
	RateLimit     float64
	RateBurst     int
	HTTPTimeout   int // seconds

	Port            string
	ShutdownTimeout int // seconds
	LogLevel        string
	CORSOrigins     []string

	// DatabaseURL enables run history when set
	DatabaseURL string

	// Views holds the workspace/view identifiers by lowercased view name
	Views map[string]zoho.ViewIDs
}

var defaults = map[string]any{
	"zoho_org_id":        "67615980",
	"zoho_accounts_url":  "https://accounts.zoho.com",
	"zoho_analytics_url": "https://analyticsapi.zoho.com/restapi/v2",
	"poll_interval":      3,
	"max_polls":          200,
	"export_timeout":     600,
	"rate_limit":         5.0,
	"rate_burst":         5,
	"http_timeout":       60,
	"port":               "3000",
	"shutdown_timeout":   30,
	"log_level":          "info",
	"cors_origins":       "*",
}

// Load reads configuration from the environment (.env included) and an optional config.yaml
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ZohoClientID:     v.GetString("zoho_client_id"),
		ZohoClientSecret: v.GetString("zoho_client_secret"),
		ZohoRefreshToken: v.GetString("zoho_refresh_token"),
		ZohoOrgID:        v.GetString("zoho_org_id"),
		ZohoAccountsURL:  v.GetString("zoho_accounts_url"),
		ZohoAnalyticsURL: v.GetString("zoho_analytics_url"),
		PollInterval:     v.GetInt("poll_interval"),
		MaxPolls:         v.GetInt("max_polls"),
		ExportTimeout:    v.GetInt("export_timeout"),
		RateLimit:        v.GetFloat64("rate_limit"),
		RateBurst:        v.GetInt("rate_burst"),
		HTTPTimeout:      v.GetInt("http_timeout"),
		Port:             v.GetString("port"),
		ShutdownTimeout:  v.GetInt("shutdown_timeout"),
		LogLevel:         v.GetString("log_level"),
		CORSOrigins:      splitList(v.GetString("cors_origins")),
		DatabaseURL:      v.GetString("database_url"),
	}

	views, err := loadViews(v)
	if err != nil {
		return nil, err
	}
	cfg.Views = views

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"ZOHO_CLIENT_ID", c.ZohoClientID},
		{"ZOHO_CLIENT_SECRET", c.ZohoClientSecret},
		{"ZOHO_REFRESH_TOKEN", c.ZohoRefreshToken},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	for _, view := range zoho.Views() {
		ids := c.Views[viewKey(view)]
		if ids.WorkspaceID == "" {
			return fmt.Errorf("%s is required", viewEnv(view, "workspace_id"))
		}
		if ids.ViewID == "" {
			return fmt.Errorf("%s is required", viewEnv(view, "view_id"))
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %d", c.PollInterval)
	}
	if c.MaxPolls < 0 {
		return fmt.Errorf("MAX_POLLS must not be negative, got %d", c.MaxPolls)
	}
	if c.ExportTimeout < 0 {
		return fmt.Errorf("EXPORT_TIMEOUT must not be negative, got %d", c.ExportTimeout)
	}
	return nil
}

// loadViews reads views.<name>.workspace_id and views.<name>.view_id, each overridable by
// ZOHO_VIEW_<NAME>_WORKSPACE_ID and ZOHO_VIEW_<NAME>_VIEW_ID. Names the file carries that are
// not known views are kept so the registry rejects them.
func loadViews(v *viper.Viper) (map[string]zoho.ViewIDs, error) {
	views := make(map[string]zoho.ViewIDs)
	if err := v.UnmarshalKey("views", &views); err != nil {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}

	for _, view := range zoho.Views() {
		key := viewKey(view)
		for _, field := range []string{"workspace_id", "view_id"} {
			if err := v.BindEnv("views."+key+"."+field, viewEnv(view, field)); err != nil {
				return nil, fmt.Errorf("failed to bind %s: %w", viewEnv(view, field), err)
			}
		}
		views[key] = zoho.ViewIDs{
			WorkspaceID: v.GetString("views." + key + ".workspace_id"),
			ViewID:      v.GetString("views." + key + ".view_id"),
		}
	}
	return views, nil
}

func viewKey(view zoho.View) string {
	return strings.ToLower(view.String())
}

func viewEnv(view zoho.View, field string) string {
	return "ZOHO_VIEW_" + strings.ToUpper(view.String()+"_"+field)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
