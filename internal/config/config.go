package config

import (
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	envPrefix               = "LEXDRAFT"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "file:lexdraft?mode=memory&cache=shared"
	defaultLogLevel         = "info"
	defaultAllowedOrigins   = "*"
	defaultUploadMaxBytes   = 100 * 1024 * 1024
	defaultPageSize         = "A4"
	defaultMarginMM         = 10
	defaultRasterScale      = 3
	defaultFontFamily       = "Calibri, sans-serif"
	defaultFontSize         = "14px"
	defaultExportTimeout    = 60
	defaultAssistantBaseURL = "https://generativelanguage.googleapis.com/"
	defaultAssistantVersion = "v1beta"
	defaultAssistantModel   = "gemini-1.5-flash-8b"
	defaultAssistantTimeout = 30
)

var errUnknownPageSize = errors.New("must be a known page size")

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string
	Uploads        UploadsConfig
	Export         ExportConfig
	Assistant      AssistantConfig
}

// UploadsConfig bounds upload intake.
type UploadsConfig struct {
	MaxBytes int64
}

// ExportConfig controls document rendering.
type ExportConfig struct {
	PageSize    string
	MarginMM    float64
	RasterScale float64
	FontFamily  string
	FontSize    string
	BrowserURL  string
	Timeout     time.Duration
}

// AssistantConfig selects the generative service.
type AssistantConfig struct {
	BaseURL    string
	APIVersion string
	Model      string
	APIKey     string
	Timeout    time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("uploads.max_bytes", defaultUploadMaxBytes)
	configViper.SetDefault("export.page_size", defaultPageSize)
	configViper.SetDefault("export.margin_mm", defaultMarginMM)
	configViper.SetDefault("export.raster_scale", defaultRasterScale)
	configViper.SetDefault("export.font_family", defaultFontFamily)
	configViper.SetDefault("export.font_size", defaultFontSize)
	configViper.SetDefault("export.browser_url", "")
	configViper.SetDefault("export.timeout_seconds", defaultExportTimeout)
	configViper.SetDefault("assistant.base_url", defaultAssistantBaseURL)
	configViper.SetDefault("assistant.api_version", defaultAssistantVersion)
	configViper.SetDefault("assistant.model", defaultAssistantModel)
	configViper.SetDefault("assistant.api_key", "")
	configViper.SetDefault("assistant.timeout_seconds", defaultAssistantTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		AllowedOrigins: splitOrigins(configViper.GetString("cors.allowed_origins")),
		Uploads: UploadsConfig{
			MaxBytes: configViper.GetInt64("uploads.max_bytes"),
		},
		Export: ExportConfig{
			PageSize:    strings.ToUpper(strings.TrimSpace(configViper.GetString("export.page_size"))),
			MarginMM:    configViper.GetFloat64("export.margin_mm"),
			RasterScale: configViper.GetFloat64("export.raster_scale"),
			FontFamily:  configViper.GetString("export.font_family"),
			FontSize:    configViper.GetString("export.font_size"),
			BrowserURL:  strings.TrimSpace(configViper.GetString("export.browser_url")),
			Timeout:     time.Duration(configViper.GetInt("export.timeout_seconds")) * time.Second,
		},
		Assistant: AssistantConfig{
			BaseURL:    strings.TrimSpace(configViper.GetString("assistant.base_url")),
			APIVersion: strings.Trim(strings.TrimSpace(configViper.GetString("assistant.api_version")), "/"),
			Model:      configViper.GetString("assistant.model"),
			APIKey:     strings.TrimSpace(configViper.GetString("assistant.api_key")),
			Timeout:    time.Duration(configViper.GetInt("assistant.timeout_seconds")) * time.Second,
		},
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// Validate checks every section of the configuration.
func (c *AppConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.HTTPAddress, validation.Required),
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.AllowedOrigins, validation.Required),
	); err != nil {
		return err
	}
	if err := c.Uploads.Validate(); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return err
	}
	return c.Assistant.Validate()
}

// Validate validates the upload configuration.
func (c *UploadsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Required, validation.By(knownPageSize)),
		validation.Field(&c.MarginMM, validation.Required, validation.Min(1.0), validation.Max(50.0)),
		validation.Field(&c.RasterScale, validation.Required, validation.Min(1.0), validation.Max(4.0)),
		validation.Field(&c.FontFamily, validation.Required),
		validation.Field(&c.FontSize, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.APIVersion, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

func knownPageSize(value interface{}) error {
	name, _ := value.(string)
	if !export.KnownPageSize(name) {
		return errUnknownPageSize
	}
	return nil
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
