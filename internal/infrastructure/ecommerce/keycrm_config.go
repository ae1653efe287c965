package ecommerce

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// KeyCRMConfig holds configuration for the KeyCRM open API
type KeyCRMConfig struct {
	// BaseURL is the API root, without trailing slash
	BaseURL string
	// PerPage is the page size requested from the stocks endpoint
	PerPage int
	// StatusFilter restricts offers by status (filter[status])
	StatusFilter string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// MaxResponseBytes caps the size of one page body
	MaxResponseBytes int64
}

const (
	// KeyCRMProductionAPIURL is the production API endpoint
	KeyCRMProductionAPIURL = "https://openapi.keycrm.app/v1"

	keyCRMDefaultPerPage    = 50
	keyCRMDefaultStatus     = "active"
	keyCRMDefaultTimeout    = 30
	keyCRMStocksPath        = "/offers/stocks"
	keyCRMMaxResponseBytes  = 10 * 1024 * 1024
	keyCRMMaxPerPage        = 50
	keyCRMMinTimeoutSeconds = 1
	keyCRMMaxTimeoutSeconds = 300
)

// Errors for KeyCRM configuration
var (
	ErrKeyCRMConfigInvalidBaseURL = errors.New("keycrm: base URL must be an absolute http(s) URL")
	ErrKeyCRMConfigInvalidPerPage = errors.New("keycrm: perPage must be between 1 and 50")
	ErrKeyCRMConfigInvalidTimeout = errors.New("keycrm: timeout must be between 1 and 300 seconds")
)

// NewKeyCRMConfig creates a KeyCRM configuration with defaults
func NewKeyCRMConfig() *KeyCRMConfig {
	return &KeyCRMConfig{
		BaseURL:          KeyCRMProductionAPIURL,
		PerPage:          keyCRMDefaultPerPage,
		StatusFilter:     keyCRMDefaultStatus,
		TimeoutSeconds:   keyCRMDefaultTimeout,
		MaxResponseBytes: keyCRMMaxResponseBytes,
	}
}

// Validate validates the configuration and fills unset fields with defaults
func (c *KeyCRMConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = KeyCRMProductionAPIURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrKeyCRMConfigInvalidBaseURL
	}

	if c.PerPage == 0 {
		c.PerPage = keyCRMDefaultPerPage
	}
	if c.PerPage < 1 || c.PerPage > keyCRMMaxPerPage {
		return ErrKeyCRMConfigInvalidPerPage
	}

	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = keyCRMDefaultTimeout
	}
	if c.TimeoutSeconds < keyCRMMinTimeoutSeconds || c.TimeoutSeconds > keyCRMMaxTimeoutSeconds {
		return ErrKeyCRMConfigInvalidTimeout
	}

	if c.StatusFilter == "" {
		c.StatusFilter = keyCRMDefaultStatus
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = keyCRMMaxResponseBytes
	}
	return nil
}

// FirstPageURL returns the URL of the first stocks page
func (c *KeyCRMConfig) FirstPageURL() string {
	return fmt.Sprintf("%s%s?filter[status]=%s&page=1&perPage=%d",
		c.BaseURL, keyCRMStocksPath, url.QueryEscape(c.StatusFilter), c.PerPage)
}
