// Package config provides configuration management for the Przelewy24
// payment service. Configuration can be loaded from YAML files and
// overridden by environment variables.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

// PaymentIDPlaceholder is substituted with the payment id when resolving
// the return and status URL templates.
const PaymentIDPlaceholder = "{payment_id}"

// Config holds all configuration for the Przelewy24 payment service.
// Values can be set via YAML configuration file or environment variables.
// Environment variables take precedence over YAML values.
type Config struct {
	IsDebug    bool  `yaml:"is_debug" env:"DEBUG" env-default:"false"`
	LogRecords int64 `yaml:"log_records" env:"LOG_RECORDS" env-default:"0"`
	Listen     struct {
		BindIP   string `yaml:"bind_ip" env:"BIND_IP" env-default:"0.0.0.0"`
		Port     string `yaml:"port" env:"PORT" env-default:"5200"`
		TLS      bool   `yaml:"tls_enabled" env:"TLS_ENABLED" env-default:"false"`
		CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE" env-default:""`
		KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE" env-default:""`
	} `yaml:"listen"`
	Mongo struct {
		Enabled  bool   `yaml:"enabled" env:"MONGO_ENABLED" env-default:"false"`
		Host     string `yaml:"host" env:"MONGO_HOST" env-default:"127.0.0.1"`
		Port     string `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string `yaml:"user" env:"MONGO_USER" env-default:"admin"`
		Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:"pass"`
		Database string `yaml:"database" env:"MONGO_DATABASE" env-default:""`
	} `yaml:"mongo"`
	Merchant struct {
		MerchantID      int    `yaml:"merchant_id" env:"P24_MERCHANT_ID" env-default:"0"`
		PosID           int    `yaml:"pos_id" env:"P24_POS_ID" env-default:"0"`
		ApiKey          string `yaml:"api_key" env:"P24_API_KEY" env-default:""`
		CrcKey          string `yaml:"crc_key" env:"P24_CRC_KEY" env-default:""`
		Sandbox         bool   `yaml:"sandbox" env:"P24_SANDBOX" env-default:"true"`
		URLReturn       string `yaml:"url_return" env:"P24_URL_RETURN" env-default:""`
		URLStatus       string `yaml:"url_status" env:"P24_URL_STATUS" env-default:""`
		RefundURLStatus string `yaml:"refund_url_status" env:"P24_REFUND_URL_STATUS" env-default:""`
	} `yaml:"merchant"`
}

var instance *Config
var once sync.Once

// GetConfig loads configuration from the specified YAML file path.
// Configuration values can be overridden by environment variables.
// This function uses a singleton pattern and only loads the config once.
//
// Missing merchant credentials are rejected here rather than on first use;
// a pos id of zero falls back to the merchant id.
func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		instance = &Config{}
		if err = cleanenv.ReadConfig(path, instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			err = fmt.Errorf("load config: %w; %s", err, desc)
			instance = nil
			return
		}
		if err = instance.Validate(); err != nil {
			instance = nil
		}
	})
	return instance, err
}

// Validate checks the merchant section and applies the pos id default.
func (c *Config) Validate() error {
	m := &c.Merchant
	if m.MerchantID == 0 {
		return fmt.Errorf("config: merchant_id is required")
	}
	if m.ApiKey == "" {
		return fmt.Errorf("config: api_key is required")
	}
	if m.CrcKey == "" {
		return fmt.Errorf("config: crc_key is required")
	}
	if m.PosID == 0 {
		m.PosID = m.MerchantID
	}
	return nil
}

// ResolveURL substitutes the payment id into a URL template. An empty
// template resolves to an empty URL.
func ResolveURL(template string, paymentID string) string {
	return strings.ReplaceAll(template, PaymentIDPlaceholder, paymentID)
}
