package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"server.port": "PORT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"chain.rpc_url":            "CHAIN_RPC_URL",
	"chain.chain_id":           "CHAIN_ID",
	"chain.native_symbol":      "CHAIN_NATIVE_SYMBOL",
	"chain.funder_private_key": "FUNDER_PRIVATE_KEY",
	"chain.receipt_timeout":    "CHAIN_RECEIPT_TIMEOUT",

	"hsm.master_key": "HSM_MASTER_KEY",
	"hsm.salt":       "HSM_SALT",

	"jwt.secret_key":   "JWT_SECRET_KEY",
	"jwt.expiry_hours": "JWT_EXPIRY_HOURS",

	"operator.id":            "OPERATOR_ID",
	"operator.password_hash": "OPERATOR_PASSWORD_HASH",

	"argon2.time":        "ARGON2_TIME",
	"argon2.memory":      "ARGON2_MEMORY",
	"argon2.threads":     "ARGON2_THREADS",
	"argon2.key_length":  "ARGON2_KEY_LENGTH",
	"argon2.salt_length": "ARGON2_SALT_LENGTH",

	"twilio.account_sid":   "TWILIO_ACCOUNT_SID",
	"twilio.auth_token":    "TWILIO_AUTH_TOKEN",
	"twilio.sms_from":      "TWILIO_SMS_FROM",
	"twilio.whatsapp_from": "TWILIO_WHATSAPP_FROM",
	"twilio.webhook_url":   "TWILIO_WEBHOOK_URL",
}

// ChainConfig points the wallet at a single EVM network
type ChainConfig struct {
	RPCURL           string
	ChainID          int64
	NativeSymbol     string
	FunderPrivateKey string
	ReceiptTimeout   time.Duration
}

// TwilioConfig holds the outbound messaging credentials
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	SMSFrom      string
	WhatsAppFrom string
	WebhookURL   string
}

// Load reads .env (when present) and binds environment variables
func Load(file string) {
	viper.SetConfigFile(file)
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("chain.rpc_url", "https://testnet.hashio.io/api")
	viper.SetDefault("chain.chain_id", 296)
	viper.SetDefault("chain.native_symbol", "HBAR")
	viper.SetDefault("chain.receipt_timeout", 30*time.Second)
	viper.SetDefault("jwt.expiry_hours", 24)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}

func LoadChainConfig() *ChainConfig {
	return &ChainConfig{
		RPCURL:           viper.GetString("chain.rpc_url"),
		ChainID:          viper.GetInt64("chain.chain_id"),
		NativeSymbol:     viper.GetString("chain.native_symbol"),
		FunderPrivateKey: viper.GetString("chain.funder_private_key"),
		ReceiptTimeout:   viper.GetDuration("chain.receipt_timeout"),
	}
}

func LoadTwilioConfig() *TwilioConfig {
	return &TwilioConfig{
		AccountSID:   viper.GetString("twilio.account_sid"),
		AuthToken:    viper.GetString("twilio.auth_token"),
		SMSFrom:      viper.GetString("twilio.sms_from"),
		WhatsAppFrom: viper.GetString("twilio.whatsapp_from"),
		WebhookURL:   viper.GetString("twilio.webhook_url"),
	}
}
