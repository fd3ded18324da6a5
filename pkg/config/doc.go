// Package config loads meterd configuration from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	METER_HOST="0.0.0.0"
//	METER_PORT="8080"
//	METER_WRITE_TIMEOUT="90s"  # covers the slowest AI call
//
// Account store:
//
//	METER_DB_DRIVER="postgres"  # postgres, sqlite3
//	METER_DB_URL="postgres://localhost/meterd?sslmode=disable"
//
// Rate limiting:
//
//	METER_RATE_LIMIT_BACKEND="memory"  # memory, redis
//	METER_REDIS_URL="redis://localhost:6379/0"
//	METER_RATE_LIMIT_FILE="/etc/meterd/ratelimits.yaml"
//
// Billing providers (the unprefixed names are accepted as fallbacks):
//
//	METER_PADDLE_ENVIRONMENT="production"
//	METER_PADDLE_API_KEY / PADDLE_API_KEY
//	METER_PADDLE_WEBHOOK_SECRET / PADDLE_WEBHOOK_SECRET
//	METER_PADDLE_BUSINESS_PRICE_ID / PADDLE_BUSINESS_PRICE_ID
//	METER_LEMON_API_KEY / LEMONSQUEEZY_API_KEY
//	METER_LEMON_WEBHOOK_SECRET / LEMONSQUEEZY_WEBHOOK_SECRET
//	METER_LEMON_BUSINESS_PRODUCT_ID / LEMONSQUEEZY_BUSINESS_PRODUCT_ID
//
// Identity (optional):
//
//	METER_OIDC_ISSUER="https://clerk.example.com"
//	METER_OIDC_JWKS_URL="https://clerk.example.com/.well-known/jwks.json"
//
// Observability settings:
//
//	METER_LOG_LEVEL="info"  # debug, info, warn, error
//	METER_METRICS_ENABLED="true"
//	METER_OTEL_ENABLED="true"
//	METER_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
