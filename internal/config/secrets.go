package config

import "slices"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.URL)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Engine.StressLossRates = slices.Clone(cfg.Engine.StressLossRates)
	out.Engine.StressPrepayRates = slices.Clone(cfg.Engine.StressPrepayRates)
	out.Provisioning.NBFI = slices.Clone(cfg.Provisioning.NBFI)
	out.Provisioning.Lender = slices.Clone(cfg.Provisioning.Lender)
	if cfg.Engine.LossRates != nil {
		out.Engine.LossRates = make(map[string]float64, len(cfg.Engine.LossRates))
		for k, v := range cfg.Engine.LossRates {
			out.Engine.LossRates[k] = v
		}
	}

	return out
}

// redact replaces a non-empty string with the placeholder.
func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
