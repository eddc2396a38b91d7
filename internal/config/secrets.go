package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***",
// for logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhook)

	if cfg.Replay.Symbols != nil {
		out.Replay.Symbols = append([]string(nil), cfg.Replay.Symbols...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Import.Symbols != nil {
		out.Import.Symbols = append([]string(nil), cfg.Import.Symbols...)
	}
	if cfg.Replay.PointValues != nil {
		out.Replay.PointValues = make(map[string]float64, len(cfg.Replay.PointValues))
		for k, v := range cfg.Replay.PointValues {
			out.Replay.PointValues[k] = v
		}
	}
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
