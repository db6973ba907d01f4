package app

import (
	"fmt"
	"strings"
	"time"

	"medremind/internal/channel"
	"medremind/internal/config"
	"medremind/internal/httpapi"
	"medremind/internal/model"
	"medremind/internal/processor"
	"medremind/internal/store"
	"medremind/internal/tokens"
	logx "medremind/pkg/logx"
)

func mapLogxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (store.Config, error) {
	if cfg == nil || cfg.Storage == nil {
		return store.Config{}, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none", "memory":
		return store.Config{Driver: "memory"}, nil
	case "sqlite", "sqlite3":
		if strings.TrimSpace(sc.Path) == "" {
			return store.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return store.Config{}, err
		}
		return store.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	default:
		return store.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapRedisConfig(cfg *config.Config) (tokens.RedisConfig, bool, error) {
	if cfg == nil || cfg.Redis == nil || !cfg.Redis.Enabled {
		return tokens.RedisConfig{}, false, nil
	}
	rc := cfg.Redis
	if strings.TrimSpace(rc.Addr) == "" {
		return tokens.RedisConfig{}, false, fmt.Errorf("redis.addr is required when redis.enabled=true")
	}
	return tokens.RedisConfig{
		Addr:      strings.TrimSpace(rc.Addr),
		Password:  rc.Password,
		DB:        rc.DB,
		KeyPrefix: strings.TrimSpace(rc.KeyPrefix),
	}, true, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 15*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, time.Minute)
	if err != nil {
		return httpapi.Config{}, err
	}
	return httpapi.Config{
		Addr:         strings.TrimSpace(hc.Addr),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func mapProcessorConfig(cfg *config.Config) (processor.Config, error) {
	pc := cfg.Processor
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return processor.Config{}, fmt.Errorf("processor.timezone: invalid %q: %w", tz, err)
		}
	}
	missed, err := config.ParseDurationField("processor.missed_dose_window", pc.MissedDoseWindow)
	if err != nil {
		return processor.Config{}, err
	}
	escalation, err := config.ParseDurationField("processor.escalation_window", pc.EscalationWindow)
	if err != nil {
		return processor.Config{}, err
	}
	if pc.Retry.MaxAttempts < 0 {
		return processor.Config{}, fmt.Errorf("processor.retry.max_attempts must be >= 0")
	}
	base, err := config.ParseDurationField("processor.retry.base", pc.Retry.Base)
	if err != nil {
		return processor.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("processor.retry.max_delay", pc.Retry.MaxDelay)
	if err != nil {
		return processor.Config{}, err
	}
	return processor.Config{
		Timezone:         strings.TrimSpace(pc.Timezone),
		MissedDoseWindow: missed,
		EscalationWindow: escalation,
		Retry: processor.Retry{
			MaxAttempts: pc.Retry.MaxAttempts,
			Base:        base,
			MaxDelay:    maxDelay,
		},
	}, nil
}

// channelConfigs is the validated, parsed form of config.ChannelsConfig.
// A nil section means the channel is disabled.
type channelConfigs struct {
	ratePerSec int
	push       *channel.PushConfig
	email      *channel.EmailConfig
	sms        *channel.SMSConfig
}

func mapChannelConfigs(cfg *config.Config) (channelConfigs, error) {
	cc := cfg.Channels
	out := channelConfigs{ratePerSec: cc.RatePerSec}
	if cc.RatePerSec < 0 {
		return channelConfigs{}, fmt.Errorf("channels.rate_per_sec must be >= 0")
	}

	if cc.Push.Enabled {
		if strings.TrimSpace(cc.Push.ServerKey) == "" {
			return channelConfigs{}, fmt.Errorf("channels.push.server_key is required when channels.push.enabled=true")
		}
		timeout, err := config.ParseDurationField("channels.push.timeout", cc.Push.Timeout)
		if err != nil {
			return channelConfigs{}, err
		}
		out.push = &channel.PushConfig{
			Endpoint:  strings.TrimSpace(cc.Push.Endpoint),
			ServerKey: cc.Push.ServerKey,
			Timeout:   timeout,
		}
	}

	if cc.Email.Enabled {
		if strings.TrimSpace(cc.Email.Host) == "" {
			return channelConfigs{}, fmt.Errorf("channels.email.host is required when channels.email.enabled=true")
		}
		if strings.TrimSpace(cc.Email.From) == "" {
			return channelConfigs{}, fmt.Errorf("channels.email.from is required when channels.email.enabled=true")
		}
		out.email = &channel.EmailConfig{
			Host:     strings.TrimSpace(cc.Email.Host),
			Port:     cc.Email.Port,
			Username: cc.Email.Username,
			Password: cc.Email.Password,
			From:     strings.TrimSpace(cc.Email.From),
		}
	}

	if cc.SMS.Enabled {
		if strings.TrimSpace(cc.SMS.AccountSID) == "" || strings.TrimSpace(cc.SMS.AuthToken) == "" {
			return channelConfigs{}, fmt.Errorf("channels.sms.account_sid and channels.sms.auth_token are required when channels.sms.enabled=true")
		}
		if strings.TrimSpace(cc.SMS.From) == "" {
			return channelConfigs{}, fmt.Errorf("channels.sms.from is required when channels.sms.enabled=true")
		}
		out.sms = &channel.SMSConfig{
			AccountSID: strings.TrimSpace(cc.SMS.AccountSID),
			AuthToken:  cc.SMS.AuthToken,
			From:       strings.TrimSpace(cc.SMS.From),
		}
	}

	return out, nil
}

func buildDispatcher(ccfg channelConfigs, registry tokens.Registry, log logx.Logger) (*channel.Dispatcher, error) {
	// Voice and buzzer are accepted in settings but have no transport yet.
	senders := []channel.Sender{
		channel.NewInApp(),
		channel.NewNotImplemented(model.ChannelVoice),
		channel.NewNotImplemented(model.ChannelBuzzer),
	}

	if ccfg.push != nil {
		s, err := channel.NewPush(*ccfg.push, registry, log.With(logx.String("channel", "push")))
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}
	if ccfg.email != nil {
		s, err := channel.NewEmail(*ccfg.email)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}
	if ccfg.sms != nil {
		s, err := channel.NewSMS(*ccfg.sms)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}

	return channel.NewDispatcher(log, ccfg.ratePerSec, senders...), nil
}
