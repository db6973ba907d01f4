package config

import (
	"sort"
	"strings"

	logx "medremind/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like
// passwords, server keys, or auth tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// HTTP
	if oldCfg.HTTP.Enabled != newCfg.HTTP.Enabled ||
		strings.TrimSpace(oldCfg.HTTP.Addr) != strings.TrimSpace(newCfg.HTTP.Addr) ||
		strings.TrimSpace(oldCfg.HTTP.ReadTimeout) != strings.TrimSpace(newCfg.HTTP.ReadTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.WriteTimeout) != strings.TrimSpace(newCfg.HTTP.WriteTimeout) ||
		strings.TrimSpace(oldCfg.HTTP.IdleTimeout) != strings.TrimSpace(newCfg.HTTP.IdleTimeout) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
		)
	}

	// Storage. Nil means in-memory.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Redis (never log password)
	oR := derefRedis(oldCfg.Redis)
	nR := derefRedis(newCfg.Redis)
	if oR.Enabled != nR.Enabled ||
		strings.TrimSpace(oR.Addr) != strings.TrimSpace(nR.Addr) ||
		oR.DB != nR.DB ||
		strings.TrimSpace(oR.KeyPrefix) != strings.TrimSpace(nR.KeyPrefix) ||
		(strings.TrimSpace(oR.Password) != "") != (strings.TrimSpace(nR.Password) != "") {
		changed = append(changed, "redis")
		attrs = append(attrs,
			logx.Bool("redis.enabled", nR.Enabled),
			logx.String("redis.addr", strings.TrimSpace(nR.Addr)),
			logx.Int("redis.db", nR.DB),
			logx.Bool("redis.password_set", strings.TrimSpace(nR.Password) != ""),
		)
	}

	// Processor
	if oldCfg.Processor.Enabled != newCfg.Processor.Enabled ||
		strings.TrimSpace(oldCfg.Processor.Timezone) != strings.TrimSpace(newCfg.Processor.Timezone) ||
		strings.TrimSpace(oldCfg.Processor.MissedDoseWindow) != strings.TrimSpace(newCfg.Processor.MissedDoseWindow) ||
		strings.TrimSpace(oldCfg.Processor.EscalationWindow) != strings.TrimSpace(newCfg.Processor.EscalationWindow) ||
		oldCfg.Processor.Retry != newCfg.Processor.Retry {
		changed = append(changed, "processor")
		attrs = append(attrs,
			logx.Bool("processor.enabled", newCfg.Processor.Enabled),
			logx.String("processor.timezone", strings.TrimSpace(newCfg.Processor.Timezone)),
			logx.String("processor.missed_dose_window", strings.TrimSpace(newCfg.Processor.MissedDoseWindow)),
			logx.String("processor.escalation_window", strings.TrimSpace(newCfg.Processor.EscalationWindow)),
			logx.Int("processor.retry_max_attempts", newCfg.Processor.Retry.MaxAttempts),
		)
	}

	// Channels (never log server key / credentials)
	oc := oldCfg.Channels
	nc := newCfg.Channels
	pushChanged := oc.Push.Enabled != nc.Push.Enabled ||
		strings.TrimSpace(oc.Push.Endpoint) != strings.TrimSpace(nc.Push.Endpoint) ||
		strings.TrimSpace(oc.Push.Timeout) != strings.TrimSpace(nc.Push.Timeout) ||
		(strings.TrimSpace(oc.Push.ServerKey) != "") != (strings.TrimSpace(nc.Push.ServerKey) != "")
	emailChanged := oc.Email.Enabled != nc.Email.Enabled ||
		strings.TrimSpace(oc.Email.Host) != strings.TrimSpace(nc.Email.Host) ||
		oc.Email.Port != nc.Email.Port ||
		strings.TrimSpace(oc.Email.Username) != strings.TrimSpace(nc.Email.Username) ||
		strings.TrimSpace(oc.Email.From) != strings.TrimSpace(nc.Email.From) ||
		(strings.TrimSpace(oc.Email.Password) != "") != (strings.TrimSpace(nc.Email.Password) != "")
	smsChanged := oc.SMS.Enabled != nc.SMS.Enabled ||
		strings.TrimSpace(oc.SMS.AccountSID) != strings.TrimSpace(nc.SMS.AccountSID) ||
		strings.TrimSpace(oc.SMS.From) != strings.TrimSpace(nc.SMS.From) ||
		(strings.TrimSpace(oc.SMS.AuthToken) != "") != (strings.TrimSpace(nc.SMS.AuthToken) != "")
	if oc.RatePerSec != nc.RatePerSec || pushChanged || emailChanged || smsChanged {
		changed = append(changed, "channels")
		attrs = append(attrs,
			logx.Int("channels.rate_per_sec", nc.RatePerSec),
			logx.Bool("channels.push_enabled", nc.Push.Enabled),
			logx.Bool("channels.email_enabled", nc.Email.Enabled),
			logx.Bool("channels.sms_enabled", nc.SMS.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefRedis(r *RedisConfig) RedisConfig {
	if r == nil {
		return RedisConfig{}
	}
	return *r
}
