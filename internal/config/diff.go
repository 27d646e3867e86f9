package config

import (
	"reflect"
	"strings"

	"volramp/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// fields for logging. Tokens are never included, only whether they are set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) || oldCfg.RampDuration() != newCfg.RampDuration() {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Int("schedule.entries", len(newCfg.Schedule)),
			logx.Duration("schedule.ramp", newCfg.RampDuration()),
		)
	}
	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}
	if oldCfg.ContinueOnFailure() != newCfg.ContinueOnFailure() {
		changed = append(changed, "on_failure")
		attrs = append(attrs, logx.Bool("on_failure.continue", newCfg.ContinueOnFailure()))
	}
	if oldCfg.Actuator != newCfg.Actuator {
		// Takes effect on restart only.
		changed = append(changed, "actuator")
		attrs = append(attrs, logx.String("actuator.command", newCfg.ActuatorConfig().Command))
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if oldCfg.LogConfig() != newCfg.LogConfig() || (ol.Telegram.Token != "") != (nl.Telegram.Token != "") {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
			logx.Bool("logging.telegram_enabled", nl.Telegram.Enabled),
		)
	}
	if strings.TrimSpace(oldCfg.Report.Schedule) != strings.TrimSpace(newCfg.Report.Schedule) {
		changed = append(changed, "report")
		attrs = append(attrs, logx.String("report.schedule", strings.TrimSpace(newCfg.Report.Schedule)))
	}
	if oldCfg.Debug.Enabled != newCfg.Debug.Enabled ||
		strings.TrimSpace(oldCfg.Debug.Addr) != strings.TrimSpace(newCfg.Debug.Addr) ||
		(oldCfg.Debug.Token != "") != (newCfg.Debug.Token != "") {
		// Takes effect on restart only.
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.DebugAddr()),
			logx.Bool("debug.token_set", newCfg.Debug.Token != ""),
		)
	}
	return changed, attrs
}
