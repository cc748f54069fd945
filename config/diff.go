package config

import (
	"maps"
	"slices"
)

// Diff 比较两份配置。logLevel 表示日志级别是否变化（可热更新）；
// restart 列出其余变化的 yaml key，这些需要重启才能生效。
func Diff(old, cur AppConfig) (logLevel bool, restart []string) {
	logLevel = old.Log.Level != cur.Log.Level
	check := func(key string, changed bool) {
		if changed {
			restart = append(restart, key)
		}
	}
	check("symbols", !slices.Equal(old.Symbols, cur.Symbols))
	check("exchanges", !slices.Equal(old.Exchanges, cur.Exchanges))
	check("testnet", old.Testnet != cur.Testnet)
	check("endpoints", !maps.Equal(old.Endpoints, cur.Endpoints))
	check("sink", old.Sink != cur.Sink)
	check("engine.healthInterval", old.Engine.HealthInterval != cur.Engine.HealthInterval)
	check("engine.reconnectInterval", old.Engine.ReconnectInterval != cur.Engine.ReconnectInterval)
	check("engine.queueSize", old.Engine.QueueSize != cur.Engine.QueueSize)
	check("engine.klineIntervals", !slices.Equal(old.Engine.KlineIntervals, cur.Engine.KlineIntervals))
	check("log.outputs", !slices.Equal(old.Log.Outputs, cur.Log.Outputs))
	check("log.format", old.Log.Format != cur.Log.Format)
	check("log.outputFile", old.Log.OutputFile != cur.Log.OutputFile)
	check("log.errorFile", old.Log.ErrorFile != cur.Log.ErrorFile)
	check("metrics", old.Metrics != cur.Metrics)
	check("alert", old.Alert != cur.Alert)
	return logLevel, restart
}
