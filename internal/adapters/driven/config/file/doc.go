// Package file loads civicwatch configuration from the local filesystem.
//
// Files:
//   - config.toml: application settings, sources and the tagging watchlist
//   - rules.yaml: alert rules, loaded through RulesFile as a driven.RuleSource
package file
