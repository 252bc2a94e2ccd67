package models

import (
	"strconv"
	"time"
)

// Compiled-in defaults for runtime settings. Stored rows override these;
// reads through the settings store always resolve against this layer.
const (
	DefaultModel                = "claude-sonnet-4-20250514"
	DefaultSyncIntervalMinutes  = 15
	DefaultClassificationPrompt = ""
	DefaultProcessAfterWindow   = 24 * time.Hour
)

// DefaultSettings returns the compiled-in settings layer. process_after
// defaults to a rolling cutoff so a fresh install doesn't classify the
// entire backlog of a large feed account.
func DefaultSettings() map[string]string {
	return map[string]string{
		SettingClassificationPrompt: DefaultClassificationPrompt,
		SettingModel:                DefaultModel,
		SettingSyncInterval:         strconv.Itoa(DefaultSyncIntervalMinutes),
		SettingProcessAfter:         time.Now().UTC().Add(-DefaultProcessAfterWindow).Format(time.RFC3339),
	}
}

// DefaultInterests seeds the taxonomy on first run. Users edit these
// through the interests CRUD surface.
func DefaultInterests() []Interest {
	return []Interest{
		{Key: "ai", Label: "AI", Description: "New AI models, research, techniques, and tools. How companies are applying AI. LLM developments."},
		{Key: "dev", Label: "Dev", Description: "Developer tools, programming languages, workflows, and engineering practices."},
		{Key: "startups", Label: "Startups", Description: "Startup funding, launches, founder stories, and market dynamics."},
		{Key: "apps", Label: "Apps", Description: "Productivity apps and tools that improve workflows. Not OS-level, not dev tools."},
	}
}
