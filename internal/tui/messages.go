package tui

import "unclutter/internal/model"

// Async message types for Bubble Tea commands.

type loadedMsg struct {
	result        model.AnalysisResult
	found         bool
	whitelist     []string
	syncIfMissing bool
	err           error
}

type syncCompleteMsg struct {
	result model.AnalysisResult
	err    error
}

type progressMsg model.Progress

type deleteResultMsg struct {
	email string
	count int
	err   error
}

type whitelistToggledMsg struct {
	email  string
	listed bool
	err    error
}

type actionResultMsg struct {
	action string
	err    error
}

type bodyFetchedMsg struct {
	body string
	err  error
}

type statusMsg string
