package bot

import (
	"strconv"
	"strings"

	"pomodoro/bot/internal/model"
)

// ParseDurations reads "/pomodoro <work> <break>" arguments. Each value that
// is missing, not a number or outside 1..model.MaxMinutes falls back to its default.
func ParseDurations(args []string, defaultWork, defaultBreak int) (workMinutes, breakMinutes int) {
	workMinutes, breakMinutes = defaultWork, defaultBreak
	if len(args) >= 1 {
		if parsed, ok := minutesArg(args[0]); ok {
			workMinutes = parsed
		}
	}
	if len(args) >= 2 {
		if parsed, ok := minutesArg(args[1]); ok {
			breakMinutes = parsed
		}
	}
	return workMinutes, breakMinutes
}

// parseCommand splits "/cmd@BotName a b" into "cmd" and its arguments.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:], name != ""
}

// parsePreset reads "preset_<work>_<break>".
func parsePreset(data string) (int, int, bool) {
	parts := strings.Split(strings.TrimPrefix(data, CallbackPresetPrefix), "_")
	if len(parts) != 2 {
		return 0, 0, false
	}
	workMinutes, ok := minutesArg(parts[0])
	if !ok {
		return 0, 0, false
	}
	breakMinutes, ok := minutesArg(parts[1])
	if !ok {
		return 0, 0, false
	}
	return workMinutes, breakMinutes, true
}

func minutesArg(raw string) (int, bool) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 || value > model.MaxMinutes {
		return 0, false
	}
	return value, true
}
