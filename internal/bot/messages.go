package bot

import (
	"fmt"
	"strings"

	"pomodoro/bot/internal/config"
)

const (
	CallbackPresetPrefix = "preset_"
	CallbackCustom       = "custom"
	CallbackSkipBreak    = "skip_break"
	CallbackNextRoundYes = "next_round_yes"
	CallbackNextRoundNo  = "next_round_no"
)

const (
	helpText = "🍅 FocusTimerBot helps you work with the Pomodoro technique.\n\n" +
		"Commands:\n" +
		"/start - choose a timer\n" +
		"/pomodoro <work> <break> - start a timer, durations in minutes\n" +
		"/today - pomodoros completed today\n" +
		"/help - show this help\n\n" +
		"Examples:\n" +
		"/pomodoro 25 5 - 25 minutes of work, 5 minutes of break\n" +
		"/pomodoro 50 10 - 50 minutes of work, 10 minutes of break"

	customText = "Send the command in this format:\n" +
		"/pomodoro <work> <break>\n\n" +
		"For example: /pomodoro 30 7"

	nextRoundText   = "🚀 Another round?"
	cycleEndedText  = "Session finished. Rest and come back when you are ready!"
	startFailedText = "Could not start the timer, please try again later."
)

func greetingText(firstName string, defaultWork, defaultBreak int) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi, %s! 👋\n\n"+
			"I will help you focus with the Pomodoro technique.\n\n"+
			"Pick the work and break length in minutes below, or use "+
			"/pomodoro <work> <break> (for example /pomodoro %d %d).",
		name, defaultWork, defaultBreak,
	)
}

func workStartedText(workMinutes, breakMinutes int) string {
	return fmt.Sprintf("⏱ Time to work! %d min of focus, then a %d min break.", workMinutes, breakMinutes)
}

func breakStartedText(breakMinutes int) string {
	return fmt.Sprintf("✅ Time for a break! Back in %d min.", breakMinutes)
}

// TodayText grades the reply by how many pomodoros were completed.
func TodayText(count int) string {
	switch {
	case count <= 0:
		return "😔 You have no completed pomodoros today yet."
	case count == 1:
		return "🙂 You have 1 pomodoro today. Good start!"
	case count < 4:
		return fmt.Sprintf("🙂 You have %d pomodoros today. Good start!", count)
	case count < 8:
		return fmt.Sprintf("😊 You have %d pomodoros today. Great progress!", count)
	default:
		return fmt.Sprintf("🔥 You have %d pomodoros today. Wow, a super productive day!", count)
	}
}

func presetKeyboard(presets []config.Preset) Keyboard {
	row := make([]Button, 0, len(presets))
	for _, preset := range presets {
		row = append(row, Button{
			Label: fmt.Sprintf("%d / %d", preset.WorkMinutes, preset.BreakMinutes),
			Data:  fmt.Sprintf("%s%d_%d", CallbackPresetPrefix, preset.WorkMinutes, preset.BreakMinutes),
		})
	}
	keyboard := Keyboard{}
	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}
	return append(keyboard, []Button{{Label: "Custom", Data: CallbackCustom}})
}

func skipKeyboard() Keyboard {
	return Keyboard{{{Label: "Skip ⏭", Data: CallbackSkipBreak}}}
}

func nextRoundKeyboard(sessionID string) Keyboard {
	yes := CallbackNextRoundYes
	if sessionID != "" {
		yes += ":" + sessionID
	}
	return Keyboard{{
		{Label: "Yes ✅", Data: yes},
		{Label: "No ❌", Data: CallbackNextRoundNo},
	}}
}
