package color

import (
	"fmt"
	"os"

	"github.com/muesli/termenv"
)

// ANSI color indexes
const (
	Red    = "1"
	Green  = "2"
	Yellow = "3"
	Blue   = "4"
	Cyan   = "6"
	Gray   = "8"

	BrightRed = "9"
)

var (
	output       = termenv.NewOutput(os.Stderr)
	colorEnabled = true
)

func init() {
	if os.Getenv("NO_COLOR") != "" || output.Profile == termenv.Ascii {
		colorEnabled = false
	}
}

func EnableColor(enable bool) {
	colorEnabled = enable
}

func IsColorEnabled() bool {
	return colorEnabled
}

func Colorize(color, text string) string {
	if !colorEnabled {
		return text
	}
	return termenv.String(text).Foreground(termenv.ANSI256.Color(color)).String()
}

func RedText(text string) string {
	return Colorize(Red, text)
}

func BrightRedText(text string) string {
	return Colorize(BrightRed, text)
}

func GreenText(text string) string {
	return Colorize(Green, text)
}

func YellowText(text string) string {
	return Colorize(Yellow, text)
}

func BlueText(text string) string {
	return Colorize(Blue, text)
}

func CyanText(text string) string {
	return Colorize(Cyan, text)
}

func GrayText(text string) string {
	return Colorize(Gray, text)
}

func BoldText(text string) string {
	if !colorEnabled {
		return text
	}
	return termenv.String(text).Bold().String()
}

func Position(line, col int) string {
	return CyanText(fmt.Sprintf("%d:%d", line, col))
}
