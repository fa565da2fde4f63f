package cli

import "github.com/fatih/color"

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	faintColor   = color.New(color.Faint)
)

func infof(format string, args ...any) {
	infoColor.Printf(format+"\n", args...)
}

func successf(format string, args ...any) {
	successColor.Printf(format+"\n", args...)
}

func faintf(format string, args ...any) {
	faintColor.Printf(format+"\n", args...)
}
