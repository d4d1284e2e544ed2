package main

import "github.com/bryanchriswhite/ScreenGuard/cmd/screenguard/commands"

func main() {
	commands.Execute()
}
