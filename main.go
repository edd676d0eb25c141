package main

import (
	"starboard-bot/bot"
	"starboard-bot/handlers"
)

func main() {
	bot.Run(handlers.Register)
}
