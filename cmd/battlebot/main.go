package main

import (
	"log"

	"musicbattle/services/battlebot"
)

func main() {
	if err := battlebot.Main(); err != nil {
		log.Fatalf("battlebot: %v", err)
	}
}
