package main

import (
	"log"

	"github.com/gloryhry/Dreamina-Token-Manager/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
