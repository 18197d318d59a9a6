package main

import (
	"context"
	"log"

	"github.com/dmarkelov/notesync/internal/relay"
	"github.com/dmarkelov/notesync/internal/relay/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := relay.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
