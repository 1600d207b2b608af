package main

import (
	"log/slog"
	"os"

	"github.com/alex-user-go/tripdata/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("tripdata exited", "error", err)
		os.Exit(1)
	}
}
