// Command licgate-server runs the device licensing and usage tracking API.
package main

import (
	"context"
	"fmt"
	"os"

	"licgate/internal/app"
)

func main() {
	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "licgate: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(context.Background()); err != nil {
		application.Logger.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}
