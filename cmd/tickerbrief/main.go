package main

import (
	"os"

	"horse.fit/tickerbrief/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
