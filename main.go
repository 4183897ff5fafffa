package main

import (
	"fmt"
	"os"

	"tag_manager/handlers"
)

func main() {
	if err := handlers.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
