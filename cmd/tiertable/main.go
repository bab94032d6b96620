package main

import (
	"log"
	"os"

	"prism/client/internal/tiertool"
)

func main() {
	if err := tiertool.Execute(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
