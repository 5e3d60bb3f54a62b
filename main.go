package main

import (
	"log"

	"github.com/shaharia-lab/devproxy/cmd"
)

func main() {
	webFS, err := getFrontendFS()
	if err != nil {
		log.Fatalf("failed to load front-end assets: %v", err)
	}
	cmd.WebFS = webFS
	cmd.Execute()
}
