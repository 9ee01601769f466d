package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lovi-cloud/draco"
)

func main() {
	err := draco.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
