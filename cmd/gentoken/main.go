package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"evalgo.org/phoenix/internal/auth"
)

func main() {
	secret := flag.String("secret", "", "agent token secret")
	hostname := flag.String("hostname", "localhost", "agent hostname claim")
	hours := flag.Int("hours", 8760, "token lifetime in hours")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "gentoken: -secret is required")
		os.Exit(1)
	}

	token, err := auth.GenerateAgentToken(*secret, *hostname, time.Duration(*hours)*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gentoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
