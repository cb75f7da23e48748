// pricefeed publishes one price tick onto the NATS price subject, for
// driving observation from the command line:
//
//	pricefeed -ticker ABC -price 123.45
package main

import (
	"flag"
	"log"
	"os"

	"github.com/nats-io/nats.go"

	"QuonkLedger/internal/ingestion"
	"QuonkLedger/internal/money"
)

func main() {
	var (
		natsURL = flag.String("nats", envOrDefault("QUONK_NATS_URL", nats.DefaultURL), "NATS server URL")
		ticker  = flag.String("ticker", "", "ticker to publish (required)")
		price   = flag.String("price", "", "price to publish (required)")
	)
	flag.Parse()

	if *ticker == "" || *price == "" {
		flag.Usage()
		os.Exit(1)
	}

	amount, err := money.Parse(*price)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if amount.IsNegative() || amount.IsZero() {
		log.Fatalf("FATAL: price must be positive, got %s", amount)
	}

	conn, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("FATAL: connect nats: %v", err)
	}
	defer conn.Drain()

	if err := ingestion.NewPricePublisher(conn).Publish(*ticker, amount); err != nil {
		log.Fatalf("FATAL: publish tick: %v", err)
	}
	if err := conn.Flush(); err != nil {
		log.Fatalf("FATAL: flush: %v", err)
	}
	log.Printf("INFO: published %s @ %s", *ticker, amount)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
