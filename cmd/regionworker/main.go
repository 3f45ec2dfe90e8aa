// Command regionworker fetches one product page for one region and prints a
// single JSON record on stdout. Diagnostics go to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"price_crew/config"
	"price_crew/httputil"
	"price_crew/identity"
	"price_crew/registry"
	"price_crew/scraper"
)

var (
	regionCode = flag.String("region", "", "Region code to scrape")
	timeout    = flag.Duration("timeout", 2*time.Minute, "Fetch timeout")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime)

	if *regionCode == "" || flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: regionworker -region CODE PRODUCT_ID")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	reg, err := registry.New(cfg.Regions)
	if err != nil {
		log.Fatalf("Invalid region config: %v", err)
	}
	region, ok := reg.Lookup(*regionCode)
	if !ok {
		log.Fatalf("Unknown region: %s", *regionCode)
	}

	ids, err := identity.NewValidator(cfg.ProductIDPattern)
	if err != nil {
		log.Fatalf("Invalid PRODUCT_ID_PATTERN: %v", err)
	}
	productID, err := ids.Validate(flag.Arg(0))
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("Fetching %s", region.ProductURL(productID))
	fetcher := scraper.NewPageFetcher(httputil.NewScrapingClient(&cfg.Proxy))
	result := fetcher.Scrape(ctx, region, productID)
	log.Printf("Result: %s", result.Status)

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Fatalf("Failed to write result: %v", err)
	}
}
