package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gbce/internal/common"
	gbceNet "gbce/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the GBCE server")
	action := flag.String("action", "trade", "Action to perform: ['define', 'trade', 'metrics', 'index', 'heartbeat']")
	timeout := flag.Duration("timeout", 5*time.Second, "Per-request timeout")

	// Instrument parameters
	ticker := flag.String("ticker", "TEA", "Stock symbol")
	kindStr := flag.String("kind", "common", "Instrument kind: 'common' or 'preferred'")
	par := flag.Float64("par", 100, "Par value of a preferred share")
	percent := flag.Float64("percent", 0, "Fixed dividend percent of a preferred share")

	// Trade parameters
	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	price := flag.Float64("price", 100.0, "Trade price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	at := flag.String("at", "", "Trade time as 'year-month-day hours:minutes:seconds' in UTC, empty for now")

	// Metrics parameters
	dividend := flag.String("dividend", "", "Dividend quoted for a common share")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := gbceNet.Dial(ctx, *serverAddr, *timeout)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer client.Close()

	switch strings.ToLower(*action) {
	case "define":
		kind, err := common.ParseKind(*kindStr)
		if err != nil {
			log.Fatal(err)
		}
		do(client, gbceNet.DefineInstrumentMessage{
			Kind:            kind,
			ParValue:        *par,
			DividendPercent: *percent,
			Ticker:          *ticker,
		})

	case "trade":
		side, err := common.ParseSide(*sideStr)
		if err != nil {
			log.Fatal(err)
		}
		var timestamp int64
		if *at != "" {
			ts, err := common.ParseTimestamp(*at)
			if err != nil {
				log.Fatal(err)
			}
			timestamp = ts.UnixNano()
		}
		for _, q := range parseQuantities(*qtyStr) {
			do(client, gbceNet.RecordTradeMessage{
				Side:      side,
				Quantity:  q,
				Price:     *price,
				Timestamp: timestamp,
				Ticker:    *ticker,
			})
		}

	case "metrics":
		msg := gbceNet.QueryMetricsMessage{Ticker: *ticker}
		if *dividend != "" {
			d, err := strconv.ParseFloat(*dividend, 64)
			if err != nil {
				log.Fatalf("Invalid dividend %q: %v", *dividend, err)
			}
			msg.HasDividend, msg.Dividend = true, d
		}
		do(client, msg)

	case "index":
		do(client, gbceNet.BaseMessage{TypeOf: gbceNet.QueryIndex})

	case "heartbeat":
		do(client, gbceNet.BaseMessage{TypeOf: gbceNet.Heartbeat})

	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil && val > 0 {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

func do(client *gbceNet.Client, msg gbceNet.Message) {
	report, err := client.Do(msg)
	if err != nil && !errors.Is(err, gbceNet.ErrServerError) {
		log.Fatalf("Request failed: %v", err)
	}
	printReport(report)
}

func printReport(r gbceNet.Report) {
	switch r.MessageType {
	case gbceNet.Ack:
		if r.Seq > 0 {
			fmt.Printf("[ACK] %s trade #%d\n", r.Ticker, r.Seq)
		} else {
			fmt.Printf("[ACK] %s\n", r.Ticker)
		}
	case gbceNet.MetricsReport:
		fmt.Printf("[METRICS] %s\n", r.Ticker)
		fmt.Printf("  Dividend Yield:           %s\n", metric(r.DividendYield, r.Unavailable&gbceNet.DividendYieldUnavailable))
		fmt.Printf("  P/E:                      %s\n", metric(r.PERatio, r.Unavailable&gbceNet.PERatioUnavailable))
		fmt.Printf("  Geometric Mean:           %s\n", metric(r.GeometricMean, r.Unavailable&gbceNet.GeometricMeanUnavailable))
		fmt.Printf("  Vol.Weighted Stock Price: %s\n", metric(r.VolumeWeightedPrice, r.Unavailable&gbceNet.VolumeWeightedPriceUnavailable))
		if r.Err != "" {
			fmt.Printf("  (%s)\n", r.Err)
		}
	case gbceNet.IndexReport:
		fmt.Printf("[INDEX] GBCE All Share Index: %.4f\n", r.Index)
	case gbceNet.ErrorReport:
		fmt.Printf("[SERVER ERROR] %s\n", r.Err)
	}
}

func metric(v float64, unavailable uint8) string {
	if unavailable != 0 {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
