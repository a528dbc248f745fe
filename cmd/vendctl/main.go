package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iurnickita/vending/internal/vendclient"
)

const usage = `Usage: vendctl [flags] command [args]
Commands:
  products                         list products
  buy <product-id> <d:n>...        buy a product, e.g. buy <id> 10:1 5:2
  balance                          show machine balance
  set-balance <d:n>...             override denomination counts
  stats                            sales statistics`

// parseMoney разбирает пары номинал:количество
func parseMoney(args []string) (map[int64]int64, error) {
	set := make(map[int64]int64, len(args))
	for _, arg := range args {
		d, n, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("bad money item %q, want denomination:quantity", arg)
		}
		denomination, err := strconv.ParseInt(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("denomination %q: %w", d, err)
		}
		quantity, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quantity %q: %w", n, err)
		}
		set[denomination] += quantity
	}
	return set, nil
}

func main() {
	addr := flag.String("a", "http://localhost:8080", "vending server address")
	machineID := flag.String("m", "", "machine id, server default when empty")
	timeout := flag.Duration("t", 10*time.Second, "request timeout")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, vendclient.NewVendClient(*addr, *machineID), args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, client vendclient.VendClient, args []string) error {
	switch args[0] {
	case "products":
		products, err := client.Products(ctx)
		if err != nil {
			return err
		}
		for _, p := range products {
			fmt.Printf("%s\t%s\tprice=%d\tstock=%d\n", p.ID, p.Name, p.Price, p.Stock)
		}
	case "buy":
		if len(args) < 3 {
			return fmt.Errorf("buy needs a product id and money")
		}
		inserted, err := parseMoney(args[2:])
		if err != nil {
			return err
		}
		answer, err := client.Buy(ctx, args[1], inserted)
		if err != nil {
			return err
		}
		fmt.Printf("%s: paid %d, change %d %v\n", answer.ProductName, answer.PaidAmount, answer.ChangeAmount, answer.Change)
	case "balance":
		items, err := client.Balance(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Printf("%d\t%d\t%s\n", item.Denomination, item.Quantity, item.Type)
		}
	case "set-balance":
		set, err := parseMoney(args[1:])
		if err != nil {
			return err
		}
		items, err := client.SetBalance(ctx, set)
		if err != nil {
			return err
		}
		fmt.Printf("updated %d denominations\n", len(items))
	case "stats":
		stats, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sold=%d earned=%d\n", stats.TotalSold, stats.TotalEarned)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
