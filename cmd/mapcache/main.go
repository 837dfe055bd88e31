package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"posterd/internal/infra"
	"posterd/internal/mapcache"
)

func main() {
	var (
		dirFlag string
		ageFlag time.Duration
	)
	flag.StringVar(&dirFlag, "dir", "", "cache directory (defaults to the service CACHE_DIR)")
	flag.DurationVar(&ageFlag, "age", mapcache.DefaultExpiry, "maximum entry age for sweep")
	flag.Usage = usage
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	dir := strings.TrimSpace(dirFlag)
	if dir == "" {
		cfg, err := infra.LoadConfig()
		if err != nil {
			exitWithError(err)
		}
		dir = cfg.CacheDir
	}

	logger := infra.NewLogger("cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "mapcache").Logger()
	cache := mapcache.New(dir, logger)

	switch cmd {
	case "list":
		entries, err := cache.List()
		if err != nil {
			exitWithError(err)
		}
		if len(entries) == 0 {
			fmt.Println("cache is empty")
			return
		}
		for _, e := range entries {
			age := time.Since(e.CachedAt).Round(time.Hour)
			fmt.Printf("%-40s %s, %s  distance=%dm  age=%s\n", e.Key, e.City, e.Country, e.Distance, age)
		}
		fmt.Printf("%d entries\n", len(entries))
	case "find":
		city, country := strings.TrimSpace(flag.Arg(1)), strings.TrimSpace(flag.Arg(2))
		if city == "" || country == "" {
			exitWithError(fmt.Errorf("find needs a city and a country"))
		}
		entry, ok := cache.Find(city, country)
		if !ok {
			fmt.Printf("%s, %s is not cached\n", city, country)
			os.Exit(1)
		}
		fmt.Printf("%s  distance=%dm  age=%s\n", entry.Key, entry.Distance, time.Since(entry.CachedAt).Round(time.Hour))
	case "clear":
		if key := strings.TrimSpace(flag.Arg(1)); key != "" {
			if err := cache.Clear(key); err != nil {
				exitWithError(err)
			}
			fmt.Printf("cleared %s\n", key)
			return
		}
		entries, err := cache.List()
		if err != nil {
			exitWithError(err)
		}
		if err := cache.ClearAll(); err != nil {
			exitWithError(err)
		}
		fmt.Printf("cleared %d entries\n", len(entries))
	case "sweep":
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		removed, err := cache.SweepExpired(ctx, ageFlag)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("removed %d expired entries\n", removed)
	default:
		exitWithError(fmt.Errorf("unknown command %q", cmd))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mapcache [-dir path] [-age duration] list|find city country|clear [key]|sweep")
	flag.PrintDefaults()
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
