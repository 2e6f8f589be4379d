package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"invoicedash/internal"
	"invoicedash/internal/app"
	"invoicedash/internal/auth"
	"invoicedash/internal/config"
	"invoicedash/internal/dashboard"
	"invoicedash/internal/export"
	"invoicedash/internal/storage"
	"invoicedash/internal/web"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := app.InitLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg)
	must(err)
	defer store.Close()

	summarizer, err := app.NewSummarizer(cfg, log)
	must(err)
	dash := dashboard.NewService(store, summarizer, cfg.PDFDir)

	cmd := os.Args[1]
	switch cmd {
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		provider, err := auth.NewProvider(cfg)
		must(err)
		authSvc := auth.NewService(provider, cfg.SessionTTL(), cfg.CookieSecure)
		srv := web.NewServer(dash, authSvc, web.NewMetrics(), log)
		must(srv.Run(ctx, *addr))
	case "invoices:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		q := fs.String("q", "", "free text filter")
		company := fs.String("company", "", "company name filter")
		sort := fs.String("sort", "", "sort field (default dateOfIssue desc)")
		order := fs.String("order", "", "asc|desc")
		limit := fs.Int("limit", dashboard.DefaultPageSize, "max rows")
		_ = fs.Parse(os.Args[2:])
		page, err := dash.ListInvoices(ctx, dashboard.Query{
			Q:        *q,
			Company:  *company,
			Sort:     *sort,
			Order:    *order,
			Page:     1,
			PageSize: *limit,
		})
		must(err)
		for _, inv := range page.Items {
			fmt.Printf("%s\t%s\t%s\t%s\t%.2f\n", inv.ID, inv.InvoiceNumber, inv.DateOfIssue, inv.CompanyName, inv.Total)
		}
		fmt.Printf("showing %d of %d invoices\n", len(page.Items), page.Total)
	case "invoices:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "JSON array of raw invoice documents")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		count, err := importInvoices(ctx, store, *file)
		must(err)
		fmt.Printf("import complete: %d invoices\n", count)
	case "errors:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		status := fs.String("status", string(internal.ErrorPending), "pending|resolved|all")
		_ = fs.Parse(os.Args[2:])
		filter := internal.ErrorStatus(*status)
		if *status == "all" {
			filter = ""
		}
		items, err := dash.ListErrorInvoices(ctx, filter)
		must(err)
		for _, e := range items {
			fmt.Printf("%s\t%s\t%s\t%s\n", e.ID, e.Status, e.FileName, e.ErrorMessage)
		}
		fmt.Printf("%d error invoices\n", len(items))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "invoices.xlsx"), "output file")
		q := fs.String("q", "", "free text filter")
		_ = fs.Parse(os.Args[2:])
		invoices, err := dash.Export(ctx, dashboard.Query{Q: *q})
		must(err)
		must(export.InvoicesToFile(invoices, *out))
		fmt.Printf("exported %d invoices to %s\n", len(invoices), *out)
	case "summary":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "invoice id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*id) == "" {
			must(fmt.Errorf("--id is required"))
		}
		s, err := dash.Summarize(ctx, *id)
		must(err)
		fmt.Println(s.Text)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		svc, err := app.NewIngest(ctx, cfg, store, *provider)
		must(err)
		res, err := svc.FetchAndStore(ctx, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d new=%d invoices=%d errors=%d skipped=%d failed=%d\n",
			*provider, res.Fetched, res.New, res.Invoices, res.Errors, res.Skipped, res.Failed)
	case "mail:listen":
		l, err := app.NewListener(ctx, cfg, store)
		must(err)
		must(l.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func importInvoices(ctx context.Context, store app.Store, path string) (int, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var docs []json.RawMessage
	if err := json.Unmarshal(blob, &docs); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	count := 0
	for i, doc := range docs {
		raw, err := storage.DecodeDocument(doc)
		if err != nil {
			return count, fmt.Errorf("document %d: %w", i, err)
		}
		if _, err := store.InsertInvoice(ctx, raw); err != nil {
			return count, fmt.Errorf("document %d: %w", i, err)
		}
		count++
	}
	return count, nil
}

func usage() {
	fmt.Println("usage: invoicedash <command> [flags]")
	fmt.Println("commands:")
	fmt.Println("  serve [--addr :8080]")
	fmt.Println("  invoices:list [--q text] [--company name] [--sort field] [--order asc|desc] [--limit 25]")
	fmt.Println("  invoices:import --file invoices.json")
	fmt.Println("  errors:list [--status pending|resolved|all]")
	fmt.Println("  export:xlsx [--out out/invoices.xlsx] [--q text]")
	fmt.Println("  summary --id <invoice id>")
	fmt.Println("  mail:fetch [--provider gmail|imap] [--label INBOX] [--max 50]")
	fmt.Println("  mail:listen")
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
