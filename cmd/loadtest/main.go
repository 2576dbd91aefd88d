// Command loadtest прогоняет сценарии инициации Pix против запущенного
// сервиса и печатает сводку по задержкам и кодам ответов.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/pix-initiation/internal/version"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

type loadMode string

const (
	modeConsent          loadMode = "consent"
	modeConsentPay       loadMode = "consent-pay"
	modeConsentPayCancel loadMode = "consent-pay-cancel"
)

type config struct {
	addr          string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	connections   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	amount        string
	proxy         string
	creditorISPB  string
	cnpjInitiator string
	apiVersion    string
	bearer        string
	runTag        string
	outputPath    string
}

// clients — пара клиентов поверх одного соединения.
type clients struct {
	consents pixv1.ConsentServiceClient
	payments pixv1.PaymentServiceClient
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modeConsent), "load mode: consent | consent-pay | consent-pay-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "share of scheduled-and-cancelled scenarios in consent-pay mode, percent (0..100)")
	fs.StringVar(&cfg.amount, "amount", "10.00", "payment amount in BRL")
	fs.StringVar(&cfg.proxy, "proxy", "loadtest@example.com", "DICT key of the creditor")
	fs.StringVar(&cfg.creditorISPB, "creditor-ispb", "12345678", "ISPB of the creditor account")
	fs.StringVar(&cfg.cnpjInitiator, "cnpj-initiator", "50685362000135", "CNPJ of the payment initiator")
	fs.StringVar(&cfg.apiVersion, "api-version", "", "value of the x-api-version header (default: server default)")
	fs.StringVar(&cfg.bearer, "bearer", "", "bearer token for the authorization header")
	fs.StringVar(&cfg.runTag, "run-tag", "lt", "idempotency key prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	amount, err := decimal.NewFromString(strings.TrimSpace(cfg.amount))
	if err != nil || !amount.IsPositive() {
		return cfg, fmt.Errorf("amount must be a positive decimal: %q", cfg.amount)
	}
	cfg.amount = amount.StringFixed(2)

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case strings.TrimSpace(cfg.proxy) == "":
		return cfg, errors.New("proxy is required")
	case len(strings.TrimSpace(cfg.creditorISPB)) != 8:
		return cfg, errors.New("creditor-ispb must have 8 digits")
	case strings.TrimSpace(cfg.runTag) == "":
		return cfg, errors.New("run-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeConsent, modeConsentPay, modeConsentPayCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(cfg, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func run(cfg config, out io.Writer) (report, error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	pool := make([]clients, 0, cfg.connections)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	for i := 0; i < cfg.connections; i++ {
		conn, err := grpc.NewClient(cfg.addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUserAgent("pix-loadtest "+version.UserAgent()),
		)
		if err != nil {
			return report{}, fmt.Errorf("create grpc client connection: %w", err)
		}
		conns = append(conns, conn)
		pool = append(pool, clients{
			consents: pixv1.NewConsentServiceClient(conn),
			payments: pixv1.NewPaymentServiceClient(conn),
		})
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%s-%d-%d", cfg.runTag, startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var (
		failures int64
		wg       sync.WaitGroup
	)
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli clients) {
			defer wg.Done()
			for id := range jobs {
				if err := runScenario(cli, cfg, id, runID, col); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(pool[workerID%len(pool)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(out, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return result, fmt.Errorf("write report: %w", err)
		}
	}
	return result, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}
