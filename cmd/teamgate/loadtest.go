package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"regexp"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/accounts"
	"github.com/MrEthical07/teamgate/mail"
	"github.com/MrEthical07/teamgate/secret"
)

type loadtestOptions struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
	argonMemory uint32
}

// NewLoadtestCmd creates the loadtest subcommand. It drives the login and
// session validation paths of an in-process Engine and prints latency
// percentiles.
func NewLoadtestCmd() *cobra.Command {
	opts := loadtestOptions{}
	cmd := &cobra.Command{
		Use:    "loadtest",
		Short:  "Measure login and session validation latency",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("accounts, concurrency and ops must be > 0")
			}
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.accounts, "accounts", 200, "number of accounts to seed; each logs in once")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 16, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "session validations to run")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().Uint32Var(&opts.argonMemory, "argon-memory", 19*1024, "argon2id memory in KiB")
	return cmd
}

var passcodePattern = regexp.MustCompile(`OTP\) is: (\d+)`)

// passcodeBox keeps the last passcode mailed to each recipient.
type passcodeBox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (b *passcodeBox) Deliver(_ context.Context, msg mail.Message) error {
	match := passcodePattern.FindStringSubmatch(msg.TextBody)
	if len(match) != 2 {
		return fmt.Errorf("no passcode in message to %s", msg.To)
	}
	b.mu.Lock()
	b.codes[msg.To] = match[1]
	b.mu.Unlock()
	return nil
}

func (b *passcodeBox) take(to string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	code := b.codes[to]
	delete(b.codes, to)
	return code
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) error {
	var client redis.UniversalClient
	if opts.redisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		opts.redisAddr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", opts.redisAddr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", opts.redisAddr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
	defer client.Close()

	cfg := teamgate.DefaultConfig()
	cfg.Session.PrivateKey = []byte(fmt.Sprintf("loadtest-%024d", time.Now().UnixNano()))
	cfg.Session.EnableRevocation = true
	cfg.LoginThrottle.Enabled = false
	cfg.Password.Memory = opts.argonMemory
	cfg.Password.Time = 2
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	box := &passcodeBox{codes: make(map[string]string)}
	engine, err := teamgate.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccounts(accounts.NewMemoryDirectory()).
		WithSecretStore(secret.NewRedisStore(client, secret.WithKeyPrefix("tg:loadtest"))).
		WithMailer(box).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	emails := make([]string, opts.accounts)
	fmt.Fprintf(out, "seeding %d accounts...\n", opts.accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("member-%d@loadtest.local", i)
		if _, err := engine.Register(ctx, teamgate.NewAccountInput{
			Name:     fmt.Sprintf("Member %d", i),
			Email:    emails[i],
			Password: "loadtest-password",
		}); err != nil {
			return fmt.Errorf("seed account %d: %w", i, err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	tokens := make([]string, len(emails))
	loginStats := runPhase(len(emails), opts.concurrency, func(i int, _ *rand.Rand) error {
		pendingID, err := engine.Login(ctx, emails[i], "loadtest-password", "127.0.0.1")
		if err != nil {
			return err
		}
		res, err := engine.VerifyOTP(ctx, pendingID, box.take(emails[i]))
		if err != nil {
			return err
		}
		tokens[i] = res.Token
		return nil
	})

	tokens = slices.DeleteFunc(tokens, func(s string) bool { return s == "" })
	if len(tokens) == 0 {
		return fmt.Errorf("no session issued; cannot run the validate phase")
	}
	validateStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		_, err := engine.ValidateSession(ctx, tokens[r.IntN(len(tokens))])
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "login+verify", loginStats)
	printStats(out, "validate", validateStats)
	return nil
}

// runPhase runs op ops times across concurrency workers.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	slices.Sort(samples)
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
