package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/urfave/cli.v1"

	jwttoken "certverify/internal/jwt_token"
	"certverify/internal/lookup/cache"
	"certverify/internal/lookup/explorer"
	"certverify/internal/lookup/hashlink"
	"certverify/internal/lookup/httpfetch"
	"certverify/internal/lookup/issuer"
	"certverify/internal/lookup/ldcontext"
	"certverify/internal/lookup/revocation"
	"certverify/internal/platform/logger"
	"certverify/internal/verifier/canonical"
	"certverify/internal/verifier/chains"
	"certverify/internal/verifier/models"
	"certverify/internal/verifier/service"
)

// errVerificationFailed makes the process exit 1 without printing again.
var errVerificationFailed = errors.New("verification failed")

var lookupFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "cache",
		Usage: "bolt file caching fetched issuer profiles, revocation lists and transactions",
	},
	cli.BoolFlag{
		Name:  "offline",
		Usage: "never fetch remote documents; only mocknet credentials with embedded issuers can pass",
	},
	cli.StringFlag{
		Name:   "chains",
		Usage:  "TOML file with extra chains",
		EnvVar: "CHAINS_FILE",
	},
	cli.StringFlag{
		Name:   "etherscan-key",
		Usage:  "Etherscan API key for Ethereum anchors",
		EnvVar: "ETHERSCAN_API_KEY",
	},
	cli.IntFlag{
		Name:   "min-explorers",
		Usage:  "number of block explorers that must agree on a transaction",
		Value:  1,
		EnvVar: "EXPLORER_MIN_ANSWERS",
	},
	cli.DurationFlag{
		Name:  "timeout",
		Usage: "overall verification timeout",
		Value: time.Minute,
	},
	cli.BoolFlag{
		Name:  "verbose",
		Usage: "log lookups to stderr",
	},
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "certverify"
	app.Usage = "verify blockchain-anchored credentials"
	app.Version = "1.0.0"
	app.Writer = stdout

	app.Commands = []cli.Command{
		{
			Name:      "verify",
			Aliases:   []string{"v"},
			Usage:     "verify a credential and print each step",
			ArgsUsage: "credential.json",
			Flags: append([]cli.Flag{
				cli.BoolFlag{
					Name:  "json",
					Usage: "print the result as JSON instead of step progress",
				},
			}, lookupFlags...),
			Action: func(c *cli.Context) error {
				return verifyCmd(c, stdout, stderr)
			},
		},
		{
			Name:      "steps",
			Aliases:   []string{"s"},
			Usage:     "print the verification map of a credential without running it",
			ArgsUsage: "credential.json",
			Flags:     lookupFlags,
			Action: func(c *cli.Context) error {
				return stepsCmd(c, stdout, stderr)
			},
		},
		{
			Name:  "token",
			Usage: "mint an API access token",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "subject", Usage: "caller identity (sub claim)"},
				cli.StringFlag{Name: "client", Usage: "client id claim"},
				cli.StringFlag{Name: "key", Usage: "HS256 signing key", EnvVar: "JWT_SIGNING_KEY"},
				cli.StringFlag{Name: "issuer", Value: "certverify", EnvVar: "JWT_ISSUER"},
				cli.StringFlag{Name: "audience", Value: "certverify-api", EnvVar: "JWT_AUDIENCE"},
				cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
			},
			Action: func(c *cli.Context) error {
				return tokenCmd(c, stdout)
			},
		},
	}
	return app
}

// buildService wires the lookups requested by the flags. The returned close
// func releases the bolt cache.
func buildService(c *cli.Context, stderr io.Writer) (*service.Service, func(), error) {
	level := "warn"
	if c.Bool("verbose") {
		level = "debug"
	}
	log := logger.New(stderr, logger.FormatText, level)

	registry := chains.Default()
	if path := c.String("chains"); path != "" {
		if _, err := registry.LoadFile(path); err != nil {
			return nil, nil, err
		}
	}

	opts := []service.Option{service.WithChains(registry), service.WithLogger(log)}
	closeFn := func() {}
	if c.Bool("offline") {
		opts = append(opts, service.WithContextLoader(canonical.NewContextLoader(nil)))
		return service.New(nil, opts...), closeFn, nil
	}

	minExplorers := c.Int("min-explorers")
	if minExplorers < 1 {
		return nil, nil, fmt.Errorf("--min-explorers must be at least 1, got %d", minExplorers)
	}

	fetchOpts := []httpfetch.Option{
		httpfetch.WithUserAgent("certverify-cli/1.0"),
		httpfetch.WithLogger(log),
	}
	if path := c.String("cache"); path != "" {
		bolt, err := cache.OpenBolt(path)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = bolt.Close() }
		fetchOpts = append(fetchOpts, httpfetch.WithCache(bolt, 24*time.Hour))
	}
	client := httpfetch.New(fetchOpts...)

	opts = append(opts,
		service.WithTransactionLookup(explorer.New(
			explorer.Defaults(client, c.String("etherscan-key")),
			explorer.WithMinAnswers(minExplorers),
			explorer.WithLogger(log),
		)),
		service.WithContextLoader(canonical.NewContextLoader(ldcontext.New(client))),
		service.WithIssuerProfiles(issuer.NewFetcher(client)),
		service.WithRevocationLists(revocation.NewFetcher(client)),
		service.WithHashlinks(hashlink.NewVerifier(client, hashlink.WithLogger(log))),
	)
	return service.New(nil, opts...), closeFn, nil
}

func readCredential(c *cli.Context) ([]byte, error) {
	path := c.Args().First()
	switch path {
	case "":
		return nil, errors.New("missing credential file, use - for stdin")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(context.Background(), d)
	}
	return context.WithCancel(context.Background())
}

func verifyCmd(c *cli.Context, stdout, stderr io.Writer) error {
	raw, err := readCredential(c)
	if err != nil {
		return err
	}
	svc, closeFn, err := buildService(c, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := withTimeout(c)
	defer cancel()

	asJSON := c.Bool("json")
	var progress models.StepCallback
	if !asJSON {
		progress = func(s models.StepStatus) {
			printStep(stdout, s)
		}
	}

	result, err := svc.Verify(ctx, raw, progress)
	if err != nil {
		return err
	}

	if asJSON {
		if err := writeJSON(stdout, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "\n%s: %s\n", result.Verdict.Status, result.Verdict.Message)
	}
	if !result.Verdict.Succeeded() {
		return errVerificationFailed
	}
	return nil
}

func printStep(w io.Writer, s models.StepStatus) {
	switch s.Status {
	case models.StatusStarting:
		return
	case models.StatusSuccess:
		fmt.Fprintf(w, "[ok]   %s\n", s.Label)
	case models.StatusFailure:
		fmt.Fprintf(w, "[fail] %s: %s\n", s.Label, s.ErrorMessage)
	}
}

func stepsCmd(c *cli.Context, stdout, stderr io.Writer) error {
	raw, err := readCredential(c)
	if err != nil {
		return err
	}
	svc, closeFn, err := buildService(c, stderr)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := withTimeout(c)
	defer cancel()

	report, err := svc.Steps(ctx, raw)
	if err != nil {
		return err
	}
	return writeJSON(stdout, report)
}

func tokenCmd(c *cli.Context, stdout io.Writer) error {
	key := c.String("key")
	if key == "" {
		return errors.New("a signing key is required (--key or JWT_SIGNING_KEY)")
	}
	svc := jwttoken.NewJWTService(key, c.String("issuer"), c.String("audience"))
	token, err := svc.GenerateAccessToken(c.String("subject"), c.String("client"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
