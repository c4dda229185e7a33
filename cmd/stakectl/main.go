package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"nftstake/cmd/internal/passphrase"
	"nftstake/config"
	"nftstake/crypto"
	"nftstake/gateway/auth"
	"nftstake/gateway/middleware"
)

const passphraseEnv = "STAKECTL_KEYSTORE_PASSPHRASE"

var errUsage = errors.New("usage")

type cli struct {
	api           string
	token         string
	stdout        io.Writer
	stderr        io.Writer
	newPassphrase func(confirm bool) *passphrase.Source
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	c := &cli{
		api:    envOr("STAKECTL_API", "http://127.0.0.1:8645"),
		token:  os.Getenv("STAKECTL_TOKEN"),
		stdout: stdout,
		stderr: stderr,
		newPassphrase: func(confirm bool) *passphrase.Source {
			src := passphrase.NewSource(passphraseEnv)
			if confirm {
				src.WithConfirmation()
			}
			return src
		},
	}
	return c.run(args)
}

func (c *cli) run(args []string) int {
	global := flag.NewFlagSet("stakectl", flag.ContinueOnError)
	global.SetOutput(c.stderr)
	global.StringVar(&c.api, "api", c.api, "stakingd base URL (env STAKECTL_API)")
	global.StringVar(&c.token, "token", c.token, "bearer token (env STAKECTL_TOKEN)")
	global.Usage = func() { fmt.Fprintln(c.stderr, usage()) }
	if err := global.Parse(args); err != nil {
		return 1
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprintln(c.stderr, usage())
		return 1
	}

	cmd, ok := c.commands()[rest[0]]
	if !ok {
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := cmd(ctx, rest[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(c.stderr, usage())
			return 1
		}
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) commands() map[string]func(context.Context, []string) error {
	return map[string]func(context.Context, []string) error{
		"keygen":     c.keygen,
		"address":    c.address,
		"login":      c.login,
		"token":      c.mintToken,
		"stake":      c.stake,
		"unstake":    c.unstake,
		"claim":      c.claim,
		"deposit":    c.deposit,
		"position":   c.position,
		"account":    c.account,
		"pending":    c.pending,
		"stats":      c.simpleGet("/v1/stats"),
		"governance": c.simpleGet("/v1/governance"),
		"root":       c.simpleGet("/v1/state/root"),
		"proposals":  c.simpleGet("/v1/admin/proposals"),
		"events":     c.events,
		"admin":      c.admin,
		"operator":   c.operator,
	}
}

func usage() string {
	return strings.Join([]string{
		"Usage: stakectl [--api URL] [--token TOKEN] <command> [flags]",
		"",
		"Identity:",
		"  keygen --out FILE [--light]     create a keystore with a fresh key",
		"  address --key FILE              print the address of a keystore",
		"  login --key FILE                exchange a signed login for a bearer token",
		"  token --config FILE --subject ADDR [--scope operator] [--ttl 1h]",
		"",
		"Ledger:",
		"  stake --id ID[,ID...]           stake one item or a batch",
		"  unstake --id ID[,ID...]         settle one position or a batch",
		"  claim                           withdraw the reward balance",
		"  deposit --amount N [--asset A]  fund the reward reserve",
		"",
		"Queries:",
		"  position ID | account ADDR | pending ADDR | stats | governance | proposals | root",
		"  events [--type T] [--owner ADDR] [--position ID] [--since UNIX] [--limit N]",
		"",
		"Admin:",
		"  admin init --owner ADDR | transfer --to ADDR | rate --value N | pause | unpause",
		"  admin withdraw --id ID | propose --tag TAG --value N | execute --tag TAG",
		"",
		"Operator (token with operator scope):",
		"  operator pauses | pause [--module M] | resume [--module M] | invariants",
	}, "\n")
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func (c *cli) client() *apiClient { return newAPIClient(c.api, c.token) }

func (c *cli) print(raw json.RawMessage) error {
	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		_, err = c.stdout.Write(append(raw, '\n'))
		return err
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected positional arguments %v", fs.Args())
	}
	return nil
}

func splitIDs(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *cli) keygen(_ context.Context, args []string) error {
	fs := c.flags("keygen")
	out := fs.String("out", "", "keystore file to create")
	light := fs.Bool("light", false, "use light scrypt parameters (testing only)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}
	pass, err := c.newPassphrase(true).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	params := crypto.StandardScrypt
	if *light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystore(*out, key, pass, params); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, key.Address().String())
	return nil
}

func (c *cli) loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := c.newPassphrase(false).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func (c *cli) address(_ context.Context, args []string) error {
	fs := c.flags("address")
	keyPath := fs.String("key", "", "keystore file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, key.Address().String())
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	keyPath := fs.String("key", "", "keystore file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	key, err := c.loadKey(*keyPath)
	if err != nil {
		return err
	}
	req, err := auth.SignLogin(key, time.Now(), uuid.NewString())
	if err != nil {
		return err
	}
	raw, err := c.client().post(ctx, "/v1/auth/login", req)
	if err != nil {
		return err
	}
	return c.print(raw)
}

// mintToken signs a token locally with the node's shared secret. Operators use
// it to obtain the operator scope.
func (c *cli) mintToken(_ context.Context, args []string) error {
	fs := c.flags("token")
	cfgPath := fs.String("config", "", "stakingd configuration holding the token secret")
	subject := fs.String("subject", "", "address the token speaks for")
	scope := fs.String("scope", "", "space separated scopes, e.g. operator")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) == "" {
		return errors.New("--config is required")
	}
	if _, err := os.Stat(*cfgPath); err != nil {
		return fmt.Errorf("config %s: %w", *cfgPath, err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	secret, err := cfg.TokenSecret()
	if err != nil {
		return err
	}
	addr, err := crypto.ParseAddress(*subject)
	if err != nil {
		return fmt.Errorf("--subject: %w", err)
	}
	issuer := middleware.TokenIssuer{Secret: secret, Issuer: cfg.Auth.Issuer, Audience: cfg.Auth.Audience, TTL: *ttl}
	token, expires, err := issuer.Issue(addr, time.Now(), strings.Fields(*scope)...)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]any{"token": token, "address": addr.String(), "expiresAt": expires.Unix()})
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) stake(ctx context.Context, args []string) error {
	fs := c.flags("stake")
	ids := fs.String("id", "", "item id or comma separated ids")
	asset := fs.String("asset", "nft", "attached asset")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list := splitIDs(*ids)
	switch len(list) {
	case 0:
		return errors.New("--id is required")
	case 1:
		raw, err := c.client().post(ctx, "/v1/stake", map[string]any{"id": list[0], "attachedAsset": *asset, "attachedAmount": 1})
		if err != nil {
			return err
		}
		return c.print(raw)
	default:
		raw, err := c.client().post(ctx, "/v1/batch/stake", map[string]any{"ids": list, "attachedAsset": *asset, "attachedAmount": len(list)})
		if err != nil {
			return err
		}
		return c.print(raw)
	}
}

func (c *cli) unstake(ctx context.Context, args []string) error {
	fs := c.flags("unstake")
	ids := fs.String("id", "", "position id or comma separated ids")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	list := splitIDs(*ids)
	var (
		raw json.RawMessage
		err error
	)
	switch len(list) {
	case 0:
		return errors.New("--id is required")
	case 1:
		raw, err = c.client().post(ctx, "/v1/unstake", map[string]any{"id": list[0]})
	default:
		raw, err = c.client().post(ctx, "/v1/batch/unstake", map[string]any{"ids": list})
	}
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) claim(ctx context.Context, args []string) error {
	if err := parseFlags(c.flags("claim"), args); err != nil {
		return err
	}
	raw, err := c.client().post(ctx, "/v1/claim", nil)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) deposit(ctx context.Context, args []string) error {
	fs := c.flags("deposit")
	amount := fs.Uint64("amount", 0, "reward units to deposit")
	asset := fs.String("asset", "reward", "attached asset")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *amount == 0 {
		return errors.New("--amount must be positive")
	}
	raw, err := c.client().post(ctx, "/v1/rewards/deposit", map[string]any{"attachedAsset": *asset, "attachedAmount": *amount})
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) getOne(ctx context.Context, args []string, what, prefix, suffix string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%s requires exactly one argument", what)
	}
	raw, err := c.client().get(ctx, prefix+url.PathEscape(strings.TrimSpace(args[0]))+suffix)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) position(ctx context.Context, args []string) error {
	return c.getOne(ctx, args, "position", "/v1/positions/", "")
}

func (c *cli) account(ctx context.Context, args []string) error {
	return c.getOne(ctx, args, "account", "/v1/accounts/", "")
}

func (c *cli) pending(ctx context.Context, args []string) error {
	return c.getOne(ctx, args, "pending", "/v1/accounts/", "/pending")
}

func (c *cli) simpleGet(path string) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("unexpected arguments %v", args)
		}
		raw, err := c.client().get(ctx, path)
		if err != nil {
			return err
		}
		return c.print(raw)
	}
}

func (c *cli) events(ctx context.Context, args []string) error {
	fs := c.flags("events")
	typ := fs.String("type", "", "event type")
	owner := fs.String("owner", "", "owner address")
	position := fs.String("position", "", "position id")
	since := fs.Int64("since", 0, "unix seconds lower bound")
	limit := fs.Int("limit", 0, "maximum events")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	q := url.Values{}
	if *typ != "" {
		q.Set("type", *typ)
	}
	if *owner != "" {
		q.Set("owner", *owner)
	}
	if *position != "" {
		q.Set("position", *position)
	}
	if *since > 0 {
		q.Set("since", fmt.Sprint(*since))
	}
	if *limit > 0 {
		q.Set("limit", fmt.Sprint(*limit))
	}
	path := "/v1/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	raw, err := c.client().get(ctx, path)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) admin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, rest := args[0], args[1:]
	fs := c.flags("admin " + sub)
	var (
		path string
		body any
	)
	switch sub {
	case "init":
		owner := fs.String("owner", "", "governance owner address")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path, body = "/v1/admin/initialize", map[string]string{"address": *owner}
	case "transfer":
		to := fs.String("to", "", "new owner address")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path, body = "/v1/admin/ownership", map[string]string{"address": *to}
	case "rate":
		value := fs.Uint64("value", 0, "reward units per position per day")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path, body = "/v1/admin/reward-rate", map[string]uint64{"rate": *value}
	case "pause", "unpause":
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path = "/v1/admin/" + sub
	case "withdraw":
		id := fs.String("id", "", "position id")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path, body = "/v1/admin/emergency-withdraw", map[string]string{"id": *id}
	case "propose":
		tag := fs.String("tag", "", "parameter tag")
		value := fs.Uint64("value", 0, "proposed value")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		path, body = "/v1/admin/proposals", map[string]any{"tag": *tag, "value": *value}
	case "execute":
		tag := fs.String("tag", "", "parameter tag")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		if strings.TrimSpace(*tag) == "" {
			return errors.New("--tag is required")
		}
		path = "/v1/admin/proposals/" + url.PathEscape(strings.TrimSpace(*tag)) + "/execute"
	default:
		return fmt.Errorf("unknown admin subcommand %q", sub)
	}
	raw, err := c.client().post(ctx, path, body)
	if err != nil {
		return err
	}
	return c.print(raw)
}

func (c *cli) operator(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, rest := args[0], args[1:]
	fs := c.flags("operator " + sub)
	var (
		raw json.RawMessage
		err error
	)
	switch sub {
	case "pauses":
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		raw, err = c.client().get(ctx, "/v1/operator/pauses")
	case "invariants":
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		raw, err = c.client().get(ctx, "/v1/debug/invariants")
	case "pause", "resume":
		module := fs.String("module", "staking", "module name")
		if err := parseFlags(fs, rest); err != nil {
			return err
		}
		raw, err = c.client().post(ctx, "/v1/operator/pauses", map[string]any{"module": *module, "paused": sub == "pause"})
	default:
		return fmt.Errorf("unknown operator subcommand %q", sub)
	}
	if err != nil {
		return err
	}
	return c.print(raw)
}
