package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zama-ai/token-faucet/pkg/client"
	"github.com/zama-ai/token-faucet/pkg/logger"
	"github.com/zama-ai/token-faucet/pkg/version"
)

var (
	faucetURL   = flag.String("url", "http://localhost:8080", "faucet API base URL")
	keyEnv      = flag.String("key-env", "FAUCET_PRIVATE_KEY", "environment variable holding the signing key")
	timeout     = flag.Duration("timeout", 3*time.Minute, "request timeout")
	retries     = flag.Int("retries", 3, "retries for transient claim failures")
	showVersion = flag.Bool("version", false, "print version information")
)

const usage = `usage: faucetctl [flags] <command> [args]

commands:
  assets                       list assets and vault balances
  eligibility <account> <asset>
  request <asset>              claim tokens for the signing account
  deposit <asset> <amount>     operator: move tokens into the vault
  withdraw <asset> <amount>    operator: move tokens out of the vault
  revoke <account> <asset>     operator: let account claim again
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersion())
		return
	}
	if err := logger.InitLogger(); err != nil {
		panic(fmt.Errorf("failed to init logger: %v", err))
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c, err := newClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := run(ctx, c, args[0], args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := writeJSON(os.Stdout, out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newClient() (*client.Client, error) {
	hexKey := strings.TrimPrefix(os.Getenv(*keyEnv), "0x")
	if hexKey == "" {
		return client.NewClient(*faucetURL, nil, *timeout), nil
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", *keyEnv, err)
	}
	return client.NewClient(*faucetURL, key, *timeout), nil
}

func run(ctx context.Context, c *client.Client, command string, args []string) (any, error) {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d arguments, got %d", command, n, len(args))
		}
		return nil
	}
	account := func(value string) (common.Address, error) {
		if !common.IsHexAddress(value) {
			return common.Address{}, fmt.Errorf("invalid account address %q", value)
		}
		return common.HexToAddress(value), nil
	}

	switch command {
	case "assets":
		return c.Assets(ctx)
	case "eligibility":
		if err := need(2); err != nil {
			return nil, err
		}
		addr, err := account(args[0])
		if err != nil {
			return nil, err
		}
		return c.Eligibility(ctx, addr, args[1])
	case "request":
		if err := need(1); err != nil {
			return nil, err
		}
		return c.RequestTokensWithRetry(ctx, args[0], *retries)
	case "deposit":
		if err := need(2); err != nil {
			return nil, err
		}
		return c.Deposit(ctx, args[0], args[1])
	case "withdraw":
		if err := need(2); err != nil {
			return nil, err
		}
		return c.Withdraw(ctx, args[0], args[1])
	case "revoke":
		if err := need(2); err != nil {
			return nil, err
		}
		addr, err := account(args[0])
		if err != nil {
			return nil, err
		}
		if err := c.RemoveFromWhitelist(ctx, addr, args[1]); err != nil {
			return nil, err
		}
		return map[string]string{"account": addr.Hex(), "asset": args[1]}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}
