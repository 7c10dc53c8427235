package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/crypto"
	"yeifinance/sdk/lending"
	"yeifinance/services/lending/api"
)

// parseArgs parses flags that appear before, between or after positionals.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	fs.SetOutput(io.Discard)
	var positionals []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positionals, nil
		}
		positionals = append(positionals, args[0])
		args = args[1:]
	}
}

func (g *globals) client() (*lending.Client, error) {
	return lending.New(g.url, lending.WithToken(g.token))
}

func (g *globals) print(v any) error {
	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmountArg(raw string) (*big.Int, error) {
	amount, err := api.ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be a positive integer")
	}
	return amount, nil
}

// optionalAddress resolves an empty flag to the zero address, which lets the
// server act for the token subject.
func optionalAddress(raw string) (common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return common.Address{}, nil
	}
	return crypto.ParseAddress(raw)
}

func runProtocol(ctx context.Context, g *globals, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Protocol(ctx)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runPosition(ctx context.Context, g *globals, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	addr, err := crypto.ParseAddress(args[0])
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Position(ctx, addr)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runTokenInfo(ctx context.Context, g *globals, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Token(ctx, args[0])
	if err != nil {
		return err
	}
	return g.print(out)
}

func runBalance(ctx context.Context, g *globals, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	addr, err := crypto.ParseAddress(args[1])
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Balance(ctx, args[0], addr)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runApprove(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("approve", flag.ContinueOnError)
	spender := fs.String("spender", "pool", "spender address or the pool/vault alias")
	owner := fs.String("owner", "", "owner account, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return errUsage
	}
	amount, err := parseAmountArg(rest[1])
	if err != nil {
		return err
	}
	ownerAddr, err := optionalAddress(*owner)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Approve(ctx, rest[0], ownerAddr, *spender, amount)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runTransfer(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	from := fs.String("from", "", "sender, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 3 {
		return errUsage
	}
	to, err := crypto.ParseAddress(rest[1])
	if err != nil {
		return err
	}
	amount, err := parseAmountArg(rest[2])
	if err != nil {
		return err
	}
	fromAddr, err := optionalAddress(*from)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Transfer(ctx, rest[0], fromAddr, to, amount)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runMint(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	authority := fs.String("authority", "", "mint authority, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 3 {
		return errUsage
	}
	to, err := crypto.ParseAddress(rest[1])
	if err != nil {
		return err
	}
	amount, err := parseAmountArg(rest[2])
	if err != nil {
		return err
	}
	authAddr, err := optionalAddress(*authority)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Mint(ctx, rest[0], authAddr, to, amount)
	if err != nil {
		return err
	}
	return g.print(out)
}

type amountCall func(c *lending.Client, ctx context.Context, account common.Address, amount *big.Int) (*api.TxResponse, error)

var amountCalls = map[string]amountCall{
	"deposit":   (*lending.Client).Deposit,
	"borrow":    (*lending.Client).Borrow,
	"repay":     (*lending.Client).Repay,
	"withdraw":  (*lending.Client).Withdraw,
	"flashloan": (*lending.Client).FlashLoan,
}

func amountCommand(name string) func(context.Context, *globals, []string) error {
	return func(ctx context.Context, g *globals, args []string) error {
		fs := flag.NewFlagSet(name, flag.ContinueOnError)
		account := fs.String("account", "", "account, defaults to the token subject")
		rest, err := parseArgs(fs, args)
		if err != nil {
			return err
		}
		if len(rest) != 1 {
			return errUsage
		}
		amount, err := parseAmountArg(rest[0])
		if err != nil {
			return err
		}
		addr, err := optionalAddress(*account)
		if err != nil {
			return err
		}
		c, err := g.client()
		if err != nil {
			return err
		}
		out, err := amountCalls[name](c, ctx, addr, amount)
		if err != nil {
			return err
		}
		return g.print(out)
	}
}

func runClaim(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	account := fs.String("account", "", "account, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}
	addr, err := optionalAddress(*account)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.ClaimRewards(ctx, addr)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runVaultInfo(ctx context.Context, g *globals, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Vault(ctx)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runVaultShares(ctx context.Context, g *globals, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	addr, err := crypto.ParseAddress(args[0])
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.VaultShares(ctx, addr)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runVaultDeposit(ctx context.Context, g *globals, args []string) error {
	return vaultAmount(ctx, g, "vault-deposit", args, (*lending.Client).VaultDeposit)
}

func runVaultWithdraw(ctx context.Context, g *globals, args []string) error {
	return vaultAmount(ctx, g, "vault-withdraw", args, (*lending.Client).VaultWithdraw)
}

func vaultAmount(ctx context.Context, g *globals, name string, args []string, call func(*lending.Client, context.Context, common.Address, *big.Int) (*api.VaultTxResponse, error)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	account := fs.String("account", "", "account, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errUsage
	}
	amount, err := parseAmountArg(rest[0])
	if err != nil {
		return err
	}
	addr, err := optionalAddress(*account)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := call(c, ctx, addr, amount)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runVaultHarvest(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("vault-harvest", flag.ContinueOnError)
	account := fs.String("account", "", "harvest agent, defaults to the token subject")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}
	addr, err := optionalAddress(*account)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.VaultHarvest(ctx, addr)
	if err != nil {
		return err
	}
	return g.print(out)
}

func runEvents(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	account := fs.String("account", "", "filter by account")
	kind := fs.String("type", "", "filter by event type")
	txHash := fs.String("tx", "", "filter by transaction hash")
	after := fs.Uint64("after", 0, "return events after this sequence")
	limit := fs.Int("limit", 0, "page size")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}
	addr, err := optionalAddress(*account)
	if err != nil {
		return err
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	out, err := c.Events(ctx, lending.EventsQuery{Account: addr, Type: *kind, TxHash: *txHash, After: *after, Limit: *limit})
	if err != nil {
		return err
	}
	return g.print(out)
}

// runWatch prints streamed events until the command context ends.
func runWatch(ctx context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	types := fs.String("types", "", "comma separated event types")
	account := fs.String("account", "", "only events touching this account")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}
	addr, err := optionalAddress(*account)
	if err != nil {
		return err
	}
	filter := lending.StreamFilter{Account: addr}
	for _, t := range strings.Split(*types, ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.Types = append(filter.Types, t)
		}
	}
	c, err := g.client()
	if err != nil {
		return err
	}
	stream, err := c.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := g.print(ev); err != nil {
			return err
		}
	}
}
