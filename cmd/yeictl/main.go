package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"
)

const (
	defaultURL     = "http://127.0.0.1:8080"
	urlEnv         = "YEI_API_URL"
	tokenEnv       = "YEI_API_TOKEN"
	defaultTimeout = 30 * time.Second
)

var errUsage = errors.New("usage")

// globals holds the flags shared by every command.
type globals struct {
	url     string
	token   string
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, g *globals, args []string) error
}

var commands = map[string]command{
	"keygen":         {"keygen --out <path> [--pass-env VAR] [--light]", runKeygen},
	"address":        {"address <keystore> [--pass-env VAR]", runAddress},
	"token":          {"token (--subject <addr> | --keystore <path>) [--scopes a,b] [--ttl 1h]", runToken},
	"genesis-init":   {"genesis-init --out <path> --deployer <addr>", runGenesisInit},
	"protocol":       {"protocol", runProtocol},
	"position":       {"position <address>", runPosition},
	"token-info":     {"token-info <symbol>", runTokenInfo},
	"balance":        {"balance <symbol> <address>", runBalance},
	"approve":        {"approve <symbol> <amount> [--spender pool|vault|<addr>] [--owner addr]", runApprove},
	"transfer":       {"transfer <symbol> <to> <amount> [--from addr]", runTransfer},
	"mint":           {"mint <symbol> <to> <amount> [--authority addr]", runMint},
	"deposit":        {"deposit <amount> [--account addr]", amountCommand("deposit")},
	"borrow":         {"borrow <amount> [--account addr]", amountCommand("borrow")},
	"repay":          {"repay <amount> [--account addr]", amountCommand("repay")},
	"withdraw":       {"withdraw <amount> [--account addr]", amountCommand("withdraw")},
	"flashloan":      {"flashloan <amount> [--account addr]", amountCommand("flashloan")},
	"claim":          {"claim [--account addr]", runClaim},
	"vault":          {"vault", runVaultInfo},
	"vault-shares":   {"vault-shares <address>", runVaultShares},
	"vault-deposit":  {"vault-deposit <assets> [--account addr]", runVaultDeposit},
	"vault-withdraw": {"vault-withdraw <shares> [--account addr]", runVaultWithdraw},
	"vault-harvest":  {"vault-harvest [--account addr]", runVaultHarvest},
	"events":         {"events [--account addr] [--type t] [--tx hash] [--after seq] [--limit n]", runEvents},
	"watch":          {"watch [--types a,b] [--account addr]", runWatch},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	g := &globals{stdout: stdout, stderr: stderr}
	fs := flag.NewFlagSet("yeictl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.url, "url", envOr(urlEnv, defaultURL), "lendingd base URL")
	fs.StringVar(&g.token, "token", os.Getenv(tokenEnv), "bearer token for mutating calls")
	fs.DurationVar(&g.timeout, "timeout", defaultTimeout, "per-command timeout")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return errUsage
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		printUsage(stderr)
		return errUsage
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	err := cmd.run(ctx, g, rest[1:])
	if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "usage: yeictl %s\n", cmd.usage)
	}
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: yeictl [--url URL] [--token JWT] [--timeout 30s] <command> [args]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
