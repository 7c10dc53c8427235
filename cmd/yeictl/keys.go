package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/cmd/internal/passphrase"
	"yeifinance/config"
	"yeifinance/crypto"
	"yeifinance/services/lending/middleware"
)

const (
	defaultPassEnv   = "YEI_KEYSTORE_PASS"
	defaultSecretEnv = "YEI_JWT_SECRET"
)

type keyInfo struct {
	Address string `json:"address"`
	Bech32  string `json:"bech32"`
	Path    string `json:"keystore,omitempty"`
}

func runKeygen(_ context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "", "keystore output path")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the passphrase")
	light := fs.Bool("light", false, "use light scrypt parameters (development only)")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 || strings.TrimSpace(*out) == "" {
		return errUsage
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("keystore %s already exists; pass --force to overwrite", *out)
	}
	pass, err := passphrase.NewSource(*passEnv).Get()
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
		return fmt.Errorf("write keystore: %w", err)
	}
	addr := key.Address()
	return g.print(keyInfo{Address: addr.Hex(), Bech32: crypto.Bech32(addr), Path: *out})
}

func runAddress(_ context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the passphrase")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return errUsage
	}
	addr, err := keystoreAddress(rest[0], *passEnv)
	if err != nil {
		return err
	}
	return g.print(keyInfo{Address: addr.Hex(), Bech32: crypto.Bech32(addr), Path: rest[0]})
}

func keystoreAddress(path, passEnv string) (common.Address, error) {
	pass, err := passphrase.NewSource(passEnv).Get()
	if err != nil {
		return common.Address{}, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return common.Address{}, fmt.Errorf("open keystore: %w", err)
	}
	return key.Address(), nil
}

// runToken signs a bearer token with the shared HMAC secret the daemon
// verifies. It is meant for operators and local development.
func runToken(_ context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "account the token acts for")
	keystorePath := fs.String("keystore", "", "derive the subject from a keystore")
	passEnv := fs.String("pass-env", defaultPassEnv, "environment variable holding the keystore passphrase")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "environment variable holding the JWT secret")
	scopes := fs.String("scopes", "", "comma separated scopes, e.g. admin")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 || (*subject == "") == (*keystorePath == "") {
		return errUsage
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("%s must hold the daemon jwt secret", *secretEnv)
	}
	var addr common.Address
	if *keystorePath != "" {
		addr, err = keystoreAddress(*keystorePath, *passEnv)
	} else {
		addr, err = crypto.ParseAddress(*subject)
	}
	if err != nil {
		return err
	}
	var scopeList []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopeList = append(scopeList, s)
		}
	}
	token, err := middleware.IssueToken(secret, middleware.TokenRequest{
		Subject:  addr,
		Scopes:   scopeList,
		Issuer:   *issuer,
		Audience: *audience,
		TTL:      *ttl,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(g.stdout, token)
	return err
}

func runGenesisInit(_ context.Context, g *globals, args []string) error {
	fs := flag.NewFlagSet("genesis-init", flag.ContinueOnError)
	out := fs.String("out", "genesis.toml", "genesis output path")
	deployer := fs.String("deployer", "", "account receiving the initial allocations")
	rest, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return errUsage
	}
	addr, err := crypto.ParseAddress(*deployer)
	if err != nil {
		return fmt.Errorf("deployer: %w", err)
	}
	if err := config.WriteGenesis(*out, config.DefaultGenesis(addr)); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "wrote %s\n", *out)
	return nil
}
