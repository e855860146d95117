package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Abdullah1738/solana-mpc-deploy/offchain/deploy"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/fordefi"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/helius"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/loader"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solana"
	"github.com/Abdullah1738/solana-mpc-deploy/offchain/solanarpc"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	// Optional .env next to the binary; real env vars win.
	_ = godotenv.Load()

	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(os.Stdout)
		return nil
	}

	switch argv[0] {
	case "deploy":
		return cmdDeploy(argv[1:])
	case "reclaim":
		return cmdReclaim(argv[1:])
	case "keygen":
		return cmdKeygen(argv[1:])
	case "balance":
		return cmdBalance(argv[1:])
	case "airdrop":
		return cmdAirdrop(argv[1:])
	default:
		return fmt.Errorf("unknown command: %s", argv[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "mpc-deploy: deploy Solana programs through a Fordefi vault")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mpc-deploy deploy --program-so <path.so> [--buffer-keypair <path>] [--program-keypair <path>] [--priority-fee <microLamports>|auto]")
	fmt.Fprintln(w, "  mpc-deploy reclaim <buffer-address> [--recipient <base58>]")
	fmt.Fprintln(w, "  mpc-deploy keygen --out <path> [--force]")
	fmt.Fprintln(w, "  mpc-deploy balance")
	fmt.Fprintln(w, "  mpc-deploy airdrop --lamports <n>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  SOLANA_RPC_URL              JSON-RPC endpoint")
	fmt.Fprintln(w, "  FORDEFI_API_TOKEN           API user access token")
	fmt.Fprintln(w, "  FORDEFI_API_SIGNER_KEY      path to the PEM ECDSA request-signing key")
	fmt.Fprintln(w, "  FORDEFI_VAULT_ID            vault id holding the fee payer key")
	fmt.Fprintln(w, "  FORDEFI_VAULT_ADDRESS       vault's Solana address (base58)")
	fmt.Fprintln(w, "  FORDEFI_CHAIN               solana_mainnet (default) or solana_devnet")
	fmt.Fprintln(w, "  FORDEFI_BASE_URL            API base URL override (optional)")
	fmt.Fprintln(w, "  HELIUS_API_KEY              Helius key for --priority-fee auto (optional)")
	fmt.Fprintln(w, "  HELIUS_RPC_URL              full Helius endpoint override (optional)")
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

type env struct {
	rpc      *solanarpc.Client
	oracle   *fordefi.Client
	vaultID  string
	feePayer solana.Pubkey
	chain    fordefi.Chain
}

func loadEnv() (*env, error) {
	rpc, err := solanarpc.ClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("SOLANA_RPC_URL: %w", err)
	}

	token := strings.TrimSpace(os.Getenv("FORDEFI_API_TOKEN"))
	if token == "" {
		return nil, errors.New("FORDEFI_API_TOKEN is required")
	}
	keyPath := strings.TrimSpace(os.Getenv("FORDEFI_API_SIGNER_KEY"))
	if keyPath == "" {
		return nil, errors.New("FORDEFI_API_SIGNER_KEY is required")
	}
	signingKey, err := fordefi.LoadAPISignerKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load api signer key: %w", err)
	}

	vaultID := strings.TrimSpace(os.Getenv("FORDEFI_VAULT_ID"))
	if vaultID == "" {
		return nil, errors.New("FORDEFI_VAULT_ID is required")
	}
	feePayer, err := solana.ParsePubkey(os.Getenv("FORDEFI_VAULT_ADDRESS"))
	if err != nil {
		return nil, fmt.Errorf("FORDEFI_VAULT_ADDRESS: %w", err)
	}

	chain := fordefi.Chain(strings.TrimSpace(os.Getenv("FORDEFI_CHAIN")))
	if chain == "" {
		chain = fordefi.ChainMainnet
	}

	return &env{
		rpc:      rpc,
		oracle:   fordefi.NewClient(os.Getenv("FORDEFI_BASE_URL"), token, signingKey, nil),
		vaultID:  vaultID,
		feePayer: feePayer,
		chain:    chain,
	}, nil
}

func (e *env) deployer(cfg deploy.Config, log zerolog.Logger) *deploy.Deployer {
	cfg.VaultID = e.vaultID
	cfg.Chain = e.chain
	return &deploy.Deployer{
		Ledger: e.rpc,
		Signer: &deploy.OracleSigner{
			Ledger:   e.rpc,
			Oracle:   e.oracle,
			FeePayer: e.feePayer,
			Config:   cfg,
		},
		FeePayer: e.feePayer,
		Config:   cfg,
		Log:      log,
	}
}

// resolvePriorityFee turns the --priority-fee flag into a compute unit price.
// "auto" asks Helius for its recommended price over the accounts the
// deployment touches; empty means no compute budget instruction.
func resolvePriorityFee(ctx context.Context, flagValue string, feePayer solana.Pubkey) (uint64, error) {
	flagValue = strings.TrimSpace(flagValue)
	if flagValue == "" {
		return 0, nil
	}
	if flagValue != "auto" {
		v, err := strconv.ParseUint(flagValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("--priority-fee: %w", err)
		}
		return v, nil
	}

	hc, err := helius.ClientFromEnv()
	if err != nil {
		return 0, fmt.Errorf("--priority-fee auto: %w", err)
	}
	return hc.RecommendedComputeUnitPrice(ctx, []string{
		loader.ProgramID.Base58(),
		feePayer.Base58(),
	})
}

// loadOrGenerateKeypair refuses to reuse an existing keypair file: a buffer
// or program address from an earlier attempt fails account-in-use at
// creation, so reuse is a precondition violation rather than something to
// paper over.
func loadOrGenerateKeypair(path, defaultPath string) (deploy.Keypair, error) {
	if strings.TrimSpace(path) != "" {
		priv, pub, err := solana.LoadKeypairFile(path)
		if err != nil {
			return deploy.Keypair{}, fmt.Errorf("load %s: %w", path, err)
		}
		return deploy.Keypair{Pub: pub, Priv: priv}, nil
	}

	if _, err := os.Stat(defaultPath); err == nil {
		return deploy.Keypair{}, fmt.Errorf(
			"%s exists from an earlier attempt; keypairs must be fresh per deployment (delete it or pass an explicit path)", defaultPath)
	}
	pub, err := solana.GenerateKeypairFile(defaultPath, false)
	if err != nil {
		return deploy.Keypair{}, fmt.Errorf("generate %s: %w", defaultPath, err)
	}
	priv, _, err := solana.LoadKeypairFile(defaultPath)
	if err != nil {
		return deploy.Keypair{}, err
	}
	return deploy.Keypair{Pub: pub, Priv: priv}, nil
}

func cmdDeploy(argv []string) error {
	fs := flag.NewFlagSet("deploy", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		programSO      string
		bufferKeypair  string
		programKeypair string
		priorityFee    string
		skipPreflight  bool
	)
	fs.StringVar(&programSO, "program-so", "", "compiled program binary (.so)")
	fs.StringVar(&bufferKeypair, "buffer-keypair", "", "buffer keypair path (default: generate buffer-keypair.json)")
	fs.StringVar(&programKeypair, "program-keypair", "", "program keypair path (default: generate program-keypair.json)")
	fs.StringVar(&priorityFee, "priority-fee", "", "compute unit price in microLamports, or \"auto\" to ask Helius")
	fs.BoolVar(&skipPreflight, "skip-preflight", false, "skip RPC preflight simulation")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if programSO == "" {
		return errors.New("--program-so is required")
	}

	payload, err := os.ReadFile(programSO)
	if err != nil {
		return fmt.Errorf("read program binary: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}

	unitPrice, err := resolvePriorityFee(context.Background(), priorityFee, e.feePayer)
	if err != nil {
		return err
	}

	buffer, err := loadOrGenerateKeypair(bufferKeypair, "buffer-keypair.json")
	if err != nil {
		return err
	}
	program, err := loadOrGenerateKeypair(programKeypair, "program-keypair.json")
	if err != nil {
		return err
	}

	log := newLogger()
	d := e.deployer(deploy.Config{
		PriorityMicroLamports: unitPrice,
		SkipPreflight:         skipPreflight,
	}, log)

	res, err := d.Deploy(context.Background(), payload, buffer, program)
	if err != nil {
		if buffer.Pub != (solana.Pubkey{}) {
			log.Error().
				Str("buffer", buffer.Pub.Base58()).
				Msg("deployment failed; the buffer may still hold rent — run: mpc-deploy reclaim " + buffer.Pub.Base58())
		}
		return err
	}

	fmt.Println("program id:", res.Program.Base58())
	fmt.Println("programdata:", res.ProgramData.Base58())
	for _, tx := range res.Transactions {
		fmt.Printf("tx %d: %s\n", tx.Index, tx.Signature)
	}
	return nil
}

func cmdReclaim(argv []string) error {
	fs := flag.NewFlagSet("reclaim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var recipient string
	fs.StringVar(&recipient, "recipient", "", "lamport recipient (default: vault address)")

	// Positional buffer address first, flags after.
	if len(argv) == 0 {
		return errors.New("usage: mpc-deploy reclaim <buffer-address> [--recipient <base58>]")
	}
	buffer, err := solana.ParsePubkey(argv[0])
	if err != nil {
		return fmt.Errorf("buffer address: %w", err)
	}
	if err := fs.Parse(argv[1:]); err != nil {
		return err
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	to := e.feePayer
	if recipient != "" {
		to, err = solana.ParsePubkey(recipient)
		if err != nil {
			return fmt.Errorf("recipient: %w", err)
		}
	}

	d := e.deployer(deploy.Config{}, newLogger())
	res, err := d.Reclaim(context.Background(), buffer, to)
	if err != nil {
		return err
	}
	fmt.Println("reclaim tx:", res.Signature)
	return nil
}

func cmdKeygen(argv []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		out   string
		force bool
	)
	fs.StringVar(&out, "out", "", "output keypair path")
	fs.BoolVar(&force, "force", false, "overwrite an existing file")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if out == "" {
		return errors.New("--out is required")
	}

	pub, err := solana.GenerateKeypairFile(out, force)
	if err != nil {
		return err
	}
	fmt.Println(pub.Base58())
	return nil
}

func cmdBalance(argv []string) error {
	if len(argv) != 0 {
		return errors.New("balance takes no arguments")
	}
	e, err := loadEnv()
	if err != nil {
		return err
	}
	lamports, err := e.rpc.BalanceLamports(context.Background(), e.feePayer.Base58())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d lamports\n", e.feePayer.Base58(), lamports)
	return nil
}

func cmdAirdrop(argv []string) error {
	fs := flag.NewFlagSet("airdrop", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var lamports uint64
	fs.Uint64Var(&lamports, "lamports", 0, "amount to request")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if lamports == 0 {
		return errors.New("--lamports is required")
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	sig, err := e.rpc.RequestAirdrop(context.Background(), e.feePayer.Base58(), lamports)
	if err != nil {
		return err
	}
	fmt.Println("airdrop tx:", sig)
	return nil
}
