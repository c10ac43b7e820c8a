// gridbot is the grid-trading supervisor daemon and its operator CLI.
//
// Usage: gridbot <command> [flags]
//
// Commands: validate-setup, start, stop, status, create-bot, delete-bot,
// liquidate-all, export-csv, tail-logs.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/botmodel"
	"github.com/web3guy0/polybot/internal/config"
	"github.com/web3guy0/polybot/internal/gridmodel"
	"github.com/web3guy0/polybot/internal/ledger"
	"github.com/web3guy0/polybot/internal/ledgerdb"
	"github.com/web3guy0/polybot/internal/logstream"
	"github.com/web3guy0/polybot/internal/metrics"
	"github.com/web3guy0/polybot/internal/notify"
	"github.com/web3guy0/polybot/internal/onchain"
	"github.com/web3guy0/polybot/internal/oracle"
	"github.com/web3guy0/polybot/internal/riskguard"
	"github.com/web3guy0/polybot/internal/store"
	"github.com/web3guy0/polybot/internal/supervisor"
	"github.com/web3guy0/polybot/internal/tradingbot"
)

const version = "1.0.0"

// Exit codes per spec.md §6.
const (
	exitOK         = 0
	exitValidation = 1
	exitRuntime    = 2
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitValidation)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	st := store.New(cfg.StatePath)

	var code int
	switch os.Args[1] {
	case "validate-setup":
		code = cmdValidateSetup(cfg)
	case "status":
		code = cmdStatus(st)
	case "create-bot":
		code = cmdCreateBot(st, os.Args[2:])
	case "delete-bot":
		code = cmdDeleteBot(st, os.Args[2:])
	case "export-csv":
		code = cmdExportCSV(st, os.Args[2:])
	case "start":
		code = cmdStart(cfg, st)
	case "stop":
		code = cmdStop(st, os.Args[2:])
	case "liquidate-all":
		code = cmdLiquidateAll(cfg, st, os.Args[2:])
	case "tail-logs":
		code = cmdTailLogs(os.Args[2:])
	default:
		usage()
		code = exitValidation
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gridbot <validate-setup|start|stop|status|create-bot|delete-bot|liquidate-all|export-csv|tail-logs> [flags]")
}

func cmdValidateSetup(cfg *config.Config) int {
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("setup invalid")
		return exitValidation
	}
	log.Info().Msg("setup valid")
	return exitOK
}

func cmdStatus(st *store.Store) int {
	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	fmt.Printf("bots: %d\n", len(snap.Bots))
	for _, b := range snap.Bots {
		fmt.Printf("  %-12s %-20s mode=%-6s enabled=%-5t running=%-5t positions=%d profit=%s ETH\n",
			b.ID, b.Name, b.Mode, b.Enabled, b.IsRunning, len(b.Positions), b.TotalProfitEth.StringFixed(6))
	}
	fmt.Printf("circuit breaker triggered: %t\n", snap.CircuitBreaker.Triggered)
	return exitOK
}

func cmdCreateBot(st *store.Store, args []string) int {
	fs := flag.NewFlagSet("create-bot", flag.ExitOnError)
	id := fs.String("id", "", "bot id")
	name := fs.String("name", "", "bot name")
	token := fs.String("token", "", "token contract address")
	symbol := fs.String("symbol", "", "token symbol")
	wallet := fs.String("wallet", "", "signing wallet address")
	numPositions := fs.Int("positions", 5, "number of grid positions")
	floor := fs.String("floor", "0", "grid floor price")
	ceiling := fs.String("ceiling", "0", "grid ceiling price")
	takeProfit := fs.String("take-profit-pct", "10", "take profit percent")
	minProfit := fs.String("min-profit-pct", "1", "minimum profit percent per sell")
	heartbeatMs := fs.Int64("heartbeat-ms", 5000, "tick cadence in milliseconds")
	buyAmountWei := fs.String("buy-amount-wei", "0", "fixed buy amount in wei (0 = auto-sized)")
	fromFile := fs.String("from-file", "", "bootstrap a fleet of bots from a bots.yaml file instead of the flags above")
	fs.Parse(args)

	if *fromFile != "" {
		return cmdCreateBotsFromFile(st, *fromFile)
	}

	if *id == "" || *token == "" || *wallet == "" {
		fmt.Fprintln(os.Stderr, "create-bot requires -id, -token, -wallet (or -from-file)")
		return exitValidation
	}

	bot, err := newGridBot(gridBotSpec{
		ID: *id, Name: *name, Token: *token, Symbol: *symbol, Wallet: *wallet,
		NumPositions: *numPositions, Floor: *floor, Ceiling: *ceiling,
		TakeProfitPct: *takeProfit, MinProfitPct: *minProfit,
		HeartbeatMs: *heartbeatMs, BuyAmountWei: *buyAmountWei,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-bot: %v\n", err)
		return exitValidation
	}

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	if err := appendBots(snap, bot); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitValidation
	}
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to save state")
		return exitRuntime
	}
	log.Info().Str("bot", bot.ID).Msg("bot created")
	return exitOK
}

// cmdCreateBotsFromFile implements create-bot -from-file: a one-shot
// bootstrap of a whole bot fleet from a bots.yaml manifest, per
// SPEC_FULL.md's domain-stack wiring of gopkg.in/yaml.v3. The JSON store
// remains the persisted record of truth — the YAML file is read once and
// never written back to.
func cmdCreateBotsFromFile(st *store.Store, path string) int {
	specs, err := loadFleetManifest(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-bot -from-file: %v\n", err)
		return exitValidation
	}

	bots := make([]*botmodel.BotInstance, 0, len(specs))
	for i, spec := range specs {
		bot, err := newGridBot(spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create-bot -from-file: entry %d: %v\n", i, err)
			return exitValidation
		}
		bots = append(bots, bot)
	}

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	if err := appendBots(snap, bots...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitValidation
	}
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to save state")
		return exitRuntime
	}
	log.Info().Int("count", len(bots)).Msg("bot fleet created from file")
	return exitOK
}

// appendBots adds new bots to snap, rejecting any id collision — with
// either an existing bot or another entry in the same batch — before
// mutating snap, so a bad manifest entry never leaves a partial write.
func appendBots(snap *store.Snapshot, bots ...*botmodel.BotInstance) error {
	seen := make(map[string]struct{}, len(snap.Bots))
	for _, existing := range snap.Bots {
		seen[existing.ID] = struct{}{}
	}
	for _, b := range bots {
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("bot %q already exists", b.ID)
		}
		seen[b.ID] = struct{}{}
	}
	snap.Bots = append(snap.Bots, bots...)
	return nil
}

// gridBotSpec is the flag-driven or YAML-driven description of one grid
// bot to create.
type gridBotSpec struct {
	ID, Name, Token, Symbol, Wallet string
	NumPositions                    int
	Floor, Ceiling                  string
	TakeProfitPct, MinProfitPct     string
	HeartbeatMs                     int64
	BuyAmountWei                    string
}

// newGridBot builds a BotInstance and its initial grid from a spec,
// generating a fleet-unique id via uuid when the spec omits one (the
// -from-file bootstrap path; the single-bot CLI flags always require
// -id explicitly).
func newGridBot(spec gridBotSpec) (*botmodel.BotInstance, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	if spec.Token == "" || spec.Wallet == "" {
		return nil, fmt.Errorf("token and wallet are required")
	}

	floorDec, err1 := decimal.NewFromString(spec.Floor)
	ceilingDec, err2 := decimal.NewFromString(spec.Ceiling)
	tpDec, err3 := decimal.NewFromString(spec.TakeProfitPct)
	mpDec, err4 := decimal.NewFromString(spec.MinProfitPct)
	buyAmt, ok5 := new(big.Int).SetString(spec.BuyAmountWei, 10)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || !ok5 {
		return nil, fmt.Errorf("invalid numeric field")
	}

	numPositions := spec.NumPositions
	if numPositions == 0 {
		numPositions = 5
	}
	heartbeatMs := spec.HeartbeatMs
	if heartbeatMs == 0 {
		heartbeatMs = 5000
	}

	gridCfg := botmodel.GridConfig{
		NumPositions:       numPositions,
		FloorPrice:         floorDec,
		CeilingPrice:       ceilingDec,
		TakeProfitPercent:  tpDec,
		MinProfitPercent:   mpDec,
		BuysEnabled:        true,
		SellsEnabled:       true,
		MaxActivePositions: numPositions,
		UseFixedBuyAmount:  buyAmt.Sign() > 0,
		BuyAmount:          buyAmt,
		HeartbeatMs:        heartbeatMs,
	}

	positions, err := gridmodel.GenerateGrid(gridCfg)
	if err != nil {
		return nil, fmt.Errorf("generate grid: %w", err)
	}

	now := time.Now()
	bot := &botmodel.BotInstance{
		ID: id, Name: spec.Name, Chain: "base",
		TokenAddress: spec.Token, TokenSymbol: spec.Symbol, WalletAddress: spec.Wallet,
		Mode: botmodel.ModeGrid, Config: gridCfg, Positions: positions,
		Enabled: true, CreatedAt: now, LastUpdated: now,
		TotalProfitEth: decimal.Zero,
	}
	bot.ResetSkipCounter()
	return bot, nil
}

func cmdDeleteBot(st *store.Store, args []string) int {
	fs := flag.NewFlagSet("delete-bot", flag.ExitOnError)
	id := fs.String("id", "", "bot id")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "delete-bot requires -id")
		return exitValidation
	}

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	kept := snap.Bots[:0]
	found := false
	for _, b := range snap.Bots {
		if b.ID == *id {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "bot %q not found\n", *id)
		return exitValidation
	}
	snap.Bots = kept
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to save state")
		return exitRuntime
	}
	log.Info().Str("bot", *id).Msg("bot deleted")
	return exitOK
}

func cmdStop(st *store.Store, args []string) int {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	id := fs.String("id", "", "bot id to stop (all bots if omitted)")
	fs.Parse(args)

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	matched := false
	for _, b := range snap.Bots {
		if *id != "" && b.ID != *id {
			continue
		}
		b.IsRunning = false
		matched = true
	}
	if *id != "" && !matched {
		fmt.Fprintf(os.Stderr, "bot %q not found\n", *id)
		return exitValidation
	}
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to save state")
		return exitRuntime
	}
	log.Info().Msg("stopped")
	return exitOK
}

func cmdExportCSV(st *store.Store, args []string) int {
	fs := flag.NewFlagSet("export-csv", flag.ExitOnError)
	out := fs.String("out", "", "output file path (stdout if omitted)")
	fs.Parse(args)

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	led := ledger.New(snap.Trades)

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Error().Err(err).Msg("failed to create output file")
			return exitRuntime
		}
		defer f.Close()
		w = f
	}
	if err := led.WriteCSV(w); err != nil {
		log.Error().Err(err).Msg("failed to write csv")
		return exitRuntime
	}
	return exitOK
}

func cmdTailLogs(args []string) int {
	fs := flag.NewFlagSet("tail-logs", flag.ExitOnError)
	addr := fs.String("addr", "", "websocket address of a running daemon (ws://host:port/logs/ws)")
	path := fs.String("file", "", "local log file to tail if -addr is not set")
	fs.Parse(args)

	if *addr != "" {
		return tailLogsWebsocket(*addr)
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "tail-logs requires -addr or -file")
		return exitValidation
	}
	return tailLogsFile(*path)
}

// tailLogsWebsocket connects to a running daemon's live log stream,
// per spec.md §6's tail-logs command over internal/logstream's hub.
func tailLogsWebsocket(addr string) int {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to log stream")
		return exitRuntime
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return exitOK
		}
		os.Stdout.Write(msg)
	}
}

// tailLogsFile follows a local log file by polling, for debugging
// without a running daemon to connect to.
func tailLogsFile(path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open log file")
		return exitRuntime
	}
	defer f.Close()

	f.Seek(0, io.SeekEnd)
	buf := make([]byte, 4096)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// newBoundaryRPC/newBoundaryDEX/newBoundaryVault construct the three
// external collaborators spec.md §1 fixes as out-of-scope contracts
// (signing vault, DEX aggregator client, RPC client). A deployment wires
// its own concrete implementations here; none are bundled in this module.
var (
	newBoundaryRPC   func(cfg *config.Config) (onchain.RPCClient, error)
	newBoundaryDEX   func(cfg *config.Config) (onchain.DEXAggregator, error)
	newBoundaryVault func(cfg *config.Config) (onchain.Vault, error)
)

func buildController(cfg *config.Config, led *ledger.Ledger, breaker *riskguard.CircuitBreaker, notifier tradingbot.Notifier, allBots func() []botmodel.BotInstance) (*tradingbot.Controller, error) {
	if newBoundaryRPC == nil || newBoundaryDEX == nil || newBoundaryVault == nil {
		return nil, fmt.Errorf("no on-chain RPC/DEX/vault adapter configured for this deployment")
	}
	rpc, err := newBoundaryRPC(cfg)
	if err != nil {
		return nil, fmt.Errorf("rpc client: %w", err)
	}
	dex, err := newBoundaryDEX(cfg)
	if err != nil {
		return nil, fmt.Errorf("dex aggregator: %w", err)
	}
	vault, err := newBoundaryVault(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	chain, ok := onchain.ChainByID(cfg.ChainID)
	if !ok {
		return nil, fmt.Errorf("unrecognized chain id %d", cfg.ChainID)
	}

	pref := oracle.PreferUniswapV3
	if cfg.PreferChainlink {
		pref = oracle.PreferChainlink
	}
	agg := oracle.NewAggregator(rpc, oracle.ChainAddresses{
		UniswapV3Factory: chain.UniswapV3Factory,
		WETH:             chain.WETH,
	}, nil, pref, true)

	gasReserve, _ := new(big.Int).SetString(cfg.GasReserveWei.StringFixed(0), 10)

	return &tradingbot.Controller{
		Oracle:        agg,
		RPC:           rpc,
		Vault:         vault,
		DEX:           dex,
		Breaker:       breaker,
		Ledger:        led,
		Notifier:      notifier,
		MinConfidence: cfg.MinPriceConfidence,
		GasReserveWei: gasReserve,
		SlippageBp:    cfg.SlippageBp,
		WETHAddress:   chain.WETH,
		AllBots:       allBots,

		PriceFetchTimeout: cfg.PriceFetchTimeout,
		QuoteTimeout:      cfg.QuoteTimeout,
		ReceiptTimeout:    cfg.ReceiptTimeout,
	}, nil
}

func cmdStart(cfg *config.Config, st *store.Store) int {
	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}

	led := ledger.New(snap.Trades)
	if cfg.LedgerDSN != "" {
		ldb, err := ledgerdb.New(cfg.LedgerDSN)
		if err != nil {
			log.Warn().Err(err).Msg("ledger SQL mirror disabled")
		} else {
			led.OnRecord = func(t botmodel.TradeRecord) {
				if err := ldb.RecordTrade(t); err != nil {
					log.Error().Err(err).Str("tx", t.TxHash).Msg("failed to mirror trade to SQL")
				}
			}
			defer ldb.Close()
		}
	}

	breaker := riskguard.Restore(riskguard.Config{
		MaxDailyLossPercent: cfg.Risk.MaxDailyLossPercent,
		MaxTotalLossPercent: cfg.Risk.MaxTotalLossPercent,
		CooldownMinutes:     cfg.Risk.CooldownMinutes,
		AutoResetAtMidnight: cfg.Risk.AutoResetAtMidnight,
	}, snap.CircuitBreaker)

	sinks := []tradingbot.Notifier{notify.LogSink{}}
	if cfg.TelegramBotToken != "" {
		if tg, err := notify.NewTelegramSink(); err != nil {
			log.Warn().Err(err).Msg("telegram notifications disabled")
		} else {
			sinks = append(sinks, tg)
		}
	}
	notifier := notify.New(sinks...)
	breaker.OnTrip(func(reason string, _ riskguard.CheckResult) {
		notifier.Notify(tradingbot.Event{Kind: tradingbot.EventCircuitBreaker, Message: reason})
	})

	allBots := func() []botmodel.BotInstance {
		out := make([]botmodel.BotInstance, len(snap.Bots))
		for i, b := range snap.Bots {
			out[i] = *b
		}
		return out
	}

	ctrl, err := buildController(cfg, led, breaker, notifier, allBots)
	if err != nil {
		log.Error().Err(err).Msg("failed to build trading controller")
		return exitRuntime
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if ctrl.RPC != nil {
		store.Reconcile(ctx, snap, ctrl.RPC)
	}

	sup := supervisor.New(st, ctrl)
	for _, b := range snap.Bots {
		sup.AddBot(b)
	}

	hub := logstream.NewHub()
	log.Logger = log.Output(io.MultiWriter(zerolog.ConsoleWriter{Out: os.Stderr}, hub))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/logs/ws", hub)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	sup.Start()
	log.Info().Str("version", version).Msg("gridbot started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	sup.Stop()
	metricsServer.Shutdown(ctx)

	snap.CircuitBreaker = breaker.Snapshot()
	snap.Trades = led.All()
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to persist state on shutdown")
		return exitRuntime
	}
	return exitOK
}

func cmdLiquidateAll(cfg *config.Config, st *store.Store, args []string) int {
	fs := flag.NewFlagSet("liquidate-all", flag.ExitOnError)
	id := fs.String("id", "", "bot id to liquidate")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "liquidate-all requires -id")
		return exitValidation
	}

	snap, err := st.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load state")
		return exitRuntime
	}
	var bot *botmodel.BotInstance
	for _, b := range snap.Bots {
		if b.ID == *id {
			bot = b
			break
		}
	}
	if bot == nil {
		fmt.Fprintf(os.Stderr, "bot %q not found\n", *id)
		return exitValidation
	}

	led := ledger.New(snap.Trades)
	notifier := notify.New(notify.LogSink{})
	ctrl, err := buildController(cfg, led, nil, notifier, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to build trading controller")
		return exitRuntime
	}

	result := ctrl.LiquidateAll(context.Background(), bot)
	snap.Trades = led.All()
	if err := st.Save(snap); err != nil {
		log.Error().Err(err).Msg("failed to persist state")
		return exitRuntime
	}
	fmt.Printf("liquidated: %d succeeded, %d failed\n", result.Success, result.Failed)
	if result.Failed > 0 {
		return exitRuntime
	}
	return exitOK
}
