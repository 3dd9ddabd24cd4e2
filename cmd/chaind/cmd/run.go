package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deltachain/core/chain/chainstate"
	"github.com/deltachain/core/chain/clock"
	"github.com/deltachain/core/chain/engine"
	"github.com/deltachain/core/chain/forkdb"
	"github.com/deltachain/core/chain/genesis"
	"github.com/deltachain/core/chain/kv"
	"github.com/deltachain/core/chain/producer"
	"github.com/deltachain/core/chain/signature"
	"github.com/deltachain/core/chain/taskqueue"
	"github.com/deltachain/core/internal/delegatekey"
	"github.com/deltachain/core/internal/eventstream"
	"github.com/deltachain/core/internal/queryapi"
)

type runConfig struct {
	conf.Version
	Web struct {
		PublicHost      string        `conf:"default:0.0.0.0:8080"`
		ReadTimeout     time.Duration `conf:"default:5s"`
		WriteTimeout    time.Duration `conf:"default:10s"`
		ShutdownTimeout time.Duration `conf:"default:20s"`
	}
	State struct {
		DBPath      string `conf:"default:zchain/state.db"`
		GenesisPath string `conf:"default:zchain/genesis.json"`
	}
	Producer struct {
		Enabled       bool          `conf:"default:false"`
		KeyPath       string        `conf:"default:zchain/delegate.ecdsa"`
		SecretPath    string        `conf:"default:zchain/delegate_secret.json"`
		BlockInterval time.Duration `conf:"default:3s"`
		MaxBlockSize  int           `conf:"default:1048576"`
		MaxTxCount    int           `conf:"default:5000"`
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the chain node: apply blocks, serve queries, optionally produce",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger("CHAIND")
		if err != nil {
			return err
		}
		defer log.Sync()
		return runNode(log)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runNode(log *zap.SugaredLogger) error {
	var cfg runConfig
	cfg.Version = conf.Version{Build: build, Desc: "delegated proof-of-stake chain node"}

	help, err := conf.Parse("CHAIND", &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	printBanner()
	log.Infow("starting", "version", build)
	defer log.Infow("shutdown complete")

	db, err := kv.Open(cfg.State.DBPath)
	if err != nil {
		return fmt.Errorf("opening state db: %w", err)
	}
	defer db.Close()

	opener := func(namespace string) kv.Store { return kv.NewLevelStore(db, namespace) }
	view := chainstate.NewView(opener)
	forks := forkdb.Open(opener)

	evHandler := func(v string, args ...any) { log.Infow(v, args...) }
	tasks := taskqueue.New(64, evHandler)
	defer tasks.Shutdown()

	eng, err := bootstrapOrResume(cfg, view, forks, tasks, evHandler, log)
	if err != nil {
		return err
	}

	stream := eventstream.New()
	eng.Subscribe(stream)

	mux := queryapi.Mux(eng, log)
	mux.GET("/v1/stream", stream.Handler(log))

	api := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      mux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("startup", "status", "api listening", "host", cfg.Web.PublicHost)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	stopProducer := make(chan struct{})
	producerDone := make(chan struct{})
	if cfg.Producer.Enabled {
		go runProducerLoop(cfg, eng, evHandler, log, stopProducer, producerDone)
	} else {
		close(producerDone)
	}

	select {
	case err := <-serverErrors:
		return fmt.Errorf("api server error: %w", err)
	case sig := <-shutdown:
		log.Infow("shutdown", "status", "received signal", "signal", sig)

		close(stopProducer)
		<-producerDone

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api server gracefully: %w", err)
		}
	}
	return nil
}

// bootstrapOrResume loads genesis into a fresh chain, or resumes an
// Engine at the fork tree's current included tip if one already exists.
func bootstrapOrResume(cfg runConfig, view *chainstate.View, forks *forkdb.DB, tasks *taskqueue.Queue, evHandler engine.EventHandler, log *zap.SugaredLogger) (*engine.Engine, error) {
	rest := engine.Config{Tasks: tasks, Clock: clock.New(), EvHandler: evHandler}

	tip, found, err := forks.IncludedTip()
	if err != nil {
		return nil, fmt.Errorf("scanning fork tree: %w", err)
	}
	if found {
		log.Infow("startup", "status", "resuming", "head", tip)
		rest.View = view
		rest.Forks = forks
		return engine.New(rest, tip), nil
	}

	log.Infow("startup", "status", "bootstrapping genesis", "path", cfg.State.GenesisPath)
	desc, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return nil, fmt.Errorf("loading genesis description: %w", err)
	}
	eng, res, err := engine.Bootstrap(desc, view, forks, rest)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping genesis: %w", err)
	}
	log.Infow("startup", "status", "genesis bootstrapped", "chain_id", res.ChainID, "core_asset", res.CoreAssetID)
	return eng, nil
}

func runProducerLoop(cfg runConfig, eng *engine.Engine, evHandler engine.EventHandler, log *zap.SugaredLogger, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	key, err := delegatekey.Load(cfg.Producer.KeyPath, cfg.Producer.SecretPath)
	if err != nil {
		log.Errorw("producer", "status", "disabled: could not load delegate key", "error", err)
		return
	}

	ticker := time.NewTicker(cfg.Producer.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := produceOne(cfg, eng, key, evHandler); err != nil {
				log.Errorw("producer", "status", "block production failed", "error", err)
			}
		}
	}
}

func produceOne(cfg runConfig, eng *engine.Engine, key *delegatekey.Key, evHandler engine.EventHandler) error {
	headID := eng.Head()

	limits := producer.Limits{
		MaxBlockSize:        cfg.Producer.MaxBlockSize,
		MaxTransactionCount: cfg.Producer.MaxTxCount,
		MaxProductionTime:   cfg.Producer.BlockInterval / 2,
	}

	now := time.Now().Unix()
	blk, err := eng.ProduceCandidate(now, limits)
	if err != nil {
		return fmt.Errorf("assembling block: %w", err)
	}

	revealed, err := key.Reveal()
	if err != nil {
		return fmt.Errorf("rotating secret: %w", err)
	}

	blk.Header.PreviousID = headID
	blk.Header.PreviousSecret = revealed
	blk.Header.NextSecretHash = signature.Ripemd160Hex([]byte(key.Secret))

	sig, err := signature.Sign(blk.Header, key.Private)
	if err != nil {
		return fmt.Errorf("signing header: %w", err)
	}
	blk.Header.SigneeSignature = sig
	evHandler("producer", "status", "produced block", "block_num", blk.Header.BlockNum, "tx_count", len(blk.Transactions))

	return eng.PushBlock(blk)
}
