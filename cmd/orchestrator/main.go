package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/warren/pkg/accounting"
	"github.com/cuemby/warren/pkg/api"
	"github.com/cuemby/warren/pkg/auth"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/packager"
	"github.com/cuemby/warren/pkg/reconciler"
	"github.com/cuemby/warren/pkg/scheduler"
	"github.com/cuemby/warren/pkg/security"
	"github.com/cuemby/warren/pkg/storage"
	"github.com/cuemby/warren/pkg/submission"
	"github.com/cuemby/warren/pkg/types"
	"github.com/cuemby/warren/pkg/validator"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orchestrator",
	Short:   "Radio-astronomy job orchestration service",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.DocStoreURI)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()

	registry := validator.NewRegistry()
	validator.RegisterBuiltinApps(registry)

	local, orchestrator, hpc, err := buildAdapter(cfg, store)
	if err != nil {
		return err
	}
	dispatcher := scheduler.NewDispatcher(local, orchestrator, hpc)

	pkgr := packager.New()
	recon := reconciler.New(store, dispatcher, pkgr, cfg.MonitorPeriod())
	recon.Start()
	defer recon.Stop()

	acct := accounting.New(store, store, cfg.DataRoot, cfg.JobRoot, cfg.AccounterPeriod())
	acct.Start()
	defer acct.Stop()

	verifier := buildVerifier(cfg)

	limits := validator.RuntimeLimits{MaxNThreads: cfg.LocalMaxNThreads, MaxNProc: cfg.LocalMaxNProc}
	ctrl := submission.New(store, registry, dispatcher, cfg.JobRoot, types.SchedulerKind(cfg.JobScheduler), limits)

	server := api.New(cfg, api.Deps{
		Store:      store,
		Registry:   registry,
		Dispatcher: dispatcher,
		Submission: ctrl,
		Packager:   pkgr,
		Verifier:   verifier,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildAdapter constructs exactly the scheduler.Adapter matching
// cfg.JobScheduler, leaving the other two backend slots nil; a deployment
// runs against one configured backend at a time.
func buildAdapter(cfg *config.Config, store storage.JobStore) (local, orchestrator, hpc scheduler.Adapter, err error) {
	switch types.SchedulerKind(cfg.JobScheduler) {
	case types.SchedulerLocal:
		local = scheduler.NewLocalAdapter(store, cfg.MonitorPeriod(), cfg.LocalSoftTimeLimit(), cfg.LocalWorkerCount)
	case types.SchedulerOrchestrator:
		clientset, kerr := buildKubernetesClient(cfg)
		if kerr != nil {
			return nil, nil, nil, kerr
		}
		orchestrator = scheduler.NewOrchestratorAdapter(clientset, scheduler.OrchestratorConfig{
			Namespace:              cfg.OrchestratorNamespace,
			RemoteStorageSecret:    cfg.RemoteStorageName,
			RemoteStorageMountPath: cfg.RemoteStorageMountPath,
		})
	case types.SchedulerHPC:
		minter, merr := security.NewTokenMinter(cfg.HPCKeyPath, cfg.HPCUser, cfg.HPCTokenLifetime(), cfg.HPCTokenHeadroom())
		if merr != nil {
			return nil, nil, nil, merr
		}
		hpc = scheduler.NewHPCAdapter(minter, scheduler.HPCConfig{
			BaseURL:         fmt.Sprintf("https://%s:%d", cfg.HPCHost, cfg.HPCPort),
			Queue:           cfg.HPCQueue,
			ClusterUser:     cfg.HPCUser,
			BatchWorkdir:    cfg.HPCBatchWorkdir,
			JobDirMap:       scheduler.HPCPathMap{ServerPrefix: cfg.HPCAppToClusterJobDir[0], ClusterPrefix: cfg.HPCAppToClusterJobDir[1]},
			DataDirMap:      scheduler.HPCPathMap{ServerPrefix: cfg.HPCAppToClusterDataDir[0], ClusterPrefix: cfg.HPCAppToClusterDataDir[1]},
			MaxCoresPerTask: cfg.HPCMaxCores,
			MaxTasks:        cfg.HPCMaxTasks,
			RequestTimeout:  cfg.HPCRequestTimeout(),
		})
	default:
		return nil, nil, nil, fmt.Errorf("unknown job_scheduler %q", cfg.JobScheduler)
	}
	return local, orchestrator, hpc, nil
}

func buildKubernetesClient(cfg *config.Config) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error
	if cfg.OrchestratorInCluster {
		restCfg, err = rest.InClusterConfig()
	} else {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.OrchestratorConfigPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kubernetes client config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

func buildVerifier(cfg *config.Config) auth.Verifier {
	if !cfg.AuthEnabled {
		return auth.Disabled{}
	}
	return auth.NewJWTVerifier([]byte(cfg.AuthClientSecrets), "email")
}
