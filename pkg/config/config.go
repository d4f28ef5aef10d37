// Package config loads the orchestration service's configuration from a
// single YAML file into one immutable value, passed by pointer into every
// component constructor at startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved configuration for one running instance.
// It is loaded once in cmd/orchestrator and never mutated afterwards.
type Config struct {
	JobRoot              string   `yaml:"job_root"`
	DataRoot             string   `yaml:"data_root"`
	UploadAllowedFormats []string `yaml:"upload_allowed_formats"`
	MaxUploadBytes       int64    `yaml:"max_upload_bytes"`

	JobScheduler string `yaml:"job_scheduler"` // local | orchestrator | hpc

	MonitorPeriodSec   int `yaml:"monitor_period_sec"`
	AccounterPeriodSec int `yaml:"accounter_period_sec"`

	LocalWorkerCount      int `yaml:"local_worker_count"`
	LocalMaxNThreads      int `yaml:"local_max_nthreads"`
	LocalMaxNProc         int `yaml:"local_max_nproc"`
	LocalSoftTimeLimitSec int `yaml:"local_soft_time_limit_sec"`

	OrchestratorInCluster  bool   `yaml:"orchestrator_in_cluster"`
	OrchestratorConfigPath string `yaml:"orchestrator_config_path"`
	OrchestratorCert       string `yaml:"orchestrator_cert"`
	OrchestratorKey        string `yaml:"orchestrator_key"`
	OrchestratorCA         string `yaml:"orchestrator_ca"`
	OrchestratorNamespace  string `yaml:"orchestrator_namespace"`

	HPCHost                string            `yaml:"hpc_host"`
	HPCPort                int               `yaml:"hpc_port"`
	HPCUser                string            `yaml:"hpc_user"`
	HPCKeyPath             string            `yaml:"hpc_key_path"`
	HPCQueue               string            `yaml:"hpc_queue"`
	HPCBatchWorkdir        string            `yaml:"hpc_batch_workdir"`
	HPCAppToClusterJobDir  [2]string         `yaml:"hpc_app_to_cluster_job_dir"`
	HPCAppToClusterDataDir [2]string         `yaml:"hpc_app_to_cluster_data_dir"`
	HPCMaxCores            int               `yaml:"hpc_max_cores"`
	HPCMaxTasks            int               `yaml:"hpc_max_tasks"`
	HPCTokenHeadroomSec    int               `yaml:"hpc_token_headroom_sec"`
	HPCTokenLifetimeSec    int               `yaml:"hpc_token_lifetime_sec"`
	HPCRequestTimeoutSec   int               `yaml:"hpc_request_timeout_sec"`

	RemoteStorageMountPath string `yaml:"remote_storage_mount_path"`
	RemoteStorageName      string `yaml:"remote_storage_name"`
	RemoteStoragePath      string `yaml:"remote_storage_path"`

	AuthEnabled       bool   `yaml:"auth_enabled"`
	AuthClientSecrets string `yaml:"auth_client_secrets"`
	AuthRealm         string `yaml:"auth_realm"`

	DocStoreURI string `yaml:"doc_store_uri"`

	ListenAddr string `yaml:"listen_addr"`
}

// Default returns a Config with the same defaults the service ships with
// when no file overrides them.
func Default() *Config {
	return &Config{
		JobRoot:               "/var/lib/orchestrator/jobs",
		DataRoot:              "/var/lib/orchestrator/data",
		UploadAllowedFormats:  []string{"png", "jpg", "jpeg", "gif", "fits"},
		MaxUploadBytes:        1 << 30,
		JobScheduler:          "local",
		MonitorPeriodSec:      5,
		AccounterPeriodSec:    60,
		LocalWorkerCount:      4,
		LocalMaxNThreads:      16,
		LocalMaxNProc:         8,
		LocalSoftTimeLimitSec: 3600,
		OrchestratorNamespace: "default",
		HPCPort:               6820,
		HPCMaxCores:           64,
		HPCMaxTasks:           16,
		HPCTokenHeadroomSec:   30,
		HPCTokenLifetimeSec:   3600,
		HPCRequestTimeoutSec:  30,
		ListenAddr:            ":8080",
	}
}

// Load reads and parses a YAML config file, applying it on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// MonitorPeriod returns the reconciliation tick interval.
func (c *Config) MonitorPeriod() time.Duration {
	return time.Duration(c.MonitorPeriodSec) * time.Second
}

// AccounterPeriod returns the accounting tick interval.
func (c *Config) AccounterPeriod() time.Duration {
	return time.Duration(c.AccounterPeriodSec) * time.Second
}

// HPCTokenHeadroom returns the pre-request token renewal headroom.
func (c *Config) HPCTokenHeadroom() time.Duration {
	return time.Duration(c.HPCTokenHeadroomSec) * time.Second
}

// HPCTokenLifetime returns the lifetime a freshly minted token is issued for.
func (c *Config) HPCTokenLifetime() time.Duration {
	return time.Duration(c.HPCTokenLifetimeSec) * time.Second
}

// HPCRequestTimeout returns the bounded per-call timeout for HPC requests.
func (c *Config) HPCRequestTimeout() time.Duration {
	return time.Duration(c.HPCRequestTimeoutSec) * time.Second
}

// LocalSoftTimeLimit returns the Local Worker Adapter's soft time limit.
func (c *Config) LocalSoftTimeLimit() time.Duration {
	return time.Duration(c.LocalSoftTimeLimitSec) * time.Second
}
