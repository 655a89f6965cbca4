// Package container wires the pipeline's collaborators once per process
// and hands the assembled set to the controller. Every service handle
// lives on the Container struct built here; nothing in the core reaches
// for a package-level singleton, and the job store and service clients
// never import each other.
package container

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/epam/syndicate-rule-engine-sub000/internal/cloudrunner"
	"github.com/epam/syndicate-rule-engine-sub000/internal/credentials"
	"github.com/epam/syndicate-rule-engine-sub000/internal/executor"
	"github.com/epam/syndicate-rule-engine-sub000/internal/joblifecycle"
	"github.com/epam/syndicate-rule-engine-sub000/internal/jobstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/lock"
	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/policyloader"
	"github.com/epam/syndicate-rule-engine-sub000/internal/quota"
	"github.com/epam/syndicate-rule-engine-sub000/internal/secretstore"
	"github.com/epam/syndicate-rule-engine-sub000/internal/statistics"
	"github.com/epam/syndicate-rule-engine-sub000/internal/tenantconfig"
)

// Options selects the backends a deployment runs against. Zero values fall
// back to local single-node defaults: filesystem object store, sqlite
// job/lock store, no broker, no tenant database.
type Options struct {
	// DataDir roots the filesystem object store and the sqlite database.
	DataDir string
	// S3Bucket switches the object store to S3 when non-empty.
	S3Bucket string
	// GCSBucket switches the object store to GCS when non-empty.
	GCSBucket string
	// AWSRegion is the controller's own region for S3/STS/EKS clients and
	// the self-heal default-region fallback.
	AWSRegion string

	PostgresDSN string // Postgres job/lock stores when non-empty
	MySQLDSN    string // tenant configuration database, optional

	SecretKey []byte // 32-byte key enabling the envelope secret store

	BrokerURL   string
	BrokerToken string

	ShardCount       int
	EnableS3SelfHeal bool

	// ExecutorMode is "consistent" (sequential regions) or "concurrent"
	// (bounded pool of Concurrency workers).
	ExecutorMode string
	Concurrency  int
	// ManagedHost routes worker spawns through the pool launcher for host
	// contexts that forbid inline exec from request-handling goroutines.
	ManagedHost bool
	WorkDir     string

	Debug bool
}

const defaultConcurrency = 4

// Container is the per-process dependency set. Build one with New, run
// jobs through Controller, then Close.
type Container struct {
	Objects    objectstore.ObjectStore
	Secrets    secretstore.SecretStore
	Jobs       jobstore.JobStore
	Locks      lock.Store
	Tenants    tenantconfig.Store
	Broker     quota.Broker
	Runners    *cloudrunner.Registry
	Loader     *policyloader.Loader
	Resolver   *credentials.Resolver
	Controller *joblifecycle.Controller

	closers []func() error
}

func New(ctx context.Context, opts Options) (*Container, error) {
	c := &Container{Runners: cloudrunner.DefaultRegistry()}

	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	if err := c.buildObjects(ctx, opts, dataDir); err != nil {
		return nil, err
	}
	if err := c.buildStores(ctx, opts, dataDir); err != nil {
		return nil, err
	}

	if opts.BrokerURL != "" {
		c.Broker = quota.NewHTTPBroker(opts.BrokerURL, opts.BrokerToken, opts.Debug)
	}

	if len(opts.SecretKey) > 0 {
		secrets, err := secretstore.NewEnvelopeStore(c.Objects, opts.SecretKey)
		if err != nil {
			return nil, err
		}
		c.Secrets = secrets
	}

	c.Loader = policyloader.NewLoader(&policyloader.ObjectStoreContentSource{Store: c.Objects}, c.Runners)
	c.Resolver = &credentials.Resolver{
		Secrets: c.Secrets,
		Azure:   credentials.NewHTTPAzureMaterializer(),
	}

	// AWS clients are optional: a deployment scanning only Azure/GCP
	// tenants from a non-AWS host has no config to load, and that's fine
	// until an AWS code path is actually exercised.
	awsOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.AWSRegion != "" {
		awsOpts = append(awsOpts, awsconfig.WithRegion(opts.AWSRegion))
	}
	if cfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...); err == nil {
		stsClient := sts.NewFromConfig(cfg)
		c.Resolver.AWS = credentials.NewSTSMaterializer(stsClient)
		c.Resolver.Ambient = credentials.NewHostAmbientPrincipal(&credentials.STSAmbientPrincipal{Client: stsClient}, "")
		c.Resolver.K8s = &credentials.ClusterMaterializer{
			Secrets: c.Secrets,
			EKS:     eks.NewFromConfig(cfg),
			Azure:   credentials.NewHTTPAzureMaterializer(),
		}
		c.Loader.Regions = policyloader.NewEC2RegionLister(cfg)
	} else if opts.Debug {
		log.Printf("[container] aws config unavailable, aws-backed links disabled: %v", err)
	}

	concurrency := 1
	if opts.ExecutorMode == "concurrent" {
		concurrency = opts.Concurrency
		if concurrency <= 0 {
			concurrency = defaultConcurrency
		}
	}
	var launcher executor.Launcher = executor.NativeLauncher{}
	if opts.ManagedHost {
		launcher = executor.NewManagedPoolLauncher(executor.NativeLauncher{}, concurrency)
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = filepath.Join(dataDir, "work")
	}

	c.Controller = &joblifecycle.Controller{
		Jobs:     c.Jobs,
		Locks:    c.Locks,
		Broker:   c.Broker,
		Loader:   c.Loader,
		Executor: &executor.Executor{Launcher: launcher, WorkDir: workDir, Concurrency: concurrency},
		Runners:  c.Runners,
		Objects:  c.Objects,
		Stats:    statistics.NewStore(c.Objects),
		Config: joblifecycle.Config{
			ShardCount:       opts.ShardCount,
			EnableS3SelfHeal: opts.EnableS3SelfHeal,
			DefaultRegion:    opts.AWSRegion,
		},
	}
	return c, nil
}

func (c *Container) buildObjects(ctx context.Context, opts Options, dataDir string) error {
	switch {
	case opts.S3Bucket != "":
		store, err := objectstore.NewS3Store(ctx, opts.S3Bucket, opts.AWSRegion)
		if err != nil {
			return fmt.Errorf("container: s3 object store: %w", err)
		}
		c.Objects = store
	case opts.GCSBucket != "":
		store, err := objectstore.NewGCSStore(ctx, opts.GCSBucket)
		if err != nil {
			return fmt.Errorf("container: gcs object store: %w", err)
		}
		c.Objects = store
	default:
		c.Objects = objectstore.NewFSStore(filepath.Join(dataDir, "objects"))
	}
	return nil
}

func (c *Container) buildStores(ctx context.Context, opts Options, dataDir string) error {
	if opts.PostgresDSN != "" {
		jobs, err := jobstore.NewPostgresStore(ctx, opts.PostgresDSN)
		if err != nil {
			return err
		}
		c.Jobs = jobs
		c.closers = append(c.closers, func() error { jobs.Close(); return nil })

		locks, err := lock.NewPostgresStore(ctx, jobs.Pool())
		if err != nil {
			return err
		}
		c.Locks = locks
	} else {
		jobs, err := jobstore.NewSQLiteStore(filepath.Join(dataDir, "state.db"))
		if err != nil {
			return err
		}
		c.Jobs = jobs

		locks, err := lock.NewSQLiteStore(jobs.DB())
		if err != nil {
			return err
		}
		c.Locks = locks
		c.closers = append(c.closers, jobs.DB().Close)
	}

	if opts.MySQLDSN != "" {
		tenants, err := tenantconfig.NewMySQLStore(opts.MySQLDSN)
		if err != nil {
			return err
		}
		c.Tenants = tenants
		c.closers = append(c.closers, tenants.Close)
	} else {
		c.Tenants = &tenantconfig.StaticStore{}
	}
	return nil
}

// Close releases every handle New opened, in reverse order.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
