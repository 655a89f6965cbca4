package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sre",
	Short: "Cloud security posture scan executor",
	Long: `sre drives posture scans across AWS, Azure, GCP and Kubernetes tenants:
it plans policies per region, runs each region in an isolated worker
process, merges findings into the tenant's sharded state, and publishes
deltas and statistics downstream.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sre.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output (shows progress + internal diagnostics)")
	rootCmd.PersistentFlags().String("data-dir", "data", "root directory for the local object store and state database")
	rootCmd.PersistentFlags().String("s3-bucket", "", "S3 bucket backing the object store")
	rootCmd.PersistentFlags().String("gcs-bucket", "", "GCS bucket backing the object store")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "Postgres DSN for the job/lock store (default is embedded sqlite)")
	rootCmd.PersistentFlags().String("mysql-dsn", "", "MySQL DSN of the tenant configuration database")
	rootCmd.PersistentFlags().String("broker-url", "", "license quota broker URL (or set LM_API_URL)")
	rootCmd.PersistentFlags().String("broker-token", "", "license quota broker token (or set LM_API_TOKEN)")
	rootCmd.PersistentFlags().Int("shard-count", 16, "shard partition count for result collections")
	rootCmd.PersistentFlags().Bool("s3-self-heal", true, "re-regionalize historical GLOBAL s3 findings when fetching latest")

	// TODO: add error return here
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("store.s3_bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("store.gcs_bucket", rootCmd.PersistentFlags().Lookup("gcs-bucket"))
	viper.BindPFlag("store.postgres_dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	viper.BindPFlag("store.mysql_dsn", rootCmd.PersistentFlags().Lookup("mysql-dsn"))
	viper.BindPFlag("quota.url", rootCmd.PersistentFlags().Lookup("broker-url"))
	viper.BindPFlag("quota.token", rootCmd.PersistentFlags().Lookup("broker-token"))
	viper.BindPFlag("store.shard_count", rootCmd.PersistentFlags().Lookup("shard-count"))
	viper.BindPFlag("store.s3_self_heal", rootCmd.PersistentFlags().Lookup("s3-self-heal"))

	// Environment the controller recognizes when driven by an orchestrator
	// rather than an operator's flags.
	viper.BindEnv("job.id", "JOB_ID")
	viper.BindEnv("job.type", "JOB_TYPE")
	viper.BindEnv("job.tenant", "TENANT_NAME")
	viper.BindEnv("job.platform_id", "PLATFORM_ID")
	viper.BindEnv("job.target_regions", "TARGET_REGIONS")
	viper.BindEnv("job.credentials_key", "CREDENTIALS_KEY")
	viper.BindEnv("job.lifetime_minutes", "BATCH_JOB_LIFETIME_MINUTES")
	viper.BindEnv("job.batch_results_ids", "BATCH_RESULTS_IDS")
	viper.BindEnv("job.scheduled_name", "SCHEDULED_JOB_NAME")
	viper.BindEnv("executor.mode", "EXECUTOR_MODE")
	viper.BindEnv("credentials.allow_management", "ALLOW_MANAGEMENT_CREDS")
	viper.BindEnv("aws.default_region", "AWS_DEFAULT_REGION")
	viper.BindEnv("secrets.key", "SRE_SECRET_KEY")

	viper.SetDefault("job.type", "standard")
	viper.SetDefault("executor.mode", "consistent")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sre")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("debug") {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}
