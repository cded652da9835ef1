package main

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ilievs/rigdash/system"
)

const version = "rigdash v0.3.0"

var (
	cfgFile     string
	envReplacer = strings.NewReplacer(".", "_")
)

var rootCmd = &cobra.Command{
	Use:   "rigdash",
	Short: "rigdash is an operator dashboard for a rolling capture rig.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return system.SetupLogging(viper.GetString("log.level"), viper.GetString("log.format"))
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of rigdash",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Follow the rig and serve the operator API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := system.SignalContext(cmd.Context())
		defer stop()
		return runServe(ctx, loadSettings(viper.GetViper()))
	},
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Follow the rig from a terminal dashboard",
	// the terminal owns stderr, so logs go to log.file
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupFileLogging(viper.GetString("log.file"), viper.GetString("log.level"), viper.GetString("log.format"))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := system.SignalContext(cmd.Context())
		defer stop()
		return runTUI(ctx, loadSettings(viper.GetViper()))
	},
}

var mockRigCmd = &cobra.Command{
	Use:   "mockrig",
	Short: "Run a simulated rig for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := system.SignalContext(cmd.Context())
		defer stop()
		return runMockRig(ctx, loadSettings(viper.GetViper()))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd, serveCmd, tuiCmd, mockRigCmd)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./rigdash.yaml)")

	serveCmd.Flags().String("listen", "", "operator API address (overrides http.listen)")
	_ = viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
	mockRigCmd.Flags().Duration("step-interval", 0, "time between simulated steps (overrides mockrig.step_interval)")
	_ = viper.BindPFlag("mockrig.step_interval", mockRigCmd.Flags().Lookup("step-interval"))

	setDefaults(viper.GetViper())

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RIGDASH")
	viper.SetEnvKeyReplacer(envReplacer)

	cobra.OnInitialize(initConfig)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rig.url", "http://localhost:8000")
	v.SetDefault("rig.timeout", 5*time.Second)
	v.SetDefault("stream.transport", "ws")
	v.SetDefault("stream.reconnect", false)
	v.SetDefault("stream.backoff.initial", 500*time.Millisecond)
	v.SetDefault("stream.backoff.max", 30*time.Second)
	v.SetDefault("mqtt.broker", "mqtt://localhost:1883")
	v.SetDefault("mqtt.topic", "rig/events")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "rigdash.log")
	v.SetDefault("mockrig.listen", ":8000")
	v.SetDefault("mockrig.mqtt_listen", "")
	v.SetDefault("mockrig.step_interval", time.Duration(0))
}

func initConfig() {
	// .env values only fill variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("Can't read .env:", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(path.Join(home, ".rigdash"))
		viper.AddConfigPath("/etc/rigdash/")
		viper.SetConfigName("rigdash")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Println("Can't read config:", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
