package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tormund/wirepeer"
	"github.com/tormund/wirepeer/secure"
	"github.com/tormund/wirepeer/transport"
	"github.com/tormund/wirepeer/wlog"
)

// Config is the wirepeer-client configuration file shape.
type Config struct {
	Addr      string `yaml:"addr"`
	Verbosity int    `yaml:"verbosity"`
	RSABits   int    `yaml:"rsa_bits"`
}

func defaultConfig() Config {
	return Config{Addr: "127.0.0.1:7890", Verbosity: 2, RSABits: 2048}
}

var (
	config     = defaultConfig()
	configPath string
	method     string
	paramsJSON string
	timeout    time.Duration
	encrypt    bool
)

var rootCmd = &cobra.Command{
	Use:   "wirepeer-client",
	Short: "Sends a single JSON-RPC request to a wirepeer server and prints the result",
	RunE:  runCall,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")
	rootCmd.Flags().StringVar(&method, "method", wirepeer.MethodPing, "method to call")
	rootCmd.Flags().StringVar(&paramsJSON, "params", "null", "params as a JSON literal")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "call timeout")
	rootCmd.Flags().BoolVar(&encrypt, "encrypt", false, "perform the RSA key exchange before calling")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("no config at %s, using defaults", configPath)
				return
			}
			log.Fatalf("reading %s: %v", configPath, err)
		}
		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("parsing %s: %v", configPath, err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error executing command: %v", err)
	}
}

func runCall(cmd *cobra.Command, args []string) error {
	logger := wlog.NewSlogSink(slog.Default(), config.Verbosity)

	var params any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return fmt.Errorf("parsing --params: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := transport.Dial(ctx, config.Addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", config.Addr, err)
	}

	opts := []wirepeer.Option{wirepeer.WithLogger(logger)}
	if encrypt {
		opts = append(opts, wirepeer.WithCrypto(secure.NewRSACrypto(config.RSABits)))
	}
	peer := wirepeer.NewPeer(conn, conn.RemoteAddr, conn.RemotePort, opts...)
	defer peer.Terminate("client exiting")

	if encrypt {
		if err := peer.Handshake(ctx); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
	}

	call, err := peer.Request(method, params)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	result, err := call.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}

	fmt.Println(string(result))
	return nil
}
