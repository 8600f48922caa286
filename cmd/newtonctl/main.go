// Command newtonctl is a thin operator CLI over the kernel's boundary API.
// Every subcommand is a direct call into package core; none of this file's
// logic is load-bearing for verification semantics.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"newton-kernel/core"
	"newton-kernel/pkg/config"
)

var (
	blueprintPath string
	configPath    string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("newtonctl")
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "newtonctl",
		Short: "Operate a Newton kernel instance from the command line",
	}
	root.PersistentFlags().StringVar(&blueprintPath, "blueprint", "", "path to a .tinytalk blueprint source file")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a kernel config YAML file")
	viper.BindPFlag("blueprint", root.PersistentFlags().Lookup("blueprint"))
	viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(loadCmd(), verifyCmd(), runCmd(), stateCmd(), omegaCmd(), ledgerCmd(), exportCmd(), watchCmd())
	return root
}

func loadKernel() (*core.Kernel, error) {
	path := viper.GetString("blueprint")
	if path == "" {
		return nil, fmt.Errorf("--blueprint is required")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfgPath := viper.GetString("config")
	var cfg core.KernelConfig
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	return core.Load(string(src), cfg)
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Parse and compile a blueprint, reporting parse errors if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadKernel(); err != nil {
				if pf, ok := err.(*core.ParseFailure); ok {
					enc := json.NewEncoder(os.Stdout)
					return enc.Encode(pf.Errors)
				}
				return err
			}
			fmt.Println("blueprint loaded")
			return nil
		},
	}
}

func verifyCmd() *cobra.Command {
	var request string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check admissibility of current state against a request symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			status, witness := k.Verify(request)
			return printJSON(map[string]interface{}{"status": status, "witness": witness})
		},
	}
	cmd.Flags().StringVar(&request, "request", "", "request symbol to verify against")
	return cmd
}

func runCmd() *cobra.Command {
	var forge, argsJSON string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Invoke a forge and print its ForgeResult",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			parsed := map[string]core.TaggedValue{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &parsed); err != nil {
					return fmt.Errorf("parse --args: %w", err)
				}
			}
			result, err := k.Run(forge, parsed)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&forge, "forge", "", "forge name to invoke")
	cmd.Flags().StringVar(&argsJSON, "args", "", `JSON object of {"param": {"type":..,"value":..}}`)
	return cmd
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the instance's current field state",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			return printJSON(k.State())
		},
	}
}

func omegaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "omega",
		Short: "List every law bound to the blueprint, in declaration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			return printJSON(k.Omega())
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the exported ledger bytes to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			data, err := k.ExportLedger()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "ledger.rlp", "output path for the exported ledger")
	return cmd
}

func ledgerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Print the instance's ledger and chain-verification result",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := loadKernel()
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"entries": k.Ledger(),
				"chain":   k.VerifyChain(),
			})
		},
	}
}

// watchCmd reloads the blueprint whenever the source file changes on disk,
// reporting fresh parse errors immediately: a live-editing loop for authors
// iterating on a blueprint's laws.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload and re-report parse errors whenever --blueprint changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("blueprint")
			if path == "" {
				return fmt.Errorf("--blueprint is required")
			}
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(path); err != nil {
				return err
			}

			reload := func() {
				if _, err := loadKernel(); err != nil {
					log.WithError(err).Warn("reload failed")
					return
				}
				log.Info("blueprint reloaded cleanly")
			}
			reload()
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.WithError(err).Error("watcher error")
				}
			}
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
