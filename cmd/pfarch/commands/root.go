package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfarch/pfarch/internal/logging"
)

const Version = "0.1.0"

var (
	logLevelFlags []string // Supports multiple --log-level flags
	configPath    string
	databasePath  string
)

var rootCmd = &cobra.Command{
	Use:   "pfarch",
	Short: "pfarch - Precision Fermentation Integration Architect",
	Long: `pfarch evaluates whether a client site can adopt a precision-fermentation
process: it resolves the investment budget, finds the missing equipment and its
CapEx, computes the annual savings, decides GO or NO-GO and records the decision.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Supports per-package log levels: --log-level debug --log-level evaluator=debug
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level",
		[]string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level agent.tools=debug --log-level knowledge=warn")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnv("PFARCH_CONFIG", ""),
		"Path to the YAML configuration file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&databasePath, "db", getEnv("PFARCH_DB", ""),
		"Path to the knowledge base, overrides database.path")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(decisionsCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

// HandleError prints error and exits
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setupLog initializes the logging system with parsed log level flags.
// Priority: CLI flags > Environment variables > Initialize default
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables.
//
// CLI format: ["debug"], ["default=info", "agent.tools=debug"], or ["info"]
// Env vars: LOG_LEVEL_AGENT_TOOLS=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	// Environment variables first, CLI flags override them.
	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		if !strings.Contains(flag, "=") {
			result["default"] = flag
			continue
		}
		parts := strings.SplitN(flag, "=", 2)
		result[parts[0]] = parts[1]
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_AGENT_TOOLS -> agent.tools
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

// validateLogLevel checks if a level string is valid
func validateLogLevel(level string) error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLevels[strings.ToLower(level)] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
