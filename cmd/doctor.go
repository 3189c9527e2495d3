package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/CanopyHQ/loreweave/internal/memory"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup issues",
	Long: `Diagnose common setup issues and optionally fix them.

Examples:
  loreweave doctor        # check for issues
  loreweave doctor --fix  # check and auto-fix issues`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

func runDoctor(fix bool) error {
	fmt.Println("Loreweave Doctor - Diagnosing Setup")
	if fix {
		fmt.Println("Auto-fix enabled")
	}
	fmt.Println()

	issues := 0
	warnings := 0
	fixed := 0

	cfg := memory.DefaultConfig()

	fmt.Print("Checking data directory... ")
	dataDir := filepath.Dir(cfg.VectorStoreDir)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if fix {
			fmt.Print("creating... ")
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				fmt.Printf("FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("FIXED")
				fixed++
			}
		} else {
			fmt.Println("WARNING")
			fmt.Printf("  Data directory does not exist: %s\n", dataDir)
			fmt.Println("  It will be created on first run")
			warnings++
		}
	} else {
		fmt.Printf("OK (%s)\n", dataDir)
	}

	fmt.Print("Checking vector store... ")
	dbPath := filepath.Join(cfg.VectorStoreDir, "vectors.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("WARNING")
		fmt.Printf("  Vector store not found: %s\n", dbPath)
		fmt.Println("  It will be created on first run")
		warnings++
	} else {
		fmt.Println("OK")
	}

	fmt.Print("Checking recent-tier snapshot... ")
	if _, err := os.Stat(cfg.RecentSnapshotPath); os.IsNotExist(err) {
		fmt.Println("WARNING")
		fmt.Println("  No snapshot yet; recent tiers start empty until the first write")
		warnings++
	} else {
		fmt.Println("OK")
	}

	fmt.Print("Checking embedding engine... ")
	coord, err := memory.New(cfg)
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		issues++
	} else {
		if _, err := coord.Search(context.Background(), "__doctor_probe__", "warmup probe", 1); err != nil && memory.KindOf(err) == memory.KindEmbeddingUnavailable {
			fmt.Println("WARNING (embedding backend unavailable, degraded mode)")
			warnings++
		} else {
			fmt.Println("OK")
		}
		coord.Close()
	}

	fmt.Printf("Checking runtime... OK (%s/%s)\n", runtime.GOOS, runtime.GOARCH)

	fmt.Println()
	fmt.Println("----------------------------------------")
	if issues == 0 && warnings == 0 {
		fmt.Println("All checks passed. Loreweave is ready to use.")
	} else {
		if fixed > 0 {
			fmt.Printf("Auto-fixed %d issue(s)\n", fixed)
		}
		if issues > 0 {
			fmt.Printf("Found %d critical issue(s)\n", issues)
		}
		if warnings > 0 {
			fmt.Printf("Found %d warning(s)\n", warnings)
		}
	}
	fmt.Println("----------------------------------------")

	if issues > 0 {
		return fmt.Errorf("found %d critical issue(s)", issues)
	}
	return nil
}
