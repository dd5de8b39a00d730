package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/discovery"
)

func doctorCmd() *cobra.Command {
	var showEnums bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the Windsurf language server is reachable",
		Long: "Runs credential resolution and protobuf discovery once and prints what " +
			"was found. Useful when the bridge returns 503s.",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			runDoctor(showEnums)
		},
	}
	cmd.Flags().BoolVar(&showEnums, "enums", false, "also dump the vendor model enum from the extension asset")
	return cmd
}

func runDoctor(showEnums bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println("windlink doctor")
	fmt.Println()

	resolver := creds.NewResolver()
	c, err := resolver.Credentials(ctx)
	if err != nil {
		fmt.Printf("  credentials: FAILED — %v\n", err)
	} else {
		fmt.Println("  credentials: ok")
		fmt.Printf("    grpc port:  %d\n", c.GRPCPort)
		fmt.Printf("    version:    %s\n", c.Version)
		fmt.Printf("    csrf token: %s…\n", truncate(c.CSRFToken, 8))
		fmt.Printf("    api key:    present (%d chars)\n", len(c.APIKey))
	}

	fm := discovery.Load()
	fmt.Println()
	fmt.Println("  metadata field map:")
	fmt.Printf("    api_key=%d ide_name=%d ide_version=%d extension_version=%d session_id=%d locale=%d\n",
		fm.APIKey, fm.IDEName, fm.IDEVersion, fm.ExtensionVersion, fm.SessionID, fm.Locale)
	if fm == discovery.Default() {
		fmt.Println("    (defaults — extension asset not found or not parseable)")
	}

	if showEnums {
		dumpEnums()
	}

	if err != nil {
		os.Exit(1)
	}
}

// dumpEnums prints the chat-model enum from the first readable extension
// asset, for registry upkeep.
func dumpEnums() {
	fmt.Println()
	for _, path := range discovery.AssetPaths() {
		src, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		entries := discovery.ExtractModelEnum(string(src))
		if len(entries) == 0 {
			continue
		}
		fmt.Printf("  model enum (%s):\n", path)
		for _, e := range entries {
			fmt.Printf("    %4d  %s\n", e.No, e.Name)
		}
		return
	}
	fmt.Println("  model enum: no extension asset found")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
