package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vietddude/storeguard/internal/access/permission"
	"github.com/vietddude/storeguard/internal/core/domain"
)

var (
	callerID string
	ownerID  string
)

var canCmd = &cobra.Command{
	Use:   "can [role] [resource] [action]",
	Short: "Evaluate the permission matrix for one role, resource and action",
	Args:  cobra.ExactArgs(3),
	Run:   runCan,
}

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities [role]",
	Short: "List the named capabilities of a role",
	Args:  cobra.ExactArgs(1),
	Run:   runCapabilities,
}

func init() {
	canCmd.Flags().StringVar(&callerID, "caller", "", "acting user id (enables the ownership check)")
	canCmd.Flags().StringVar(&ownerID, "owner", "", "owner id of the target record")
	rootCmd.AddCommand(canCmd)
	rootCmd.AddCommand(capabilitiesCmd)
}

func loadEngine() *permission.Engine {
	cfg := loadConfig()
	if cfg.Permissions.MatrixFile == "" {
		return permission.NewEngine(permission.DefaultMatrix())
	}
	m, err := permission.LoadMatrix(cfg.Permissions.MatrixFile)
	if err != nil {
		slog.Error("Failed to load permission matrix", "error", err)
		os.Exit(1)
	}
	return permission.NewEngine(m)
}

func runCan(cmd *cobra.Command, args []string) {
	engine := loadEngine()

	var owner *domain.OwnershipContext
	if callerID != "" || ownerID != "" {
		owner = &domain.OwnershipContext{CallerID: callerID, TargetOwnerID: ownerID}
	}

	role, resource, action := domain.Role(args[0]), domain.Resource(args[1]), domain.Action(args[2])
	if engine.HasPermission(role, resource, action, owner) {
		fmt.Printf("allowed: %s may %s %s\n", role, action, resource)
		return
	}
	fmt.Printf("denied: %s may not %s %s\n", role, action, resource)
	os.Exit(2)
}

func runCapabilities(cmd *cobra.Command, args []string) {
	caps := loadEngine().Capabilities(domain.Role(args[0]))

	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-22s %v\n", name, caps[name])
	}
}
