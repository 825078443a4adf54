package commands

import (
	"fmt"
	"time"

	"github.com/moolen/insight/internal/storage"
	"github.com/spf13/cobra"
)

var (
	profileCreateType string
	profileCreatePath string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage storage profiles",
	Long: `Manage named storage profiles. A profile binds a name to a storage
backend (a JSON session file or an in-memory store); the active profile is
what every other command reads from and writes to.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List storage profiles",
	Run:   runProfileList,
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a storage profile",
	Args:  cobra.ExactArgs(1),
	Run:   runProfileCreate,
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch <name>",
	Short: "Make a profile the active one",
	Args:  cobra.ExactArgs(1),
	Run:   runProfileSwitch,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a storage profile",
	Args:  cobra.ExactArgs(1),
	Run:   runProfileDelete,
}

func init() {
	profileCreateCmd.Flags().StringVar(&profileCreateType, "type", "json", "Storage type: json or memory")
	profileCreateCmd.Flags().StringVar(&profileCreatePath, "path", "", "Session file path for json profiles (empty = default next to the profiles file)")

	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileCreateCmd)
	profileCmd.AddCommand(profileSwitchCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}

func openProfileManager() *storage.ProfileManager {
	cfg := setup()
	manager, err := storage.NewProfileManager(cfg.ProfilesPath)
	HandleError(err, "Failed to load storage profiles")
	return manager
}

func runProfileList(cmd *cobra.Command, args []string) {
	manager := openProfileManager()
	active := manager.ActiveName()
	for _, profile := range manager.ListProfiles() {
		marker := " "
		if profile.Name == active {
			marker = "*"
		}
		path := profile.FilePath
		if profile.StorageType == "memory" {
			path = "-"
		}
		fmt.Printf("%s %-20s type=%-6s path=%s modified=%s\n",
			marker, profile.Name, profile.StorageType, path,
			profile.LastModified.Format(time.RFC3339))
	}
}

func runProfileCreate(cmd *cobra.Command, args []string) {
	manager := openProfileManager()
	profile, err := manager.CreateProfile(args[0], profileCreateType, profileCreatePath)
	HandleError(err, "Failed to create profile")
	fmt.Printf("created profile %s (type=%s)\n", profile.Name, profile.StorageType)
}

func runProfileSwitch(cmd *cobra.Command, args []string) {
	manager := openProfileManager()
	profile, err := manager.SwitchProfile(args[0])
	HandleError(err, "Failed to switch profile")
	fmt.Printf("active profile is now %s\n", profile.Name)
}

func runProfileDelete(cmd *cobra.Command, args []string) {
	manager := openProfileManager()
	HandleError(manager.DeleteProfile(args[0]), "Failed to delete profile")
	fmt.Printf("deleted profile %s\n", args[0])
}
