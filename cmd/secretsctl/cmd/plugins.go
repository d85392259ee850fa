package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the plugins secretsd currently has registered",
	RunE:  listPlugins,
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

func listPlugins(cmd *cobra.Command, args []string) error {
	req := &secrets.GetPluginInfoRequest{}
	reply, err := call("GetPluginInfo", req)
	if err != nil {
		return err
	}
	if !reply.Result.Ok() {
		return reply.Result.Err()
	}

	info := reply.Params.(*secrets.GetPluginInfoRequest).Info

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tIS_TEST")
	printDescriptors(w, "storage", info.StoragePlugins)
	printDescriptors(w, "encryption", info.EncryptionPlugins)
	printDescriptors(w, "encrypted-storage", info.EncryptedStoragePlugins)
	printDescriptors(w, "auth", info.AuthenticationPlugins)
	return w.Flush()
}

func printDescriptors(w *tabwriter.Writer, kind string, descriptors []secrets.PluginDescriptor) {
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%v\n", kind, d.Name, d.IsTest)
	}
}
