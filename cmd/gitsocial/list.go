package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gitsocial-org/gitsocial/internal/liststore"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "data",
	Short:   "Read, write and inspect gitsocial lists",
	Long: `A list is a keyed, history-preserving JSON blob stored under
refs/gitmsg/<ext>/lists/<name>. Every write is a new commit on the
empty tree; history is the commit chain itself.`,
}

var listExt string

var listReadCmd = &cobra.Command{
	Use:   "read <name>",
	Short: "Print a list's current payload as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := liststore.New(workDir)
		payload, err := store.Read(cmd.Context(), listExt, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if payload == nil {
			fmt.Println("null")
			return
		}
		encoded, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(encoded))
	},
}

var listWriteCmd = &cobra.Command{
	Use:   "write <name> <payload.yaml|->",
	Short: "Write a new payload onto a list, creating a new commit",
	Long: `Accepts a YAML or JSON document, either from a file path or "-"
for stdin; JSON is valid YAML, so one parser covers both.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		raw, err := readPayloadSource(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		var payload any
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid payload: %v\n", err)
			os.Exit(1)
		}
		store := liststore.New(workDir)
		if err := store.Write(cmd.Context(), listExt, args[0], payload); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote list %q\n", args[0])
	},
}

var listDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a list's ref",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := liststore.New(workDir)
		if err := store.Delete(cmd.Context(), listExt, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted list %q\n", args[0])
	},
}

var listEnumerateCmd = &cobra.Command{
	Use:   "ls",
	Short: "Enumerate every list under the extension namespace",
	Run: func(cmd *cobra.Command, args []string) {
		store := liststore.New(workDir)
		names, err := store.Enumerate(cmd.Context(), listExt)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, n := range names {
			fmt.Println(n)
		}
	},
}

var listHistoryCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show a list's commit-chain history, newest-first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store := liststore.New(workDir)
		entries, err := store.History(cmd.Context(), listExt, args[0], liststore.HistoryOptions{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		renderHistoryTable(entries)
	},
}

func readPayloadSource(src string) ([]byte, error) {
	if src == "-" {
		return readAllStdin()
	}
	return os.ReadFile(src)
}

func readAllStdin() ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

func init() {
	listCmd.PersistentFlags().StringVar(&listExt, "ext", "social", "GitMsg extension namespace the list lives under")
	listCmd.AddCommand(listReadCmd, listWriteCmd, listDeleteCmd, listEnumerateCmd, listHistoryCmd)
	rootCmd.AddCommand(listCmd)
}
