package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/user/chatd/internal/state"
	"github.com/user/chatd/internal/types"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(chatsListCmd, chatsShowCmd, chatsDeleteCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Manage chats",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.New(cfg.DataDir)

		ctx := context.Background()
		list, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("list chats: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No chats found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCREATED")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Title, c.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a chat's full message log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.New(cfg.DataDir)

		chat, err := store.Get(context.Background(), types.ChatID(args[0]))
		if err != nil {
			return fmt.Errorf("get chat: %w", err)
		}

		fmt.Printf("id:      %s\n", chat.ID)
		fmt.Printf("title:   %s\n", chat.Title)
		fmt.Printf("created: %s\n", chat.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Println()
		for _, m := range chat.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <id|all>",
	Short: "Delete a chat or all chats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		chatsDir := filepath.Join(cfg.DataDir, "chats")

		if args[0] == "all" {
			if err := os.RemoveAll(chatsDir); err != nil {
				return fmt.Errorf("remove chats directory: %w", err)
			}
			fmt.Println("All chats deleted.")
			return nil
		}

		// Validate the ID doesn't escape chatsDir before handing it to the
		// store, same guard the teacher uses for session IDs.
		chatDir := filepath.Join(chatsDir, args[0])
		resolved, err := filepath.Abs(chatDir)
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		absChatsDir, _ := filepath.Abs(chatsDir)
		if !strings.HasPrefix(resolved, absChatsDir+string(filepath.Separator)) {
			return fmt.Errorf("invalid chat ID: %s", args[0])
		}

		store := state.New(cfg.DataDir)
		if err := store.Delete(context.Background(), types.ChatID(args[0])); err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		fmt.Printf("Chat %s deleted.\n", args[0])
		return nil
	},
}
