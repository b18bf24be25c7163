package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
)

// isTTY gates lipgloss styling on stdout being an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	accentStyle = lipgloss.NewStyle().Bold(true)
)

func renderHistoryTable(entries []liststore.Entry) {
	if len(entries) == 0 {
		fmt.Println("(no history)")
		return
	}
	styled := isTTY()
	header := fmt.Sprintf("%-10s  %-20s  %-25s  %s", "HASH", "AUTHOR", "TIME", "CONTENT")
	if styled {
		header = headerStyle.Render(header)
	}
	fmt.Println(header)
	for _, e := range entries {
		content := e.Content
		if e.Payload != nil {
			if encoded, err := json.Marshal(e.Payload); err == nil {
				content = string(encoded)
			}
		}
		content = truncate(strings.ReplaceAll(content, "\n", " "), 60)
		hash := e.Hash
		if len(hash) > 10 {
			hash = hash[:10]
		}
		line := fmt.Sprintf("%-10s  %-20s  %-25s  %s", hash, e.Author, e.Timestamp.Format("2006-01-02 15:04:05"), content)
		fmt.Println(line)
	}
}

func renderPostsTable(posts []postcache.Post) {
	if len(posts) == 0 {
		fmt.Println("(no posts)")
		return
	}
	styled := isTTY()
	header := fmt.Sprintf("%-14s  %-10s  %-20s  %-25s  %s", "ID", "TYPE", "AUTHOR", "TIME", "CONTENT")
	if styled {
		header = headerStyle.Render(header)
	}
	fmt.Println(header)
	for _, p := range posts {
		content := truncate(strings.ReplaceAll(p.CleanContent, "\n", " "), 50)
		typ := string(p.Type)
		if styled {
			typ = accentStyle.Render(typ)
		}
		line := fmt.Sprintf("%-14s  %-10s  %-20s  %-25s  %s", p.ID, typ, p.AuthorName, p.Timestamp.Format("2006-01-02 15:04:05"), content)
		if styled && p.Source == "implicit" {
			line = dimStyle.Render(line)
		}
		fmt.Println(line)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
