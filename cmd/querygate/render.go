package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/stupiduntilnot/querygate/internal/agent"
	"github.com/stupiduntilnot/querygate/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	sqlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	roleStyles = map[string]lipgloss.Style{
		store.RoleUser:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		store.RoleSQL:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		store.RoleAssistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135")),
		store.RoleSystem:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("240")),
	}
)

func renderExchange(w io.Writer, ex agent.Exchange) {
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("conversation %d", ex.ConversationID)))
	fmt.Fprintln(w, labelStyle.Render("Question:"), ex.Question)
	fmt.Fprintln(w, labelStyle.Render("SQL:"))
	fmt.Fprintln(w, sqlStyle.Render(ex.SQL))
	fmt.Fprintln(w, labelStyle.Render("Answer:"))
	fmt.Fprintln(w, ex.Answer)
}

func renderMessages(w io.Writer, conv store.Conversation, msgs []store.Message) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("#%d %s", conv.ID, conv.Title)), dimStyle.Render(fmt.Sprintf("(user %d)", conv.UserID)))
	for _, m := range msgs {
		style, ok := roleStyles[m.Role]
		if !ok {
			style = dimStyle
		}
		fmt.Fprintf(w, "%s %s\n%s\n\n", dimStyle.Render(fmt.Sprintf("%3d", m.Seq)), style.Render(m.Role), m.Content)
	}
}
