// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/campuskit/advisor-tui/internal/api"
	"github.com/campuskit/advisor-tui/internal/history"
	"github.com/campuskit/advisor-tui/internal/model"
	"github.com/campuskit/advisor-tui/internal/util"
)

// commandTimeout bounds one-shot backend calls issued by slash commands.
const commandTimeout = 10 * time.Second

// handleSlash processes slash commands. Returns false when the visitor
// asked to exit.
func (r *REPL) handleSlash(ctx context.Context, cmdline string) bool {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return true
	}
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?":
		printHelp()

	case "/quit", "/q", "/exit":
		return false

	case "/clear", "/c":
		fmt.Print("\033[2J\033[H")

	case "/history":
		r.showHistory(ctx, strings.Join(args, " "))

	case "/quiz":
		if len(args) == 0 {
			r.listQuizzes(ctx)
		} else {
			r.runQuiz(ctx, args[0])
		}

	case "/enroll":
		r.enroll(ctx, strings.Join(args, " "))

	case "/rate":
		r.rateLast(ctx, args)

	case "/session", "/s":
		r.showSession()

	default:
		fmt.Println(warningStyle.Render("[!] unknown command: " + command + " (type /help for commands)"))
	}
	return true
}

// printHelp prints available commands.
func printHelp() {
	fmt.Println()
	fmt.Println(headerStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/history [query]", "List or search cached conversations"},
		{"/quiz [id]", "List quizzes or take one"},
		{"/enroll [program]", "Share contact details with an advisor"},
		{"/rate up|down [note]", "Rate the last advisor reply"},
		{"/session, /s", "Show session details"},
		{"/clear, /c", "Clear the screen"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-22s", c.cmd)),
			infoStyle.Render(c.desc))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the current reply, Ctrl+D exits"))
	fmt.Println()
}

// showHistory lists cached conversations, optionally filtered.
func (r *REPL) showHistory(ctx context.Context, query string) {
	if r.app.History == nil {
		fmt.Println(warningStyle.Render("[!] local history cache is disabled"))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var (
		summaries []history.Summary
		err       error
	)
	if query != "" {
		summaries, err = r.app.History.Search(cctx, query)
	} else {
		summaries, err = r.app.History.List(cctx)
	}
	if err != nil {
		fmt.Println(errorStyle.Render("[X] could not read history: " + err.Error()))
		return
	}
	if len(summaries) == 0 {
		fmt.Println(infoStyle.Render("[i] no cached conversations"))
		return
	}

	fmt.Println()
	for _, s := range summaries {
		fmt.Printf("  %s  %s %s\n",
			commandStyle.Render(s.ConversationID),
			util.PadRight(util.Truncate(s.Title, 40), 40),
			infoStyle.Render(fmt.Sprintf("(%d messages, %s)", s.MessageCount, s.UpdatedAt.Format("2006-01-02"))))
	}
	fmt.Println()
}

// listQuizzes prints the available placement quizzes.
func (r *REPL) listQuizzes(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	quizzes, err := r.app.API.ListQuizzes(cctx)
	if err != nil {
		fmt.Println(errorStyle.Render("[X] could not load quizzes: " + err.Error()))
		return
	}
	if len(quizzes) == 0 {
		fmt.Println(infoStyle.Render("[i] no quizzes available"))
		return
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Available Quizzes"))
	for _, q := range quizzes {
		fmt.Printf("  %s  %s %s\n",
			commandStyle.Render(q.ID),
			q.Title,
			infoStyle.Render(fmt.Sprintf("(%d questions)", len(q.Questions))))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Take one with /quiz <id>"))
	fmt.Println()
}

// runQuiz walks the visitor through one quiz and submits the answers.
func (r *REPL) runQuiz(ctx context.Context, quizID string) {
	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	quizzes, err := r.app.API.ListQuizzes(cctx)
	if err != nil {
		fmt.Println(errorStyle.Render("[X] could not load quizzes: " + err.Error()))
		return
	}
	var quiz *api.Quiz
	for i := range quizzes {
		if quizzes[i].ID == quizID {
			quiz = &quizzes[i]
			break
		}
	}
	if quiz == nil {
		fmt.Println(warningStyle.Render("[!] no quiz with id " + quizID))
		return
	}

	fmt.Println()
	fmt.Println(headerStyle.Render(quiz.Title))
	if quiz.Description != "" {
		fmt.Println(infoStyle.Render(quiz.Description))
	}
	fmt.Println()

	answers := make(map[string]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		fmt.Printf("%s %s\n", commandStyle.Render(fmt.Sprintf("%d.", i+1)), q.Prompt)
		for j, opt := range q.Options {
			fmt.Printf("   %d) %s\n", j+1, opt)
		}
		choice, ok := r.promptChoice(len(q.Options))
		if !ok {
			fmt.Println(warningStyle.Render("[!] quiz abandoned"))
			return
		}
		answers[q.ID] = choice - 1
	}

	sctx, scancel := context.WithTimeout(ctx, commandTimeout)
	defer scancel()
	result, err := r.app.API.SubmitQuiz(sctx, api.QuizSubmission{QuizID: quiz.ID, Answers: answers})
	if err != nil {
		fmt.Println(errorStyle.Render("[X] could not submit quiz: " + err.Error()))
		return
	}

	fmt.Println()
	fmt.Println(commandStyle.Render(fmt.Sprintf("[OK] Score: %d/%d", result.Score, result.MaxScore)))
	if result.Recommendation != "" {
		fmt.Println(infoStyle.Render(result.Recommendation))
	}
	fmt.Println()
}

// promptChoice reads a 1-based option number within [1, max].
func (r *REPL) promptChoice(max int) (int, bool) {
	for {
		input, err := r.line.Prompt("answer> ")
		if err != nil {
			return 0, false
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(input))
		if convErr == nil && n >= 1 && n <= max {
			return n, true
		}
		fmt.Println(warningStyle.Render(fmt.Sprintf("[!] enter a number between 1 and %d", max)))
	}
}

// enroll captures contact details and registers the visitor as a lead.
func (r *REPL) enroll(ctx context.Context, program string) {
	name, err := r.line.Prompt("your name> ")
	if err != nil {
		return
	}
	email, err := r.line.Prompt("email> ")
	if err != nil {
		return
	}
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || !strings.Contains(email, "@") {
		fmt.Println(warningStyle.Render("[!] a name and a valid email are required"))
		return
	}

	req := api.CreateLeadRequest{
		Name:    name,
		Email:   email,
		Program: strings.TrimSpace(program),
	}
	if id := r.app.Controller.Reconciler().ConversationID(); id != "" && id != model.TempConversationID {
		req.ConversationID = id
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	resp, err := r.app.API.CreateLead(cctx, req)
	if err != nil {
		fmt.Println(errorStyle.Render("[X] could not submit details: " + err.Error()))
		return
	}
	if err := r.app.Sessions.RegisterLead(resp.LeadID); err != nil {
		fmt.Println(warningStyle.Render("[!] details sent, but session update failed: " + err.Error()))
		return
	}
	fmt.Println(commandStyle.Render("[OK] thanks " + name + ", an advisor will reach out shortly"))
}

// rateLast records feedback on the most recent ratable advisor reply.
func (r *REPL) rateLast(ctx context.Context, args []string) {
	if len(args) == 0 || (args[0] != "up" && args[0] != "down") {
		fmt.Println(warningStyle.Render("[!] usage: /rate up|down [note]"))
		return
	}
	helpful := args[0] == "up"
	feedback := strings.Join(args[1:], " ")

	transcript := r.app.Controller.Reconciler().Transcript()
	var messageID string
	for i := len(transcript.Messages) - 1; i >= 0; i-- {
		if transcript.Messages[i].Ratable() {
			messageID = transcript.Messages[i].ID
			break
		}
	}
	if messageID == "" {
		fmt.Println(warningStyle.Render("[!] nothing to rate yet"))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := r.app.Controller.RateMessage(cctx, messageID, helpful, feedback); err != nil {
		fmt.Println(errorStyle.Render("[X] could not record rating: " + err.Error()))
		return
	}
	fmt.Println(commandStyle.Render("[OK] thanks for the feedback"))
}

// showSession prints the current session record.
func (r *REPL) showSession() {
	sess := r.app.Sessions.Get()
	fmt.Println()
	fmt.Println(headerStyle.Render("Session"))
	fmt.Printf("  %s %s\n", infoStyle.Render("ID:"), sess.SessionID)
	fmt.Printf("  %s %s\n", infoStyle.Render("Type:"), commandStyle.Render(string(sess.SessionType)))
	if sess.ConversationID != "" {
		fmt.Printf("  %s %s\n", infoStyle.Render("Conversation:"), sess.ConversationID)
	}
	fmt.Printf("  %s %s\n", infoStyle.Render("Expires:"), sess.ExpiresAt.Format(time.RFC1123))
	fmt.Println()
}
