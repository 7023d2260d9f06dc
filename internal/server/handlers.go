package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mberti/spesa/internal/calendar"
	"github.com/mberti/spesa/internal/parsing"
	"github.com/mberti/spesa/internal/recap"
	"github.com/mberti/spesa/internal/slack"
)

const helpText = "I did not get that. Try:\n" +
	"`/add 28.5 [15|15/11|yesterday] [description]` to add an expense\n" +
	"`/recap [2020-01|november|cur|pre]` for a monthly recap\n" +
	"`/email you@example.com` to register your ticket inbox"

// handleCommand answers slash commands.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var (
		command   = r.FormValue("command")
		text      = r.FormValue("text")
		userID    = r.FormValue("user_id")
		userName  = r.FormValue("user_name")
		channelID = r.FormValue("channel_id")
	)
	ctx := r.Context()

	if err := s.service.EnsureEmployee(ctx, userID, userName, channelID); err != nil {
		slog.Warn("could not record employee", "user_id", userID, "error", err)
	}

	switch command {
	case "/add":
		s.commandAdd(w, r, userID, text)
	case "/recap":
		s.commandRecap(w, r, userID, text)
	case "/html":
		s.commandHTML(w, r, userID, channelID, text)
	case "/download":
		s.commandDownload(w, r, userID, channelID, text)
	case "/email":
		s.commandEmail(w, r, userID, text)
	case "/verify":
		s.commandVerify(w, r, text)
	default:
		writeJSON(w, slack.Ephemeral(helpText))
	}
}

func (s *Server) commandAdd(w http.ResponseWriter, r *http.Request, userID, text string) {
	e, err := s.service.AddFromText(r.Context(), userID, text)
	if err != nil {
		slog.Error("adding expense failed", "user_id", userID, "error", err)
		writeJSON(w, slack.Ephemeral("Something went wrong while saving the expense."))
		return
	}
	if e == nil {
		writeJSON(w, slack.Ephemeral(helpText))
		return
	}
	writeJSON(w, expenseAddedResponse(e))
}

func (s *Server) commandRecap(w http.ResponseWriter, r *http.Request, userID, text string) {
	start, end, ok := recapRange(text, time.Now())
	if !ok {
		writeJSON(w, slack.Ephemeral(helpText))
		return
	}

	expenses, err := s.service.Expenses(userID, start, end)
	if err != nil {
		slog.Error("listing expenses failed", "user_id", userID, "error", err)
		writeJSON(w, slack.Ephemeral("Something went wrong while reading your expenses."))
		return
	}

	label := recap.RangeLabel(start, end)
	writeJSON(w, slack.WithBlocks(
		slack.Section(fmt.Sprintf("*Recap for %s*", label)),
		slack.Section(fmt.Sprintf("```%s```", recap.Table(expenses))),
		slack.Buttons(
			slack.Button{Text: "Download Attachments", Value: "download " + label, Style: "primary"},
			slack.Button{Text: "HTML", Value: "html " + label},
			slack.Button{Text: "Destroy the Planet", Value: "destroy", Style: "danger"},
		),
	))
}

// recapRange interprets the recap argument: a YYYY-MM token, a month name
// in either locale (resolved to its most recent occurrence), cur/pre, or
// nothing for the current month.
func recapRange(text string, now time.Time) (start, end time.Time, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		start, end = calendar.YearMonthBounds(now.Year(), now.Month())
		return start, end, true
	}

	c := parsing.NewCursor(text)
	if g, found := c.Extract(yearMonthPattern); found {
		year, month := atoi(g.Get(0)), atoi(g.Get(1))
		if month < 1 || month > 12 {
			return time.Time{}, time.Time{}, false
		}
		start, end = calendar.YearMonthBounds(year, time.Month(month))
		return start, end, true
	}

	month, found := calendar.MonthFromPrefix(now, text)
	if !found {
		return time.Time{}, time.Time{}, false
	}
	first, err := calendar.ResolveDayMonth(now, 1, int(month))
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	start, end = calendar.YearMonthBounds(first.Year(), first.Month())
	return start, end, true
}

func (s *Server) commandHTML(w http.ResponseWriter, r *http.Request, userID, channelID, text string) {
	start, end, ok := recapRange(text, time.Now())
	if !ok {
		writeJSON(w, slack.Ephemeral(helpText))
		return
	}
	s.htmlRecap(r.Context(), parsing.HtmlRecap{DateStart: start, DateEnd: end}, userID, channelID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) commandDownload(w http.ResponseWriter, r *http.Request, userID, channelID, text string) {
	start, end, ok := recapRange(strings.TrimPrefix(strings.TrimSpace(text), "-m "), time.Now())
	if !ok {
		writeJSON(w, slack.Ephemeral(helpText))
		return
	}
	merge := strings.HasPrefix(strings.TrimSpace(text), "-m")
	s.downloadAttachments(r.Context(), parsing.DownloadAttachments{DateStart: start, DateEnd: end, Merge: merge}, userID, channelID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) commandEmail(w http.ResponseWriter, r *http.Request, userID, text string) {
	address := parsing.ParseEmailAddress(text)
	if address == "" {
		writeJSON(w, slack.Ephemeral("That does not look like an email address."))
		return
	}
	if err := s.service.RegisterEmail(r.Context(), userID, address); err != nil {
		slog.Error("registering email failed", "user_id", userID, "error", err)
		writeJSON(w, slack.Ephemeral("Something went wrong while registering the address."))
		return
	}

	if s.sender != nil {
		err := s.sender.Send(address, "Verify your expense-bot address",
			fmt.Sprintf("Somebody registered %s for expense tickets. If that was you, confirm with `/verify %s` in the chat.", address, address))
		if err != nil {
			slog.Error("sending verification mail failed", "address", address, "error", err)
		}
	}
	writeJSON(w, slack.Ephemeral(fmt.Sprintf("Registered %s. Check your inbox to verify it.", address)))
}

func (s *Server) commandVerify(w http.ResponseWriter, r *http.Request, text string) {
	address := parsing.ParseEmailAddress(text)
	if address == "" {
		writeJSON(w, slack.Ephemeral("That does not look like an email address."))
		return
	}
	if err := s.service.VerifyEmail(address); err != nil {
		writeJSON(w, slack.Ephemeral("Address not found. Register it first with `/email`."))
		return
	}
	writeJSON(w, slack.Ephemeral(fmt.Sprintf("%s verified. Mail me your tickets!", address)))
}

// handleInteraction answers button clicks. The payload's button value is
// an encoded action string for the grammar parser.
func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var payload struct {
		User        struct{ ID string }      `json:"user"`
		Channel     struct{ ID string }      `json:"channel"`
		ResponseURL string                   `json:"response_url"`
		Actions     []struct{ Value string } `json:"actions"`
	}
	if err := json.Unmarshal([]byte(r.FormValue("payload")), &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if len(payload.Actions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	value := payload.Actions[0].Value
	action := parsing.ParseAction(value)
	if action == nil {
		slog.Warn("unrecognized action", "value", value, "user_id", payload.User.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.dispatch(r.Context(), action, payload.User.ID, payload.Channel.ID, payload.ResponseURL)
	w.WriteHeader(http.StatusOK)
}

// handleEvent answers the events API: URL verification handshakes and
// shared-file notifications.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Event     struct {
			Type      string `json:"type"`
			FileID    string `json:"file_id"`
			UserID    string `json:"user_id"`
			ChannelID string `json:"channel_id"`
		} `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "bad event", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "url_verification":
		writeJSON(w, map[string]string{"challenge": event.Challenge})
	case "event_callback":
		if event.Event.Type == "file_shared" {
			s.fileShared(r.Context(), event.Event.FileID, event.Event.UserID, event.Event.ChannelID)
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}
