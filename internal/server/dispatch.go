package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mberti/spesa/internal/docext"
	"github.com/mberti/spesa/internal/expense"
	"github.com/mberti/spesa/internal/parsing"
	"github.com/mberti/spesa/internal/recap"
)

// dispatch executes one decoded action on behalf of the clicking user.
func (s *Server) dispatch(ctx context.Context, action parsing.Action, userID, channelID, responseURL string) {
	switch a := action.(type) {
	case parsing.DeleteExpense:
		s.deleteExpense(ctx, a, userID, channelID, responseURL)
	case parsing.DownloadAttachments:
		s.downloadAttachments(ctx, a, userID, channelID)
	case parsing.Ask:
		s.ask(ctx, a, userID, channelID)
	case parsing.HtmlRecap:
		s.htmlRecap(ctx, a, userID, channelID)
	case parsing.Recap:
		s.postRecap(ctx, a, userID, channelID)
	case parsing.ResolvePending:
		s.resolvePending(ctx, a, responseURL, channelID, userID)
	case parsing.Destroy:
		s.destroy(ctx, responseURL)
	}
}

func (s *Server) deleteExpense(ctx context.Context, a parsing.DeleteExpense, userID, channelID, responseURL string) {
	e, err := s.service.DeleteExpense(ctx, userID, a.ExpenseID)
	if errors.Is(err, expense.ErrNotOwner) {
		s.ephemeral(ctx, channelID, userID, "You can only delete your own expenses.")
		return
	}
	if err != nil {
		slog.Error("deleting expense failed", "id", a.ExpenseID, "error", err)
		s.ephemeral(ctx, channelID, userID, "Expense not found.")
		return
	}
	text := fmt.Sprintf("Deleted expense %d (%s on %s).", e.ID, e.Amount, e.PayedOn.Format("2006-01-02"))
	if err := s.chat.ReplaceOriginal(ctx, responseURL, text); err != nil {
		slog.Error("replacing message failed", "error", err)
	}
}

func (s *Server) downloadAttachments(ctx context.Context, a parsing.DownloadAttachments, userID, channelID string) {
	proofs, err := s.service.CollectProofs(ctx, userID, a.DateStart, a.DateEnd)
	if err != nil {
		slog.Error("collecting proofs failed", "error", err)
		s.ephemeral(ctx, channelID, userID, "Something went wrong while collecting the attachments.")
		return
	}
	label := recap.RangeLabel(a.DateStart, a.DateEnd)
	if len(proofs) == 0 {
		s.ephemeral(ctx, channelID, userID, fmt.Sprintf("No attachments found in %s.", label))
		return
	}

	if a.Merge {
		files := make([]docext.BundleFile, 0, len(proofs))
		for _, p := range proofs {
			files = append(files, docext.BundleFile{Name: p.Filename, Data: p.Data})
		}
		bundle, err := docext.ZipBundle(files)
		if err != nil {
			slog.Error("bundling proofs failed", "error", err)
			s.ephemeral(ctx, channelID, userID, "Something went wrong while bundling the attachments.")
			return
		}
		name := fmt.Sprintf("expenses-%s.zip", label)
		if _, err := s.chat.UploadFile(ctx, channelID, name, bundle, "Attachments for "+label); err != nil {
			slog.Error("uploading bundle failed", "error", err)
		}
		return
	}

	for _, p := range proofs {
		comment := fmt.Sprintf("id=%d %s %s %s",
			p.Expense.ID, p.Expense.PayedOn.Format("2006-01-02"), p.Expense.Amount, p.Expense.Description)
		if _, err := s.chat.UploadFile(ctx, channelID, p.Filename, p.Data, comment); err != nil {
			slog.Error("uploading proof failed", "expense", p.Expense.ID, "error", err)
		}
	}
}

func (s *Server) ask(ctx context.Context, a parsing.Ask, userID, channelID string) {
	var prompt string
	switch a.Question {
	case "month":
		prompt = "Which month? Answer with `recap YYYY-MM`."
	default:
		prompt = fmt.Sprintf("I need more details for %q.", a.RequestText)
	}
	s.ephemeral(ctx, channelID, userID, prompt)
}

func (s *Server) htmlRecap(ctx context.Context, a parsing.HtmlRecap, userID, channelID string) {
	expenses, err := s.service.Expenses(userID, a.DateStart, a.DateEnd)
	if err != nil {
		slog.Error("listing expenses failed", "error", err)
		s.ephemeral(ctx, channelID, userID, "Something went wrong while reading your expenses.")
		return
	}
	page, err := recap.HTML(a.DateStart, a.DateEnd, expenses)
	if err != nil {
		slog.Error("rendering recap failed", "error", err)
		s.ephemeral(ctx, channelID, userID, "Something went wrong while rendering the recap.")
		return
	}
	label := recap.RangeLabel(a.DateStart, a.DateEnd)
	name := fmt.Sprintf("recap-%s.html", label)
	if _, err := s.chat.UploadFile(ctx, channelID, name, []byte(page), "Recap for "+label); err != nil {
		slog.Error("uploading recap failed", "error", err)
	}
}

func (s *Server) postRecap(ctx context.Context, a parsing.Recap, userID, channelID string) {
	expenses, err := s.service.Expenses(userID, a.DateStart, a.DateEnd)
	if err != nil {
		slog.Error("listing expenses failed", "error", err)
		s.ephemeral(ctx, channelID, userID, "Something went wrong while reading your expenses.")
		return
	}
	label := recap.RangeLabel(a.DateStart, a.DateEnd)
	text := fmt.Sprintf("Recap for %s:\n```%s```", label, recap.Table(expenses))
	if err := s.chat.PostMessage(ctx, channelID, text); err != nil {
		slog.Error("posting recap failed", "error", err)
	}
}

func (s *Server) resolvePending(ctx context.Context, a parsing.ResolvePending, responseURL, channelID, userID string) {
	e, err := s.service.ResolvePending(ctx, a.PendingID, a.Outcome)
	if err != nil {
		slog.Error("resolving pending expense failed", "id", a.PendingID, "error", err)
		s.ephemeral(ctx, channelID, userID, "Pending expense not found.")
		return
	}
	var text string
	if e != nil {
		text = fmt.Sprintf("Confirmed: expense %d, %s on %s.", e.ID, e.Amount, e.PayedOn.Format("2006-01-02"))
	} else {
		text = "Discarded."
	}
	if err := s.chat.ReplaceOriginal(ctx, responseURL, text); err != nil {
		slog.Error("replacing message failed", "error", err)
	}
}

func (s *Server) destroy(ctx context.Context, responseURL string) {
	if err := s.chat.ReplaceOriginal(ctx, responseURL, "🌍💥 The planet has been destroyed. Expenses no longer apply."); err != nil {
		slog.Error("replacing message failed", "error", err)
	}
}

// fileShared ingests a ticket shared in chat: regex-parsable tickets are
// committed straight away, anything else goes through the scanner as a
// pending expense with confirm buttons.
func (s *Server) fileShared(ctx context.Context, fileID, userID, channelID string) {
	filename, data, err := s.chat.DownloadFile(ctx, fileID)
	if err != nil {
		slog.Error("downloading shared file failed", "file_id", fileID, "error", err)
		return
	}

	e, p, err := s.service.AddTicket(ctx, userID, filename, data, http.DetectContentType(data))
	if errors.Is(err, expense.ErrUnsupportedDocument) {
		s.ephemeral(ctx, channelID, userID, fmt.Sprintf("I cannot read %s. Send me a PDF ticket.", filename))
		return
	}
	if err != nil {
		slog.Error("ingesting shared file failed", "file", filename, "error", err)
		s.ephemeral(ctx, channelID, userID, "Something went wrong while reading the ticket.")
		return
	}

	switch {
	case e != nil:
		resp := expenseAddedResponse(e)
		if err := s.chat.PostBlocks(ctx, channelID, resp.Text, resp.Blocks); err != nil {
			slog.Error("posting confirmation failed", "error", err)
		}
	case p != nil:
		if err := s.PendingAdded(ctx, channelID, p); err != nil {
			slog.Error("posting pending notice failed", "error", err)
		}
	}
}

func (s *Server) ephemeral(ctx context.Context, channelID, userID, text string) {
	if err := s.chat.PostEphemeral(ctx, channelID, userID, text); err != nil {
		slog.Error("posting ephemeral failed", "error", err)
	}
}
