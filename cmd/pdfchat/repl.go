package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"pdf-chat/internal/domain"
	"pdf-chat/internal/usecase"
)

type sourceManager interface {
	List() []domain.Source
	Selected() (domain.Source, bool)
	Select(id string) (domain.Source, error)
	AddByURL(ctx context.Context, rawURL string) (domain.Source, error)
	AddByFile(ctx context.Context, name string, data []byte) (domain.Source, error)
	Delete(ctx context.Context, id string) error
}

type conversation interface {
	Send(ctx context.Context, text string) (usecase.AskOutput, error)
	Reset(sourceID string)
	SourceID() string
	Messages() []domain.ChatMessage
}

const helpText = `commands:
  list                 show registered PDFs
  add-url <url>        register a PDF by URL
  add-file <path>      upload a local PDF
  select <id>          chat with another PDF
  delete <id>          remove a PDF
  history              show the current conversation
  html                 show the last answer as HTML
  ask <question>       ask about the selected PDF (plain text works too)
  help                 show this help
  quit                 exit`

var pageRefPattern = regexp.MustCompile(`\[P\d+\]`)

type repl struct {
	sources  sourceManager
	conv     conversation
	out      io.Writer
	readFile func(string) ([]byte, error)
	lastHTML string
}

func newREPL(sources sourceManager, conv conversation, out io.Writer) *repl {
	return &repl{sources: sources, conv: conv, out: out, readFile: os.ReadFile}
}

// Run reads commands from in until EOF or quit.
func (r *repl) Run(ctx context.Context, in io.Reader) error {
	r.syncConversation()
	r.printSelected()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !r.exec(ctx, line) {
			return nil
		}
	}
}

// exec runs one command line and reports whether the loop should continue.
func (r *repl) exec(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(r.out, helpText)
	case "list":
		r.list()
	case "add-url":
		r.changeSource(func() (domain.Source, error) { return r.sources.AddByURL(ctx, arg) }, "added")
	case "add-file":
		r.changeSource(func() (domain.Source, error) { return r.addFile(ctx, arg) }, "uploaded")
	case "select":
		r.changeSource(func() (domain.Source, error) { return r.sources.Select(arg) }, "selected")
	case "delete":
		if err := r.sources.Delete(ctx, arg); err != nil {
			r.printError(err)
			break
		}
		fmt.Fprintln(r.out, color.Green.Sprintf("deleted %s", arg))
		r.syncConversation()
		r.printSelected()
	case "history":
		r.history()
	case "html":
		fmt.Fprintln(r.out, r.lastHTML)
	case "ask":
		r.ask(ctx, arg)
	default:
		r.ask(ctx, line)
	}
	return true
}

func (r *repl) addFile(ctx context.Context, path string) (domain.Source, error) {
	if path == "" {
		return domain.Source{}, errors.New("usage: add-file <path>")
	}
	data, err := r.readFile(path)
	if err != nil {
		return domain.Source{}, err
	}
	return r.sources.AddByFile(ctx, filepath.Base(path), data)
}

// changeSource applies fn and starts a fresh conversation when the selected
// source changed.
func (r *repl) changeSource(fn func() (domain.Source, error), verb string) {
	src, err := fn()
	if err != nil {
		r.printError(err)
		return
	}
	fmt.Fprintln(r.out, color.Green.Sprintf("%s %s (%s)", verb, src.Name, src.ID))
	r.syncConversation()
}

func (r *repl) syncConversation() {
	id := ""
	if sel, ok := r.sources.Selected(); ok {
		id = sel.ID
	}
	if id != r.conv.SourceID() {
		r.conv.Reset(id)
		r.lastHTML = ""
	}
}

func (r *repl) ask(ctx context.Context, question string) {
	out, err := r.conv.Send(ctx, question)
	if err != nil {
		r.printError(err)
		return
	}
	r.lastHTML = out.HTML
	fmt.Fprintln(r.out, highlightRefs(out.Content))
}

func (r *repl) list() {
	sources := r.sources.List()
	if len(sources) == 0 {
		fmt.Fprintln(r.out, "no PDFs yet, try add-url or add-file")
		return
	}
	sel, _ := r.sources.Selected()

	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"", "ID", "Name", "Added"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	for _, s := range sources {
		marker := ""
		if s.ID == sel.ID {
			marker = "*"
		}
		table.Append([]string{marker, s.ID, s.Name, s.DateAdded.Local().Format("2006-01-02 15:04")})
	}
	table.Render()
}

func (r *repl) history() {
	msgs := r.conv.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(r.out, "no messages yet")
		return
	}
	for _, m := range msgs {
		who := color.Cyan.Sprint("you")
		if m.Role == domain.RoleAssistant {
			who = color.Magenta.Sprint("pdf")
		}
		fmt.Fprintf(r.out, "%s: %s\n", who, highlightRefs(m.Content))
	}
}

func (r *repl) printSelected() {
	sel, ok := r.sources.Selected()
	if !ok {
		fmt.Fprintln(r.out, color.Yellow.Sprint("no PDF selected, add one with add-url or add-file"))
		return
	}
	fmt.Fprintln(r.out, color.Cyan.Sprintf("chatting with %s (%s)", sel.Name, sel.ID))
}

func (r *repl) printError(err error) {
	var usecaseErr *usecase.Error
	if errors.As(err, &usecaseErr) {
		fmt.Fprintln(r.out, color.Red.Sprintf("error: %s (%s)", describe(usecaseErr), usecaseErr.Code))
		return
	}
	fmt.Fprintln(r.out, color.Red.Sprintf("error: %v", err))
}

func describe(err *usecase.Error) string {
	switch err.Reason {
	case "invalid_url":
		return "that is not a valid http(s) URL"
	case "not_a_pdf_url":
		return "the URL must point to a .pdf file"
	case "invalid_file_type":
		return "only PDF files can be uploaded"
	case "file_too_large":
		return "the file is larger than 32 MB"
	case "unknown_source":
		return "no PDF with that id"
	case "no_source_selected":
		return "select a PDF first"
	}
	if err.Code == usecase.ErrorRateLimited {
		return "rate limited, try again shortly"
	}
	return err.Reason
}

func highlightRefs(s string) string {
	return pageRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		return color.Yellow.Sprint(ref)
	})
}
