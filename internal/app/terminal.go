package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/prudhvinik1/storefront/internal/services"
)

// Terminal is a line-oriented console. It doubles as the session ended
// notifier: a pending notification is acknowledged by the next input line.
type Terminal struct {
	out   io.Writer
	lines chan string

	outMu sync.Mutex

	mu      sync.Mutex
	pending chan struct{}
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{
		out:   out,
		lines: make(chan string),
	}
	go t.scan(in)
	return t
}

func (t *Terminal) scan(in io.Reader) {
	defer close(t.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.lines <- scanner.Text()
	}
}

func (t *Terminal) Printf(format string, args ...any) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	_, _ = fmt.Fprintf(t.out, format, args...)
}

// Notify prints the notification and returns a channel closed by the next
// line the user enters.
func (t *Terminal) Notify(ctx context.Context, ev models.SessionEndedEvent) (<-chan struct{}, error) {
	ack := make(chan struct{})

	t.mu.Lock()
	if t.pending != nil {
		close(t.pending)
	}
	t.pending = ack
	t.mu.Unlock()

	t.Printf("\n*** %s ***\n%s\nPress Enter to continue.\n", ev.Title, ev.Reason)
	return ack, nil
}

// acknowledge consumes a pending notification, reporting whether there was one.
func (t *Terminal) acknowledge() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return false
	}
	close(t.pending)
	t.pending = nil
	return true
}

// ReadLine returns the next line that is not an acknowledgment.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	for {
		select {
		case line, ok := <-t.lines:
			if !ok {
				return "", io.EOF
			}
			if t.acknowledge() {
				continue
			}
			return strings.TrimSpace(line), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Prompt prints label and reads the answer.
func (t *Terminal) Prompt(ctx context.Context, label string) (string, error) {
	t.Printf("%s: ", label)
	return t.ReadLine(ctx)
}

// Run drives the catalog screens until the user quits, the input ends or
// the device is sent back to the login screen.
func (t *Terminal) Run(ctx context.Context, a *App) error {
	if err := a.Catalog().Load(ctx); err != nil {
		t.Printf("Could not load products: %v\n", err)
	} else {
		t.printProducts(a.Catalog().Visible(), a.Catalog().HasMore())
	}
	t.Printf("Type 'help' for commands.\n> ")

	for {
		select {
		case route := <-a.Routes():
			if route == services.RouteLogin {
				t.Printf("\nSigned out.\n")
				return nil
			}
			continue
		case line, ok := <-t.lines:
			if !ok {
				return nil
			}
			if t.acknowledge() {
				continue
			}
			if done := t.handle(ctx, a, strings.TrimSpace(line)); done {
				return nil
			}
			t.Printf("> ")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handle runs one command and reports whether the loop should stop.
func (t *Terminal) handle(ctx context.Context, a *App, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	catalog := a.Catalog()

	switch strings.ToLower(cmd) {
	case "":
	case "help":
		t.Printf("Commands: more, search <text>, category [name], categories, product <id>, logout, quit\n")
	case "more":
		before := len(catalog.Visible())
		if !catalog.LoadMore() {
			t.Printf("No more products.\n")
			return false
		}
		t.printProducts(catalog.Visible()[before:], catalog.HasMore())
	case "search":
		catalog.SetSearchQuery(arg)
		t.printProducts(catalog.Visible(), catalog.HasMore())
	case "category":
		if strings.EqualFold(arg, "all") {
			arg = ""
		}
		catalog.SetCategory(arg)
		t.printProducts(catalog.Visible(), catalog.HasMore())
	case "categories":
		for _, c := range catalog.Categories() {
			t.Printf("  %s\n", c)
		}
	case "product":
		id, err := strconv.Atoi(arg)
		if err != nil {
			t.Printf("Usage: product <id>\n")
			return false
		}
		p, err := a.ShowProduct(ctx, id)
		if errors.Is(err, services.ErrProductNotFound) {
			t.Printf("Product %d not found.\n", id)
			return false
		}
		if err != nil {
			t.Printf("Could not load product: %v\n", err)
			return false
		}
		t.printProduct(p)
		_ = a.Back(ctx)
	case "logout":
		if err := a.Logout(ctx); err != nil {
			t.Printf("Logout finished with errors: %v\n", err)
		}
	case "quit", "exit":
		return true
	default:
		t.Printf("Unknown command %q. Type 'help' for commands.\n", cmd)
	}
	return false
}

func (t *Terminal) printProducts(products []models.Product, hasMore bool) {
	if len(products) == 0 {
		t.Printf("No products found.\n")
		return
	}
	for _, p := range products {
		t.Printf("%4d  %-50.50s  %10s  %s\n", p.ID, p.Title, p.Price.StringFixed(2), p.Category)
	}
	if hasMore {
		t.Printf("Type 'more' to see more.\n")
	}
}

func (t *Terminal) printProduct(p *models.Product) {
	t.Printf("\n%s\n", p.Title)
	t.Printf("Price:    %s\n", p.Price.StringFixed(2))
	t.Printf("Category: %s\n", p.Category)
	t.Printf("Rating:   %.1f (%d reviews)\n", p.Rating.Rate, p.Rating.Count)
	if p.Description != "" {
		t.Printf("\n%s\n", p.Description)
	}
	t.Printf("\n")
}
