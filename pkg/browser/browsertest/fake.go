// Package browsertest provides an in-memory scriptable implementation of
// the browser boundary for tests. Selector matching is deliberately
// shallow: a node matches when it satisfies the last simple selector of
// any comma-separated alternative (combinators are ignored), which is
// enough to exercise the drivers against realistic selector strings.
package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/mailrake/mailrake/pkg/browser"
)

// Node is one fake DOM node.
type Node struct {
	Tag     string
	ID      string
	Classes []string
	Attrs   map[string]string
	Text    string
	HTML    string

	Children []*Node

	// Detached makes every operation fail with a NotAttachedError,
	// simulating a handle that went stale.
	Detached bool
	// ClickErr is returned by Click when set.
	ClickErr error
	// OnClick runs on every successful click; use it to mutate the tree
	// the way a real UI would.
	OnClick func()

	// Clicks counts successful clicks. FilledWith records the last Fill.
	Clicks     int
	FilledWith string
}

// Attr returns the named attribute or "".
func (n *Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

var (
	_ browser.Page    = (*Page)(nil)
	_ browser.Element = (*element)(nil)
)

// Page is a fake browser page over a mutable node tree.
type Page struct {
	mu   sync.Mutex
	root []*Node

	NavigateErr error
	Navigations []string
	Styles      []string
	Keys        []string

	// Responses maps fetch URLs to canned responses; FetchErrs to errors.
	Responses map[string]*browser.FetchResponse
	FetchErrs map[string]error

	Closed bool
}

// NewPage creates a page with the given top-level nodes.
func NewPage(root ...*Node) *Page {
	return &Page{root: root}
}

// SetRoot replaces the page's node tree.
func (p *Page) SetRoot(root ...*Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = root
}

// Append adds top-level nodes, e.g. a dialog opened by a click handler.
func (p *Page) Append(nodes ...*Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.root = append(p.root, nodes...)
}

// RemoveNode drops a top-level node.
func (p *Page) RemoveNode(target *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.root[:0]
	for _, n := range p.root {
		if n != target {
			out = append(out, n)
		}
	}
	p.root = out
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	return nil
}

func (p *Page) FindOne(ctx context.Context, selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := findFirst(p.root, selector); n != nil {
		return &element{page: p, node: n}, nil
	}
	return nil, browser.ErrNotFound
}

func (p *Page) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []browser.Element
	for _, n := range findAll(p.root, selector) {
		out = append(out, &element{page: p, node: n})
	}
	return out, nil
}

func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if findFirst(p.root, selector) == nil {
		return &browser.TimeoutError{Selector: selector, Timeout: timeout}
	}
	return nil
}

func (p *Page) AddStyle(ctx context.Context, css string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Styles = append(p.Styles, css)
	return nil
}

func (p *Page) PressKey(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Keys = append(p.Keys, key)
	return nil
}

func (p *Page) Fetch(ctx context.Context, url string) (*browser.FetchResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.FetchErrs[url]; ok {
		return nil, err
	}
	if resp, ok := p.Responses[url]; ok {
		return resp, nil
	}
	return &browser.FetchResponse{Status: 404, Headers: map[string]string{}}, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// element wraps a Node as a browser.Element.
type element struct {
	page *Page
	node *Node
}

func (e *element) check() error {
	if e.node.Detached {
		return &browser.NotAttachedError{}
	}
	return nil
}

func (e *element) Click(ctx context.Context, opts browser.ClickOptions) error {
	e.page.mu.Lock()
	if err := e.check(); err != nil {
		e.page.mu.Unlock()
		return err
	}
	if e.node.ClickErr != nil {
		e.page.mu.Unlock()
		return e.node.ClickErr
	}
	e.node.Clicks++
	onClick := e.node.OnClick
	e.page.mu.Unlock()

	// Run outside the lock: handlers commonly mutate the page tree.
	if onClick != nil {
		onClick()
	}
	return nil
}

func (e *element) Fill(ctx context.Context, value string) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	e.node.FilledWith = value
	return nil
}

func (e *element) GetAttribute(ctx context.Context, name string) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return "", err
	}
	return e.node.Attr(name), nil
}

func (e *element) InnerText(ctx context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return "", err
	}
	return e.node.Text, nil
}

func (e *element) InnerHTML(ctx context.Context) (string, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return "", err
	}
	return e.node.HTML, nil
}

func (e *element) FindOne(ctx context.Context, selector string) (browser.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	if n := findFirst(e.node.Children, selector); n != nil {
		return &element{page: e.page, node: n}, nil
	}
	return nil, browser.ErrNotFound
}

func (e *element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return nil, err
	}
	var out []browser.Element
	for _, n := range findAll(e.node.Children, selector) {
		out = append(out, &element{page: e.page, node: n})
	}
	return out, nil
}

func (e *element) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if err := e.check(); err != nil {
		return err
	}
	if findFirst(e.node.Children, selector) == nil {
		return &browser.TimeoutError{Selector: selector, Timeout: timeout}
	}
	return nil
}

func (e *element) WaitStable(ctx context.Context) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return e.check()
}

// tree walking

func findFirst(nodes []*Node, selector string) *Node {
	for _, n := range nodes {
		if Matches(n, selector) {
			return n
		}
		if found := findFirst(n.Children, selector); found != nil {
			return found
		}
	}
	return nil
}

func findAll(nodes []*Node, selector string) []*Node {
	var out []*Node
	for _, n := range nodes {
		if Matches(n, selector) {
			out = append(out, n)
		}
		out = append(out, findAll(n.Children, selector)...)
	}
	return out
}
