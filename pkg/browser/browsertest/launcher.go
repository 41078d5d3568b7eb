package browsertest

import (
	"context"
	"sync"

	"github.com/mailrake/mailrake/pkg/browser"
)

// Browser is a fake browser that hands out scripted pages in order.
// When PageFactory is set it is called instead; otherwise pages are
// taken from Pages, falling back to fresh empty pages.
type Browser struct {
	mu          sync.Mutex
	Pages       []*Page
	PageFactory func() (*Page, error)
	NewPageErr  error

	Opened []*Page
	Closed bool
}

func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.NewPageErr != nil {
		return nil, b.NewPageErr
	}
	var p *Page
	switch {
	case b.PageFactory != nil:
		var err error
		p, err = b.PageFactory()
		if err != nil {
			return nil, err
		}
	case len(b.Pages) > 0:
		p = b.Pages[0]
		b.Pages = b.Pages[1:]
	default:
		p = NewPage()
	}
	b.Opened = append(b.Opened, p)
	return p, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// Launcher is a fake launcher returning scripted browsers.
type Launcher struct {
	mu        sync.Mutex
	Browsers  []*Browser
	LaunchErr error

	Launched []*Browser
}

func (l *Launcher) Launch(ctx context.Context) (browser.Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	var b *Browser
	if len(l.Browsers) > 0 {
		b = l.Browsers[0]
		l.Browsers = l.Browsers[1:]
	} else {
		b = &Browser{}
	}
	l.Launched = append(l.Launched, b)
	return b, nil
}
