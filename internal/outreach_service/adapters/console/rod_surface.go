package console

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/wecrm/outreach_gateway/internal/outreach_service/domain"
)

// Selectors for the marketing console build this gateway targets. The console
// is a third-party surface; if its markup changes these are the knobs to turn.
const (
	selLoginUser       = `input[name="account"]`
	selLoginPass       = `input[type="password"]`
	selLoginSubmit     = `button[type="submit"]`
	selWorkbenchReady  = `.workbench-sidebar`
	selAccountEntry    = `.account-list .account-item`
	selActiveAccount   = `.account-list .account-item.active .account-name`
	selUngroupedCount  = `.group-list .ungrouped .count`
	selContactsTab     = `.sidebar-nav .contacts-entry`
	selContactListBox  = `.contact-list .virtual-scroll`
	selContactRow      = `.contact-list .contact-row`
	selRowName         = `.contact-name`
	selRowRemark       = `.contact-remark`
	selRowAvatar       = `img.contact-avatar`
	selSummaryCounter  = `.contact-list .summary-total`
	selSearchInput     = `.chat-panel .search-input input`
	selSearchResult    = `.chat-panel .search-result .result-item`
	selMessageInput    = `.chat-panel .editor [contenteditable]`
	selSendButton      = `.chat-panel .send-btn`
	selMaterialTab     = `.material-panel .tab-%s`
	selMaterialItemFmt = `.material-panel .material-item[data-id="%d"]`
	selMaterialSend    = `.material-panel .confirm-send`
	selImageURLInput   = `.image-panel .url-input input`
	selImageAppend     = `.image-panel .append-btn`
	selImageSend       = `.image-panel .send-btn`
)

// RodConfig holds the browser-session settings for the rod adapter.
type RodConfig struct {
	ConsoleURL    string
	Headless      bool
	NavTimeout    time.Duration
	ScreenshotDir string
}

// RodSurface drives the console through a Chromium session via go-rod.
type RodSurface struct {
	cfg      RodConfig
	logger   *slog.Logger
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

// NewRodSurface launches a browser and opens the console login page.
func NewRodSurface(ctx context.Context, cfg RodConfig, logger *slog.Logger) (*RodSurface, error) {
	l := launcher.New().Headless(cfg.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: cfg.ConsoleURL})
	if err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("failed to open console page: %w", err)
	}
	if err := page.Timeout(cfg.NavTimeout).WaitLoad(); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("console page did not load: %w", err)
	}

	// Needed so ObserveNetwork receives response events.
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = browser.Close()
		l.Cleanup()
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}

	return &RodSurface{
		cfg:      cfg,
		logger:   logger.With("component", "rod_surface"),
		browser:  browser,
		page:     page,
		launcher: l,
	}, nil
}

// Authenticate fills the login form and waits for the workbench sidebar.
func (s *RodSurface) Authenticate(ctx context.Context, creds Credentials) error {
	page := s.page.Context(ctx)

	userEl, err := page.Timeout(s.cfg.NavTimeout).Element(selLoginUser)
	if err != nil {
		return fmt.Errorf("login form not found: %w", domain.ErrLoginFailed)
	}
	if err := userEl.Input(creds.Username); err != nil {
		return fmt.Errorf("failed to type username: %w", err)
	}
	passEl, err := page.Element(selLoginPass)
	if err != nil {
		return fmt.Errorf("password field not found: %w", domain.ErrLoginFailed)
	}
	if err := passEl.Input(creds.Password); err != nil {
		return fmt.Errorf("failed to type password: %w", err)
	}
	submitEl, err := page.Element(selLoginSubmit)
	if err != nil {
		return fmt.Errorf("login submit not found: %w", domain.ErrLoginFailed)
	}
	if err := submitEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click login: %w", err)
	}

	ok, err := AwaitCondition(ctx, func(ctx context.Context) (bool, error) {
		has, _, err := s.page.Context(ctx).Has(selWorkbenchReady)
		return has, err
	}, s.cfg.NavTimeout, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("waiting for workbench: %w", err)
	}
	if !ok {
		s.dumpScreenshot(ctx, "login_failed")
		return domain.ErrLoginFailed
	}
	return nil
}

// ListAccounts reads the display names of all managed account entries.
func (s *RodSurface) ListAccounts(ctx context.Context) ([]string, error) {
	entries, err := s.page.Context(ctx).Elements(selAccountEntry)
	if err != nil {
		return nil, fmt.Errorf("account list not readable: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		text, err := entry.Text()
		if err != nil {
			continue
		}
		if name := strings.TrimSpace(text); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// SelectAccount clicks the account list entry whose text equals accountName.
func (s *RodSurface) SelectAccount(ctx context.Context, accountName string) error {
	entries, err := s.page.Context(ctx).Elements(selAccountEntry)
	if err != nil {
		return fmt.Errorf("account list not readable: %w", err)
	}
	for _, entry := range entries {
		text, err := entry.Text()
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == accountName {
			if err := entry.Click(proto.InputMouseButtonLeft, 1); err != nil {
				return fmt.Errorf("failed to click account entry %q: %w", accountName, err)
			}
			return nil
		}
	}
	return fmt.Errorf("account %q not present in account list: %w", accountName, domain.ErrNotFound)
}

func (s *RodSurface) SelectedAccountName(ctx context.Context) (string, error) {
	el, err := s.page.Context(ctx).Element(selActiveAccount)
	if err != nil {
		return "", fmt.Errorf("active account label not found: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (s *RodSurface) UngroupedContactCount(ctx context.Context) (int, error) {
	return s.readCounter(ctx, selUngroupedCount)
}

// OpenContactList clicks the contacts tab and waits for the list container.
func (s *RodSurface) OpenContactList(ctx context.Context) error {
	tab, err := s.page.Context(ctx).Element(selContactsTab)
	if err != nil {
		return fmt.Errorf("contacts tab not found: %w", err)
	}
	if err := tab.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click contacts tab: %w", err)
	}
	ok, err := AwaitCondition(ctx, func(ctx context.Context) (bool, error) {
		has, _, err := s.page.Context(ctx).Has(selContactListBox)
		return has, err
	}, s.cfg.NavTimeout, 300*time.Millisecond)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("contact list container never rendered")
	}
	return nil
}

// ObserveNetwork waits up to window for a response whose body satisfies match.
// Responses that cannot be matched are skipped silently; a closed window
// returns (nil, nil) so the caller can fall back to scroll replay.
func (s *RodSurface) ObserveNetwork(ctx context.Context, match func(url string, body []byte) bool, window time.Duration) ([]byte, error) {
	obsCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	page := s.page.Context(obsCtx)
	result := make(chan []byte, 1)

	wait := page.EachEvent(func(ev *proto.NetworkResponseReceived) bool {
		body, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(page)
		if err != nil {
			// Body already evicted from the browser cache; not fatal.
			return false
		}
		if match(ev.Response.URL, []byte(body.Body)) {
			select {
			case result <- []byte(body.Body):
			default:
			}
			return true
		}
		return false
	})
	go wait()

	select {
	case payload := <-result:
		return payload, nil
	case <-obsCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
}

func (s *RodSurface) ScrollListBy(ctx context.Context, pixels int) error {
	_, err := s.page.Context(ctx).Eval(`(sel, delta) => {
		const el = document.querySelector(sel);
		if (el) { el.scrollTop += delta; }
	}`, selContactListBox, pixels)
	return err
}

func (s *RodSurface) ScrollListToTop(ctx context.Context) error {
	_, err := s.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (el) { el.scrollTop = 0; }
	}`, selContactListBox)
	return err
}

func (s *RodSurface) ReadVisibleContacts(ctx context.Context) ([]RawContact, error) {
	rows, err := s.page.Context(ctx).Elements(selContactRow)
	if err != nil {
		return nil, fmt.Errorf("contact rows not readable: %w", err)
	}
	contacts := make([]RawContact, 0, len(rows))
	for _, row := range rows {
		var rc RawContact
		if nameEl, err := row.Element(selRowName); err == nil {
			if text, err := nameEl.Text(); err == nil {
				rc.DisplayName = strings.TrimSpace(text)
			}
		}
		if rc.DisplayName == "" {
			continue
		}
		if remarkEl, err := row.Element(selRowRemark); err == nil {
			if text, err := remarkEl.Text(); err == nil {
				rc.RemarkName = strings.TrimSpace(text)
			}
		}
		if avatarEl, err := row.Element(selRowAvatar); err == nil {
			if src, err := avatarEl.Attribute("src"); err == nil && src != nil {
				rc.AvatarRef = *src
			}
		}
		contacts = append(contacts, rc)
	}
	return contacts, nil
}

func (s *RodSurface) ReadSummaryCounter(ctx context.Context) (int, error) {
	return s.readCounter(ctx, selSummaryCounter)
}

// LocateContact types the keyword into the conversation search box and opens
// the first result.
func (s *RodSurface) LocateContact(ctx context.Context, keyword string) (bool, error) {
	page := s.page.Context(ctx)
	searchEl, err := page.Element(selSearchInput)
	if err != nil {
		return false, fmt.Errorf("search input not found: %w", err)
	}
	if err := searchEl.SelectAllText(); err == nil {
		_ = searchEl.Input("")
	}
	if err := searchEl.Input(keyword); err != nil {
		return false, fmt.Errorf("failed to type search keyword: %w", err)
	}
	if err := page.Keyboard.Type(input.Enter); err != nil {
		return false, fmt.Errorf("failed to submit search: %w", err)
	}

	found, err := AwaitCondition(ctx, func(ctx context.Context) (bool, error) {
		has, _, err := s.page.Context(ctx).Has(selSearchResult)
		return has, err
	}, 5*time.Second, 250*time.Millisecond)
	if err != nil || !found {
		return false, err
	}

	resultEl, err := page.Element(selSearchResult)
	if err != nil {
		return false, nil
	}
	if err := resultEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("failed to open conversation: %w", err)
	}
	return true, nil
}

// Deliver performs the content-specific send action in the open conversation.
func (s *RodSurface) Deliver(ctx context.Context, item domain.ContentItem) error {
	switch v := item.(type) {
	case domain.TextContent:
		return s.deliverText(ctx, v.Body)
	case domain.VideoContent:
		return s.deliverMaterial(ctx, "video", v.MaterialID)
	case domain.LinkContent:
		return s.deliverMaterial(ctx, "link", v.MaterialID)
	case domain.ImageContent:
		return s.deliverImages(ctx, v.URLs)
	default:
		return fmt.Errorf("unsupported content item type %q", item.Type())
	}
}

func (s *RodSurface) deliverText(ctx context.Context, body string) error {
	page := s.page.Context(ctx)
	editor, err := page.Element(selMessageInput)
	if err != nil {
		return fmt.Errorf("message editor not found: %w", err)
	}
	if err := editor.Input(body); err != nil {
		return fmt.Errorf("failed to type message: %w", err)
	}
	return s.clickSend(ctx, selSendButton)
}

func (s *RodSurface) deliverMaterial(ctx context.Context, kind string, materialID int64) error {
	page := s.page.Context(ctx)
	tab, err := page.Element(fmt.Sprintf(selMaterialTab, kind))
	if err != nil {
		return fmt.Errorf("%s material tab not found: %w", kind, err)
	}
	if err := tab.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to open %s material tab: %w", kind, err)
	}
	itemEl, err := page.Timeout(5 * time.Second).Element(fmt.Sprintf(selMaterialItemFmt, materialID))
	if err != nil {
		return fmt.Errorf("%s material %d not found: %w", kind, materialID, err)
	}
	if err := itemEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to select %s material %d: %w", kind, materialID, err)
	}
	return s.clickSend(ctx, selMaterialSend)
}

func (s *RodSurface) deliverImages(ctx context.Context, urls []string) error {
	page := s.page.Context(ctx)
	for _, url := range urls {
		inputEl, err := page.Element(selImageURLInput)
		if err != nil {
			return fmt.Errorf("image url input not found: %w", err)
		}
		if err := inputEl.Input(url); err != nil {
			return fmt.Errorf("failed to type image url: %w", err)
		}
		appendEl, err := page.Element(selImageAppend)
		if err != nil {
			return fmt.Errorf("image append button not found: %w", err)
		}
		if err := appendEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("failed to append image: %w", err)
		}
	}
	return s.clickSend(ctx, selImageSend)
}

func (s *RodSurface) clickSend(ctx context.Context, selector string) error {
	sendEl, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("send button not found: %w", err)
	}
	if err := sendEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click send: %w", err)
	}
	return nil
}

// Screenshot writes a full-page capture to path.
func (s *RodSurface) Screenshot(ctx context.Context, path string) error {
	data, err := s.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Close tears down the browser session, releasing the console login slot.
func (s *RodSurface) Close() error {
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

func (s *RodSurface) readCounter(ctx context.Context, selector string) (int, error) {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return 0, fmt.Errorf("counter %q not found: %w", selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return 0, err
	}
	// Counters render like "共 1024 人" or "1024"; keep the digits only.
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, fmt.Errorf("counter %q has no numeric content: %q", selector, text)
	}
	return strconv.Atoi(digits)
}

func (s *RodSurface) dumpScreenshot(ctx context.Context, tag string) {
	if s.cfg.ScreenshotDir == "" {
		return
	}
	path := filepath.Join(s.cfg.ScreenshotDir, fmt.Sprintf("%s_%d.png", tag, time.Now().Unix()))
	if err := s.Screenshot(ctx, path); err != nil {
		s.logger.WarnContext(ctx, "Failed to write debug screenshot", "path", path, "error", err)
	}
}
