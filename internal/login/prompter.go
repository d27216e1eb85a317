package login

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

const manualPromptText = "Please log in manually in the browser window. " +
	"Complete ALL steps, including any OTP/2FA prompts. " +
	"Progress is detected automatically; there is nothing to confirm here."

// ConsolePrompter surfaces the manual login instructions on the terminal
// and, when a page is attached, as an in-page banner so the instructions sit
// next to the form the user must fill.
type ConsolePrompter struct {
	out    io.Writer
	page   schemas.BrowserContext
	logger *zap.Logger
}

var _ ManualPrompter = (*ConsolePrompter)(nil)

// NewConsolePrompter writes instructions to out. page may be nil to skip the
// in-page banner.
func NewConsolePrompter(out io.Writer, page schemas.BrowserContext, logger *zap.Logger) *ConsolePrompter {
	return &ConsolePrompter{
		out:    out,
		page:   page,
		logger: logger.Named("prompter"),
	}
}

// PromptManualLogin shows the instructions once.
func (p *ConsolePrompter) PromptManualLogin(ctx context.Context, siteKey string) error {
	if p.out != nil {
		fmt.Fprintf(p.out, "\n==> Manual login required for %s.\n==> %s\n\n", siteKey, manualPromptText)
	}

	if p.page != nil {
		if err := p.page.Evaluate(ctx, bannerScript(), nil); err != nil {
			// The terminal message already went out; the banner is extra.
			p.logger.Debug("Could not inject the in-page login banner.", zap.Error(err))
		}
	}
	return nil
}

// bannerScript injects a fixed banner rather than an alert(): a blocking
// dialog would freeze the page the user needs to type into.
func bannerScript() string {
	return fmt.Sprintf(`(() => {
    try {
        const id = '__cartwright_login_banner';
        if (document.getElementById(id)) { return; }
        const el = document.createElement('div');
        el.id = id;
        el.textContent = %q;
        el.style.cssText = 'position:fixed;top:0;left:0;right:0;z-index:2147483647;' +
            'background:#1a73e8;color:#fff;padding:10px 16px;font:14px sans-serif;text-align:center;';
        const attach = () => { if (document.body) { document.body.appendChild(el); } };
        if (document.body) { attach(); } else { document.addEventListener('DOMContentLoaded', attach); }
    } catch (e) {}
})()`, manualPromptText)
}
