package workload

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Progress renders write-phase bars on stderr. Bars are discarded when
// disabled or when stderr is not a terminal, so stdout stays scrapeable.
type Progress struct {
	p *mpb.Progress
}

func NewProgress(enabled bool) *Progress {
	if enabled && isatty.IsTerminal(os.Stderr.Fd()) {
		return &Progress{p: mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))}
	}
	return &Progress{p: mpb.New(mpb.WithWidth(64), mpb.WithOutput(nil))}
}

// ByteBar tracks total bytes.
func (p *Progress) ByteBar(title string, total int64) *mpb.Bar {
	return p.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncWidth),
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
}

// CountBar tracks a number of objects.
func (p *Progress) CountBar(title string, total int64) *mpb.Bar {
	return p.p.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncWidth),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
}

// Wait blocks until every bar completed or was aborted.
func (p *Progress) Wait() {
	p.p.Wait()
}

// settle aborts bar when the phase it tracks failed. A successful phase
// has already driven the bar to its total.
func settle(bar *mpb.Bar, err error) {
	if err != nil {
		bar.Abort(false)
	}
}
