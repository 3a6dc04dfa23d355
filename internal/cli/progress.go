package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tutu-network/painter/internal/domain"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Terminal progress for weight downloads:
//   [=========>..........]  42% | 2.8 MB / 6.7 MB | 1.4 MB/s | ETA 3s

const barWidth = 30

type progressBar struct {
	started time.Time
}

func newProgressBar() *progressBar {
	return &progressBar{started: time.Now()}
}

// callback matches assets.ProgressFunc.
func (p *progressBar) callback(status string, pct float64) {
	if !strings.HasPrefix(status, "downloading ") {
		p.renderSimple(status, pct)
		return
	}
	p.renderBar(status, pct, time.Now())
}

func (p *progressBar) renderSimple(status string, pct float64) {
	clearLine()
	switch {
	case strings.Contains(status, "already"):
		fmt.Fprintf(os.Stderr, "[ok] %s\n", status)
	case pct >= 100:
		fmt.Fprintf(os.Stderr, "[done] %s in %s\n", status, time.Since(p.started).Round(time.Millisecond))
	case strings.Contains(status, "verifying"):
		fmt.Fprint(os.Stderr, "[...] verifying download...")
	default:
		fmt.Fprintf(os.Stderr, "[...] %s", status)
	}
}

func (p *progressBar) renderBar(status string, pct float64, now time.Time) {
	pct = min(max(pct, 0), 100)
	sizes := strings.TrimPrefix(status, "downloading ")

	clearLine()
	fmt.Fprintf(os.Stderr, "  %s %3.0f%% | %s | %s | %s",
		renderBar(pct), pct, sizes, p.speed(sizes, now), p.eta(pct, now))
}

func renderBar(pct float64) string {
	filled := min(int(pct/100*float64(barWidth)), barWidth)
	switch {
	case filled == barWidth:
		return "[" + strings.Repeat("=", barWidth) + "]"
	case filled > 0:
		return "[" + strings.Repeat("=", filled-1) + ">" + strings.Repeat(".", barWidth-filled) + "]"
	default:
		return "[" + strings.Repeat(".", barWidth) + "]"
	}
}

// speed derives throughput from the "done / total" part of the status.
func (p *progressBar) speed(sizes string, now time.Time) string {
	elapsed := now.Sub(p.started).Seconds()
	if elapsed < 0.5 {
		return "-- MB/s"
	}
	done, _, ok := strings.Cut(sizes, " / ")
	if !ok {
		return "-- MB/s"
	}
	n, err := humanize.ParseBytes(done)
	if err != nil {
		return "-- MB/s"
	}
	return domain.HumanSize(int64(float64(n)/elapsed)) + "/s"
}

func (p *progressBar) eta(pct float64, now time.Time) string {
	if pct <= 0 || pct >= 100 {
		return "ETA --"
	}
	elapsed := now.Sub(p.started).Seconds()
	if elapsed < 1 {
		return "ETA --"
	}

	remaining := max(elapsed/(pct/100)-elapsed, 0)
	switch {
	case remaining < 60:
		return fmt.Sprintf("ETA %ds", int(remaining))
	case remaining < 3600:
		return fmt.Sprintf("ETA %dm%ds", int(remaining)/60, int(remaining)%60)
	default:
		return fmt.Sprintf("ETA %dh%dm", int(remaining)/3600, (int(remaining)%3600)/60)
	}
}

func clearLine() {
	fmt.Fprint(os.Stderr, "\r\033[K")
}
