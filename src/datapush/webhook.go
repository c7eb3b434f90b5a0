package datapush

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fracabu/logistic-data-dash/src/processor"
)

const (
	RetryTimes    = 5
	RetryInterval = 2 * time.Second
)

// Pusher posts dashboard summaries to an external webhook, an ops chat
// endpoint usually.
type Pusher struct {
	URL    string
	Client *http.Client

	retryTimes    int
	retryInterval time.Duration
	printer       *message.Printer
}

func NewPusher(url string) *Pusher {
	return &Pusher{
		URL:           url,
		Client:        &http.Client{Timeout: 30 * time.Second},
		retryTimes:    RetryTimes,
		retryInterval: RetryInterval,
		printer:       message.NewPrinter(language.English),
	}
}

// Summary is the webhook payload: headline text plus the raw numbers for
// receivers that render their own view.
type Summary struct {
	Text      string              `json:"text"`
	Generated string              `json:"generated"`
	KPIs      processor.KPIBundle `json:"kpis"`
	Materials []processor.MaterialStat `json:"top_materials"`
}

// PushSummary formats and delivers one KPI snapshot, retrying transient
// failures.
func (p *Pusher) PushSummary(kpis processor.KPIBundle, materials []processor.MaterialStat) error {
	if p.URL == "" {
		return nil
	}

	summary := Summary{
		Text:      p.formatSummary(kpis, materials),
		Generated: time.Now().Format("2006-01-02 15:04:05"),
		KPIs:      kpis,
		Materials: materials,
	}

	return retry(func() error {
		return p.post(summary)
	}, p.retryTimes, p.retryInterval)
}

// formatSummary renders the headline with grouped thousands, e.g.
// "1,204 shipments, 182,340 km total".
func (p *Pusher) formatSummary(kpis processor.KPIBundle, materials []processor.MaterialStat) string {
	if kpis.Shipments == 0 {
		return "no shipments in the selected window"
	}

	text := p.printer.Sprintf("%d shipments, %.0f km total, %.1f km mean",
		kpis.Shipments, kpis.TotalDistanceKM, kpis.MeanDistanceKM)

	if kpis.HasOperational {
		text += p.printer.Sprintf("; on-time ratio %.2f", kpis.MeanOnTimeRatio)
	}
	if len(materials) > 0 {
		text += p.printer.Sprintf("; top material %s (%.0f km)",
			materials[0].Material, materials[0].TotalKM)
	}
	return text
}

func (p *Pusher) post(summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting summary: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func retry(fn func() error, times int, interval time.Duration) error {
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			time.Sleep(interval)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", times, err)
}
