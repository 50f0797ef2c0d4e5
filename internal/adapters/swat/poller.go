package swat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wisdom-oss/service-swat-collector/internal/domain"
	"github.com/wisdom-oss/service-swat-collector/internal/ports"
)

const (
	alertKindForecast  = "forecast_request"
	forecastTimeLayout = "2006-01-02 15:04"
)

// Forecast is the upstream response for one location. Field names follow the
// upstream API.
type Forecast struct {
	From      string            `json:"vorhersageZeit"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Current   map[string]uint32 `json:"aktuell"`
	Forecasts map[string]uint32 `json:"vorhersage"`
}

// Poller requests the rain forecast for every configured location on a fixed
// interval and submits one point per location into the pipeline. Sustained
// request failures raise a notifier alert; a fully successful round clears
// it.
type Poller struct {
	locations []Location
	baseURL   string
	interval  time.Duration
	client    *http.Client
	clk       clock.Clock
	obs       ports.Observability
	notifier  ports.Notifier

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewPoller(baseURL string, interval time.Duration, locations []Location,
	clk clock.Clock, obs ports.Observability, notifier ports.Notifier) *Poller {
	return &Poller{
		locations: locations,
		baseURL:   baseURL,
		interval:  interval,
		client:    &http.Client{Timeout: 30 * time.Second},
		clk:       clk,
		obs:       obs,
		notifier:  notifier,
		stopCh:    make(chan struct{}),
	}
}

func (p *Poller) Start(out chan<- domain.Point) error {
	if len(p.locations) == 0 {
		return fmt.Errorf("no locations configured")
	}
	p.wg.Add(1)
	go p.loop(out)
	return nil
}

func (p *Poller) Stop() error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}

func (p *Poller) loop(out chan<- domain.Point) {
	defer p.wg.Done()

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	p.pollOnce(out)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pollOnce(out)
		}
	}
}

func (p *Poller) pollOnce(out chan<- domain.Point) {
	failed := 0
	for _, loc := range p.locations {
		point, err := p.collect(loc)
		if err != nil {
			failed++
			p.obs.LogError("forecast_request_failed", err,
				ports.Field{Key: "location", Value: loc.Name})
			continue
		}
		select {
		case out <- point:
		case <-p.stopCh:
			return
		}
	}

	if failed > 0 {
		p.notifier.Alert(alertKindForecast,
			fmt.Sprintf("%d of %d forecast requests failed", failed, len(p.locations)))
		return
	}
	p.notifier.Clear(alertKindForecast)
}

func (p *Poller) collect(loc Location) (domain.Point, error) {
	endpoint := fmt.Sprintf("%s/Vorhersage?%s", p.baseURL, url.Values{
		"lat": {formatCoord(loc.Lat)},
		"lon": {formatCoord(loc.Lon)},
	}.Encode())

	resp, err := p.client.Get(endpoint)
	if err != nil {
		return domain.Point{}, fmt.Errorf("forecast request for %q: %w", loc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Point{}, fmt.Errorf("forecast request for %q: unexpected status %s", loc.Name, resp.Status)
	}

	var forecast Forecast
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return domain.Point{}, fmt.Errorf("parse forecast for %q: %w", loc.Name, err)
	}

	ts, err := time.ParseInLocation(forecastTimeLayout, forecast.From, time.UTC)
	if err != nil {
		return domain.Point{}, fmt.Errorf("parse forecast timestamp %q: %w", forecast.From, err)
	}

	current, err := json.Marshal(forecast.Current)
	if err != nil {
		return domain.Point{}, fmt.Errorf("serialize current forecast: %w", err)
	}
	forecasts, err := json.Marshal(forecast.Forecasts)
	if err != nil {
		return domain.Point{}, fmt.Errorf("serialize forecasts: %w", err)
	}

	return domain.NewPoint("forecast",
		map[string]string{
			"id":   strconv.Itoa(loc.ID),
			"name": loc.Name,
			"lat":  formatCoord(loc.Lat),
			"lon":  formatCoord(loc.Lon),
		},
		map[string]any{
			"current":   string(current),
			"forecasts": string(forecasts),
		},
		ts,
	)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ ports.Producer = (*Poller)(nil)
