package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/pkg/logger"
)

// HealthProber polls the backend health endpoint and the embedded AI
// app's root on a fixed interval. Probes are fire-and-forget; only
// up/down transitions are reported.
type HealthProber struct {
	client     *http.Client
	backendURL string
	embedURL   string
	interval   time.Duration

	// OnChange fires on a transition; target is "backend" or "embed".
	OnChange func(target string, up bool)

	mu        sync.Mutex
	backendUp bool
	embedUp   bool
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewHealthProber(backendURL, embedURL string, interval time.Duration) *HealthProber {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthProber{
		client:     &http.Client{Timeout: 3 * time.Second},
		backendURL: backendURL,
		embedURL:   embedURL,
		interval:   interval,
	}
}

func (p *HealthProber) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.probe()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.probe()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func (p *HealthProber) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Status reports the last observed reachability of backend and embed.
func (p *HealthProber) Status() (backendUp, embedUp bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backendUp, p.embedUp
}

func (p *HealthProber) probe() {
	backendUp := p.check(p.backendURL)
	embedUp := p.check(p.embedURL)

	p.mu.Lock()
	backendChanged := backendUp != p.backendUp
	embedChanged := embedUp != p.embedUp
	p.backendUp = backendUp
	p.embedUp = embedUp
	onChange := p.OnChange
	p.mu.Unlock()

	if onChange != nil {
		if backendChanged {
			onChange("backend", backendUp)
		}
		if embedChanged {
			onChange("embed", embedUp)
		}
	}
}

func (p *HealthProber) check(url string) bool {
	if url == "" {
		return false
	}
	resp, err := p.client.Get(url)
	if err != nil {
		logger.Log.Debugf("health probe %s: %v", url, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
